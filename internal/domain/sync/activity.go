package sync

import (
	stdsync "sync"
	"time"

	"bizsync/internal/utils/timeutil"
)

// ActivityLevel насколько активно пользователь работает с приложением
type ActivityLevel string

const (
	ActivityActive ActivityLevel = "active"
	ActivityNormal ActivityLevel = "normal"
	ActivityIdle   ActivityLevel = "idle"
)

// ActivityMonitor помнит время последнего действия пользователя
type ActivityMonitor struct {
	activeWindow  time.Duration
	idleThreshold time.Duration
	clock         timeutil.Clock

	mu   stdsync.RWMutex
	last time.Time
}

// NewActivityMonitor создает монитор; момент создания считается последним действием
func NewActivityMonitor(activeWindow, idleThreshold time.Duration, clock timeutil.Clock) *ActivityMonitor {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ActivityMonitor{
		activeWindow:  activeWindow,
		idleThreshold: idleThreshold,
		clock:         clock,
		last:          clock.Now(),
	}
}

// RecordActivity отмечает действие пользователя
func (a *ActivityMonitor) RecordActivity() {
	a.mu.Lock()
	a.last = a.clock.Now()
	a.mu.Unlock()
}

// LastActivity время последнего действия
func (a *ActivityMonitor) LastActivity() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Level уровень активности на текущий момент
func (a *ActivityMonitor) Level() ActivityLevel {
	since := a.clock.Now().Sub(a.LastActivity())
	switch {
	case since <= a.activeWindow:
		return ActivityActive
	case since >= a.idleThreshold:
		return ActivityIdle
	default:
		return ActivityNormal
	}
}
