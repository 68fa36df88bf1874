package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"
)

// scheduler таймер автосинхронизации и отложенного переподключения
type scheduler struct {
	mu        stdsync.Mutex
	running   bool
	stop      chan struct{}
	done      chan struct{}
	resched   chan struct{}
	interval  time.Duration
	reconnect *time.Timer
}

// StartAutoSync запускает периодическую синхронизацию. Предыдущий цикл всегда останавливается
// до запуска нового, поэтому повторный вызов не плодит таймеры.
func (m *Manager) StartAutoSync(ctx context.Context) {
	m.StopAutoSync()

	m.sched.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	m.sched.stop = stop
	m.sched.done = done
	m.sched.running = true
	m.sched.mu.Unlock()

	go m.autoLoop(ctx, stop, done)
	m.log.Info("Auto sync started")
}

// StopAutoSync останавливает будущие проходы; идущий проход не прерывается
func (m *Manager) StopAutoSync() {
	m.sched.mu.Lock()
	if !m.sched.running {
		m.sched.mu.Unlock()
		return
	}
	stop, done := m.sched.stop, m.sched.done
	m.sched.running = false
	m.sched.mu.Unlock()

	close(stop)
	<-done
	m.log.Info("Auto sync stopped")
}

// Reschedule просит цикл пересчитать период после сигнала активности или соединения
func (m *Manager) Reschedule() {
	select {
	case m.sched.resched <- struct{}{}:
	default:
	}
}

func (m *Manager) autoRunning() bool {
	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()
	return m.sched.running
}

func (m *Manager) currentInterval() time.Duration {
	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()
	if m.sched.interval == 0 {
		return m.computeInterval()
	}
	return m.sched.interval
}

func (m *Manager) setInterval(d time.Duration) {
	m.sched.mu.Lock()
	prev := m.sched.interval
	m.sched.interval = d
	m.sched.mu.Unlock()

	if prev != d {
		m.log.Debug("Sync interval changed", "from", prev, "to", d)
	}
}

func (m *Manager) autoLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := m.computeInterval()
	m.setInterval(interval)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-m.sched.resched:
			next := m.computeInterval()
			if next == interval {
				continue
			}
			interval = next
			m.setInterval(interval)
			timer.Stop()
			timer.Reset(interval)
		case <-timer.C:
			m.tick(ctx)
			interval = m.computeInterval()
			m.setInterval(interval)
			timer.Reset(interval)
		}
	}
}

// tick плановый проход; в error и reconnecting плановые проходы не запускаются
func (m *Manager) tick(ctx context.Context) {
	switch m.State() {
	case StateError, StateReconnecting:
		return
	}

	if _, err := m.trigger(ctx, false); err != nil {
		switch {
		case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrOffline), errors.Is(err, ErrNoTenant):
			m.log.Debug("Scheduled sync skipped", "reason", err)
		default:
			m.log.Warn("Scheduled sync failed", "error", err)
		}
	}
}

// computeInterval период с учетом активности пользователя и качества соединения
func (m *Manager) computeInterval() time.Duration {
	d := m.cfg.Interval

	switch m.activity.Level() {
	case ActivityActive:
		d = time.Duration(float64(d) * m.cfg.ActiveMultiplier)
		if d < MinInterval {
			d = MinInterval
		}
	case ActivityIdle:
		d = m.cfg.BackgroundInterval
	}

	switch m.conn.State().Quality {
	case QualityPoor:
		d *= 2
	case QualityExcellent:
		d = d * 3 / 4
	}

	if d < MinInterval {
		d = MinInterval
	}
	return d
}

func (m *Manager) scheduleReconnect(delay time.Duration) {
	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()

	if m.sched.reconnect != nil {
		m.sched.reconnect.Stop()
	}

	m.log.Info("Reconnect scheduled", "delay", delay)
	m.sched.reconnect = time.AfterFunc(delay, func() {
		if m.State() != StateReconnecting {
			return
		}
		if _, err := m.trigger(context.Background(), false); err != nil {
			m.log.Debug("Reconnect attempt failed", "error", err)
		}
	})
}

func (m *Manager) cancelReconnect() {
	m.sched.mu.Lock()
	defer m.sched.mu.Unlock()

	if m.sched.reconnect != nil {
		m.sched.reconnect.Stop()
		m.sched.reconnect = nil
	}
}
