package sync

import (
	"context"
	stdsync "sync"
	"time"

	"golang.org/x/exp/slog"

	"bizsync/internal/utils/timeutil"
)

// Quality качественная оценка соединения
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityOffline   Quality = "offline"
)

const (
	excellentLatency = 150 * time.Millisecond
	goodLatency      = 600 * time.Millisecond
	latencyAlpha     = 0.3
	// DefaultProbeTimeout таймаут проверки связи по умолчанию
	DefaultProbeTimeout = 5 * time.Second
)

// ConnectionState наблюдаемое состояние соединения с сервером
type ConnectionState struct {
	IsOnline            bool      `json:"is_online"`
	Quality             Quality   `json:"quality"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	AverageLatencyMs    float64   `json:"average_latency_ms"`
	LastCheckedAt       time.Time `json:"last_checked_at"`
}

// Prober проверяет доступность сервера
type Prober interface {
	Ping(ctx context.Context) error
}

// ConnectionMonitor отслеживает переходы online/offline и качество соединения по задержкам проб
type ConnectionMonitor struct {
	prober  Prober
	timeout time.Duration
	clock   timeutil.Clock
	log     *slog.Logger

	mu        stdsync.RWMutex
	state     ConnectionState
	listeners []func(prev, next ConnectionState)
}

// NewConnectionMonitor создает монитор. До первой пробы соединение считается отсутствующим.
func NewConnectionMonitor(prober Prober, timeout time.Duration, clock timeutil.Clock, log *slog.Logger) *ConnectionMonitor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ConnectionMonitor{
		prober:  prober,
		timeout: timeout,
		clock:   clock,
		log:     log.With("component", "connection_monitor"),
		state:   ConnectionState{Quality: QualityOffline},
	}
}

// OnChange регистрирует обработчик смены online/offline или качества
func (c *ConnectionMonitor) OnChange(fn func(prev, next ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State текущее состояние
func (c *ConnectionMonitor) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Check выполняет пробу с таймаутом. Любая ошибка означает offline.
func (c *ConnectionMonitor) Check(ctx context.Context) ConnectionState {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	err := c.prober.Ping(probeCtx)
	latency := time.Since(started)

	c.mu.Lock()
	prev := c.state
	next := prev
	next.LastCheckedAt = c.clock.Now()

	if err != nil {
		next.IsOnline = false
		next.Quality = QualityOffline
		next.ConsecutiveFailures++
	} else {
		ms := float64(latency) / float64(time.Millisecond)
		if prev.AverageLatencyMs == 0 || !prev.IsOnline {
			next.AverageLatencyMs = ms
		} else {
			next.AverageLatencyMs = latencyAlpha*ms + (1-latencyAlpha)*prev.AverageLatencyMs
		}
		next.IsOnline = true
		next.ConsecutiveFailures = 0
		next.Quality = qualityFor(next.AverageLatencyMs)
	}

	c.state = next
	listeners := append([]func(prev, next ConnectionState){}, c.listeners...)
	c.mu.Unlock()

	if err != nil {
		c.log.Debug("Connectivity probe failed", "error", err, "failures", next.ConsecutiveFailures)
	}
	c.notify(prev, next, listeners)

	return next
}

// SetOnline принимает уведомление хоста о смене сети.
// Переход в online подтверждается следующей пробой, до нее качество считается good.
func (c *ConnectionMonitor) SetOnline(online bool) {
	c.mu.Lock()
	prev := c.state
	next := prev
	next.IsOnline = online
	next.LastCheckedAt = c.clock.Now()
	if online {
		if prev.Quality == QualityOffline {
			next.Quality = QualityGood
		}
		next.ConsecutiveFailures = 0
	} else {
		next.Quality = QualityOffline
	}
	c.state = next
	listeners := append([]func(prev, next ConnectionState){}, c.listeners...)
	c.mu.Unlock()

	c.notify(prev, next, listeners)
}

// Run периодически проверяет соединение до отмены ctx
func (c *ConnectionMonitor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *ConnectionMonitor) notify(prev, next ConnectionState, listeners []func(prev, next ConnectionState)) {
	if prev.IsOnline == next.IsOnline && prev.Quality == next.Quality {
		return
	}

	c.log.Info("Connection state changed",
		"online", next.IsOnline, "quality", next.Quality, "latency_ms", next.AverageLatencyMs)

	for _, fn := range listeners {
		fn(prev, next)
	}
}

func qualityFor(latencyMs float64) Quality {
	switch {
	case latencyMs < float64(excellentLatency/time.Millisecond):
		return QualityExcellent
	case latencyMs < float64(goodLatency/time.Millisecond):
		return QualityGood
	default:
		return QualityPoor
	}
}
