package sync

import (
	"time"

	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/record"
)

// MinInterval нижняя граница периода автосинхронизации
const MinInterval = 5 * time.Second

// Config параметры менеджера синхронизации
type Config struct {
	AutoSync               bool
	Interval               time.Duration
	ActiveMultiplier       float64
	BackgroundInterval     time.Duration
	BatchSize              int
	MaxRetries             int
	Backoff                Backoff
	ReconnectMax           time.Duration
	MaxConsecutiveFailures int
	Strategy               conflict.Strategy
	PullPageSize           int
	PushConcurrency        int
	MinTriggerInterval     time.Duration
	PartialLimits          map[record.Table]int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ActiveMultiplier <= 0 {
		c.ActiveMultiplier = 0.5
	}
	if c.BackgroundInterval <= 0 {
		c.BackgroundInterval = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 5 * time.Minute
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.Strategy == "" {
		c.Strategy = conflict.StrategyLastWriteWins
	}
	if c.PullPageSize <= 0 {
		c.PullPageSize = 500
	}
	if c.PushConcurrency <= 0 {
		c.PushConcurrency = 1
	}
}
