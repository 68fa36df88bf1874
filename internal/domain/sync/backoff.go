package sync

import (
	"math"
	"time"
)

// Backoff экспоненциальная задержка base * multiplier^attempt с потолком
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// Delay задержка перед попыткой с номером attempt (с нуля)
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(b.Base) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
