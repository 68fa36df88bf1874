package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp возвращается, если строку не удалось разобрать ни одним из известных форматов
var ErrInvalidTimestamp = errors.New("invalid timestamp")

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalize приводит строковую метку времени к UTC.
// Поддерживаются RFC3339, SQL-форматы и unix-время в секундах или миллисекундах.
func Normalize(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		// 1e11 секунд это год 5138, значит такие значения уже миллисекунды
		if n >= 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.IsZero() {
				break
			}
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

// Format сериализует время в каноничный вид, который понимает Normalize
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// SystemClock использует time.Now
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock возвращает заданное время, пригоден для тестов
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance сдвигает часы вперед
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
