package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"bizsync/internal/domain/record"
)

// SignificantDelta расхождение меток времени, о котором сообщается пользователю
const SignificantDelta = 5 * time.Minute

// Strategy стратегия разрешения конфликтов
type Strategy string

const (
	StrategyLastWriteWins Strategy = "last_write_wins"
	StrategyRemoteWins    Strategy = "remote_wins"
	StrategyLocalWins     Strategy = "local_wins"
	StrategyManual        Strategy = "manual"
)

// ParseStrategy разбирает имя стратегии
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyLastWriteWins, StrategyRemoteWins, StrategyLocalWins, StrategyManual:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Winner какая сторона определила итоговые данные
type Winner string

const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
	WinnerMerged Winner = "merged"
)

// Side одна из версий записи
type Side struct {
	Data      json.RawMessage
	Timestamp string
	Version   int64
	Deleted   bool
}

// Input вход решающей функции
type Input struct {
	Table    record.Table
	RecordID string
	Local    Side
	Remote   Side
	Strategy Strategy
}

// Resolution итог разрешения конфликта
type Resolution struct {
	Winner  Winner
	Data    json.RawMessage
	Deleted bool
	// Version новая версия записи: на единицу больше максимальной из двух
	Version int64
	// Manual выставлен, когда запись требует внешнего решения
	Manual     bool
	AuditNote  string
	UserNotice string
	Delta      time.Duration
}
