package queue

import (
	"fmt"

	"bizsync/internal/domain/record"
)

// Priority порядок обработки внутри прохода; больше значит раньше
type Priority int

const (
	PriorityBackground Priority = iota + 1
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority разбирает имя приоритета
func ParsePriority(s string) (Priority, error) {
	for p := PriorityBackground; p <= PriorityCritical; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// DerivePriority вычисляет приоритет по таблице и виду операции
func DerivePriority(table record.Table, kind Kind) Priority {
	if kind == KindDelete {
		return PriorityCritical
	}

	switch table {
	case record.TableQuotas:
		return PriorityCritical
	case record.TableContacts, record.TableGroups, record.TableTemplates, record.TableProfiles:
		return PriorityHigh
	case record.TableAssets, record.TablePayments:
		return PriorityNormal
	case record.TableActivityLogs:
		return PriorityLow
	case record.TableSessions:
		return PriorityBackground
	default:
		return PriorityNormal
	}
}
