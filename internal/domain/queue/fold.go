package queue

import (
	"sort"

	"bizsync/internal/domain/record"
)

type foldKey struct {
	table    record.Table
	recordID string
}

// fold сворачивает ожидающие операции до одной на запись.
// Вход упорядочен по seq. Побеждает последняя нагрузка, удаление доминирует,
// create сохраняется, если хоть одна операция группы была create.
func fold(ops []Operation) []PriorityOperation {
	groups := make(map[foldKey]*PriorityOperation, len(ops))
	order := make([]foldKey, 0, len(ops))

	for _, op := range ops {
		key := foldKey{table: op.Table, recordID: op.RecordID}

		cur, ok := groups[key]
		if !ok {
			groups[key] = &PriorityOperation{Operation: op}
			order = append(order, key)
			continue
		}

		merged := mergeOps(cur.Operation, op)
		if merged.ID == op.ID {
			cur.Folded = append(cur.Folded, cur.ID)
		} else {
			cur.Folded = append(cur.Folded, op.ID)
		}
		cur.Operation = merged
	}

	out := make([]PriorityOperation, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].Seq < out[j].Seq
	})

	return out
}

// mergeOps объединяет накопленную операцию с более поздней
func mergeOps(acc, next Operation) Operation {
	earliest := acc.EnqueuedAt
	if next.EnqueuedAt.Before(earliest) {
		earliest = next.EnqueuedAt
	}
	priority := acc.Priority
	if next.Priority > priority {
		priority = next.Priority
	}
	retries := acc.RetryCount
	if next.RetryCount > retries {
		retries = next.RetryCount
	}

	var out Operation
	switch {
	case acc.Kind == KindDelete && next.Kind != KindDelete:
		// удаление уже случилось, более поздние правки не воскрешают запись
		out = acc
	default:
		out = next
		if acc.Kind == KindCreate && next.Kind == KindUpdate {
			out.Kind = KindCreate
		}
	}

	out.EnqueuedAt = earliest
	out.Priority = priority
	out.RetryCount = retries
	return out
}
