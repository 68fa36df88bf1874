package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"bizsync/internal/domain/record"
	"bizsync/internal/utils/timeutil"
)

// Resolve решает, какая версия записи выживает. Функция чистая и никогда не паникует:
// при нечитаемых метках времени побеждает сервер, а причина попадает в AuditNote.
func Resolve(in Input) Resolution {
	res := Resolution{Version: nextVersion(in.Local.Version, in.Remote.Version)}

	localTS, lerr := timeutil.Normalize(in.Local.Timestamp)
	remoteTS, rerr := timeutil.Normalize(in.Remote.Timestamp)
	validTimes := lerr == nil && rerr == nil
	if validTimes {
		res.Delta = localTS.Sub(remoteTS)
		if res.Delta < 0 {
			res.Delta = -res.Delta
		}
	}

	switch in.Strategy {
	case StrategyRemoteWins:
		res.take(WinnerRemote, in.Remote)
		res.AuditNote = "remote_wins strategy"
	case StrategyLocalWins:
		res.take(WinnerLocal, in.Local)
		res.AuditNote = "local_wins strategy"
	case StrategyManual:
		res.take(WinnerLocal, in.Local)
		res.Manual = true
		res.AuditNote = "manual strategy: local kept, awaiting resolution"
	default:
		if !validTimes {
			res.take(WinnerRemote, in.Remote)
			res.AuditNote = fmt.Sprintf("invalid timestamp fallback to remote (local=%q remote=%q)",
				in.Local.Timestamp, in.Remote.Timestamp)
			return res
		}

		switch {
		case localTS.After(remoteTS):
			res.take(WinnerLocal, in.Local)
			res.AuditNote = "last_write_wins: local is newer"
		case remoteTS.After(localTS):
			res.take(WinnerRemote, in.Remote)
			res.AuditNote = "last_write_wins: remote is newer"
		default:
			merged, err := Merge(in.Table, in.Remote.Data, in.Local.Data)
			if err != nil {
				res.take(WinnerRemote, in.Remote)
				res.AuditNote = fmt.Sprintf("last_write_wins: equal timestamps, merge failed (%v), remote kept", err)
				return res
			}
			res.Winner = WinnerMerged
			res.Data = merged
			res.Deleted = in.Local.Deleted || in.Remote.Deleted
			res.AuditNote = "last_write_wins: equal timestamps, user-owned fields merged"
		}
	}

	if validTimes && res.Delta > SignificantDelta {
		res.UserNotice = fmt.Sprintf("%s %s was edited on two devices %s apart; the %s version was kept",
			in.Table, in.RecordID, res.Delta.Round(time.Second), res.Winner)
	}

	return res
}

// ApplyManual применяет решение пользователя по конфликту, отложенному стратегией manual.
// Выбранная сторона дополняется пользовательскими полями локальной копии.
func ApplyManual(in Input, choice Winner) (Resolution, error) {
	var base Side
	switch choice {
	case WinnerLocal:
		base = in.Local
	case WinnerRemote:
		base = in.Remote
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	merged, err := Merge(in.Table, base.Data, in.Local.Data)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Winner:    choice,
		Data:      merged,
		Deleted:   base.Deleted,
		Version:   nextVersion(in.Local.Version, in.Remote.Version),
		AuditNote: fmt.Sprintf("manual resolution: %s chosen", choice),
	}, nil
}

// Merge берет winner целиком и переносит из local пользовательские поля, которые winner оставил пустыми
func Merge(table record.Table, winner, local json.RawMessage) (json.RawMessage, error) {
	base, err := decodeFields(winner)
	if err != nil {
		return nil, fmt.Errorf("decode winner: %w", err)
	}
	own, err := decodeFields(local)
	if err != nil {
		return nil, fmt.Errorf("decode local: %w", err)
	}

	for _, field := range record.UserOwnedFields(table) {
		lv, ok := own[field]
		if !ok || record.IsEmptyValue(lv) {
			continue
		}
		if record.IsEmptyValue(base[field]) {
			base[field] = lv
		}
	}

	out, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode merged: %w", err)
	}
	return out, nil
}

func (r *Resolution) take(w Winner, s Side) {
	r.Winner = w
	r.Data = s.Data
	r.Deleted = s.Deleted
}

func nextVersion(local, remote int64) int64 {
	if local > remote {
		return local + 1
	}
	return remote + 1
}

func decodeFields(data json.RawMessage) (map[string]any, error) {
	fields := make(map[string]any)
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}
