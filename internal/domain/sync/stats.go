package sync

import (
	"time"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/record"
)

// OpError ошибка отдельной операции прохода
type OpError struct {
	Table     record.Table `json:"table"`
	RecordID  string       `json:"record_id"`
	Operation string       `json:"operation"`
	Error     string       `json:"error"`
	Retry     int          `json:"retry"`
}

// Result итог одного прохода синхронизации
type Result struct {
	Success    bool          `json:"success"`
	Partial    bool          `json:"partial,omitempty"`
	Pushed     int           `json:"pushed"`
	Failed     int           `json:"failed"`
	Pulled     int           `json:"pulled"`
	Conflicts  int           `json:"conflicts"`
	Unresolved int           `json:"unresolved,omitempty"`
	Resolved   int           `json:"resolved"`
	Rejected   int           `json:"rejected"`
	Errors     []OpError     `json:"errors,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
}

// Stats накопленная статистика синхронизации
type Stats struct {
	State               State           `json:"state"`
	TotalSyncs          int             `json:"total_syncs"`
	Successful          int             `json:"successful"`
	FailedSyncs         int             `json:"failed_syncs"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastSync            time.Time       `json:"last_sync"`
	LastSuccessful      time.Time       `json:"last_successful"`
	LastError           string          `json:"last_error,omitempty"`
	TotalPushed         int             `json:"total_pushed"`
	TotalPulled         int             `json:"total_pulled"`
	TotalConflicts      int             `json:"total_conflicts"`
	TotalResolved       int             `json:"total_resolved"`
	TotalRejected       int             `json:"total_rejected"`
	AvgSyncDuration     time.Duration   `json:"avg_sync_duration"`
	Interval            time.Duration   `json:"interval"`
	Activity            ActivityLevel   `json:"activity"`
	Connection          ConnectionState `json:"connection"`
	Queue               queue.Stats     `json:"queue"`
}

func (s *Stats) record(r *Result, ok bool) {
	s.TotalSyncs++
	s.LastSync = r.EndTime
	if ok {
		s.Successful++
		s.LastSuccessful = r.EndTime
	} else {
		s.FailedSyncs++
	}
	s.TotalPushed += r.Pushed
	s.TotalPulled += r.Pulled
	s.TotalConflicts += r.Conflicts
	s.TotalResolved += r.Resolved
	s.TotalRejected += r.Rejected

	n := time.Duration(s.TotalSyncs)
	s.AvgSyncDuration = s.AvgSyncDuration + (r.Duration-s.AvgSyncDuration)/n
}
