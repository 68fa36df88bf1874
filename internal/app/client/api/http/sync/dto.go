package sync

import (
	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

type triggerInput struct{}

type resultOutput struct {
	Body *sync.Result
}

type partialInput struct {
	Body PartialRequest
}

type PartialRequest struct {
	Tables   []record.Table `json:"tables" minItems:"1" doc:"Tables to pull a slice of"`
	Fraction float64        `json:"fraction" exclusiveMinimum:"0" maximum:"1" example:"0.1"`
}

type statsInput struct{}

type statsOutput struct {
	Body sync.Stats
}

type autoSyncInput struct {
	Body AutoSyncRequest
}

type AutoSyncRequest struct {
	Enabled bool `json:"enabled"`
}

type autoSyncOutput struct {
	Body AutoSyncResponse
}

type AutoSyncResponse struct {
	Enabled bool `json:"enabled"`
}

type resolveConflictInput struct {
	Table string `path:"table" doc:"Record table"`
	ID    string `path:"id" format:"uuid"`
	Body  ResolveConflictRequest
}

type ResolveConflictRequest struct {
	Winner conflict.Winner `json:"winner" enum:"local,remote,merged"`
}

type resolveConflictOutput struct {
	Body *record.Entry
}
