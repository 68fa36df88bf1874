package record

import (
	"bizsync/internal/domain/record"
)

type putInput struct {
	Table string `path:"table"`
	ID    string `path:"id" format:"uuid"`
	Body  PutRequest
}

type PutRequest struct {
	Data map[string]any `json:"data" doc:"Record fields; data.id must match the path id"`
}

type entryOutput struct {
	Body *record.Entry
}

type getInput struct {
	Table string `path:"table"`
	ID    string `path:"id" format:"uuid"`
}

type deleteInput struct {
	Table string `path:"table"`
	ID    string `path:"id" format:"uuid"`
}

type deleteOutput struct{}

type listInput struct {
	Table          string `path:"table"`
	Status         string `query:"status" enum:"pending,synced,conflict,error"`
	IncludeDeleted bool   `query:"include_deleted"`
	Limit          int    `query:"limit" minimum:"0" maximum:"1000" default:"100"`
}

type listOutput struct {
	Body ListResponse
}

type ListResponse struct {
	Records []record.Entry `json:"records"`
}
