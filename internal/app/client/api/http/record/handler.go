package record

import (
	"context"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client/api/http/apierr"
	"bizsync/internal/domain/record"
)

type Servicer interface {
	Save(ctx context.Context, r record.Record) (*record.Entry, error)
	Delete(ctx context.Context, table record.Table, id string) error
	Get(ctx context.Context, table record.Table, id string) (record.Record, error)
	List(ctx context.Context, table record.Table, filter record.ListFilter) ([]record.Entry, error)
}

type Handler struct {
	service    Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.putOp(), h.put)
	huma.Register(api, h.getOp(), h.get)
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) put(ctx context.Context, input *putInput) (*entryOutput, error) {
	table, err := record.ParseTable(input.Table)
	if err != nil {
		return nil, apierr.From(err)
	}

	data, err := json.Marshal(input.Body.Data)
	if err != nil {
		return nil, huma.Error400BadRequest("data must be a JSON object")
	}

	r, err := record.Decode(record.Entry{Table: table, ID: input.ID, Data: data})
	if err != nil {
		return nil, apierr.From(err)
	}

	entry, err := h.service.Save(ctx, r)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &entryOutput{Body: entry}, nil
}

func (h *Handler) get(ctx context.Context, input *getInput) (*entryOutput, error) {
	table, err := record.ParseTable(input.Table)
	if err != nil {
		return nil, apierr.From(err)
	}

	r, err := h.service.Get(ctx, table, input.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	entry, err := record.Encode(r)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &entryOutput{Body: &entry}, nil
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	table, err := record.ParseTable(input.Table)
	if err != nil {
		return nil, apierr.From(err)
	}

	entries, err := h.service.List(ctx, table, record.ListFilter{
		Status:         record.SyncStatus(input.Status),
		IncludeDeleted: input.IncludeDeleted,
		Limit:          input.Limit,
	})
	if err != nil {
		return nil, apierr.From(err)
	}
	if entries == nil {
		entries = []record.Entry{}
	}
	return &listOutput{Body: ListResponse{Records: entries}}, nil
}

func (h *Handler) delete(ctx context.Context, input *deleteInput) (*deleteOutput, error) {
	table, err := record.ParseTable(input.Table)
	if err != nil {
		return nil, apierr.From(err)
	}
	if err := h.service.Delete(ctx, table, input.ID); err != nil {
		return nil, apierr.From(err)
	}
	return &deleteOutput{}, nil
}
