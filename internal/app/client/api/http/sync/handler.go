package sync

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client/api/http/apierr"
	"bizsync/internal/domain/conflict"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
)

// Servicer операции менеджера синхронизации, доступные через API
type Servicer interface {
	TriggerSync(ctx context.Context) (*sync.Result, error)
	PartialSync(ctx context.Context, tables []record.Table, fraction float64) (*sync.Result, error)
	GetSyncStats(ctx context.Context) (sync.Stats, error)
	ResolveConflict(ctx context.Context, table record.Table, id string, choice conflict.Winner) (*record.Entry, error)
}

// AutoSwitch переключатель автосинхронизации агента
type AutoSwitch interface {
	SetAutoSync(enabled bool)
}

type Handler struct {
	service    Servicer
	auto       AutoSwitch
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service Servicer, auto AutoSwitch, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		auto:       auto,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.triggerOp(), h.trigger)
	huma.Register(api, h.partialOp(), h.partial)
	huma.Register(api, h.statsOp(), h.stats)
	huma.Register(api, h.autoSyncOp(), h.autoSync)
	huma.Register(api, h.resolveConflictOp(), h.resolveConflict)
}

func (h *Handler) trigger(ctx context.Context, _ *triggerInput) (*resultOutput, error) {
	res, err := h.service.TriggerSync(ctx)
	if err != nil && res == nil {
		return nil, apierr.From(err)
	}
	// неудачный проход все равно возвращает итог, ошибка уже в статистике
	return &resultOutput{Body: res}, nil
}

func (h *Handler) partial(ctx context.Context, input *partialInput) (*resultOutput, error) {
	res, err := h.service.PartialSync(ctx, input.Body.Tables, input.Body.Fraction)
	if err != nil && res == nil {
		return nil, apierr.From(err)
	}
	return &resultOutput{Body: res}, nil
}

func (h *Handler) stats(ctx context.Context, _ *statsInput) (*statsOutput, error) {
	stats, err := h.service.GetSyncStats(ctx)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &statsOutput{Body: stats}, nil
}

func (h *Handler) autoSync(_ context.Context, input *autoSyncInput) (*autoSyncOutput, error) {
	h.auto.SetAutoSync(input.Body.Enabled)
	h.log.Info("Auto sync switched", "enabled", input.Body.Enabled)
	return &autoSyncOutput{Body: AutoSyncResponse{Enabled: input.Body.Enabled}}, nil
}

func (h *Handler) resolveConflict(ctx context.Context, input *resolveConflictInput) (*resolveConflictOutput, error) {
	table, err := record.ParseTable(input.Table)
	if err != nil {
		return nil, apierr.From(err)
	}
	entry, err := h.service.ResolveConflict(ctx, table, input.ID, input.Body.Winner)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &resolveConflictOutput{Body: entry}, nil
}
