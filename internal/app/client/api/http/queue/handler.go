package queue

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client/api/http/apierr"
	"bizsync/internal/domain/queue"
	"bizsync/internal/utils/timeutil"
)

type Servicer interface {
	List(ctx context.Context, status queue.Status, limit int) ([]queue.Operation, error)
	Stats(ctx context.Context) (queue.Stats, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, status queue.Status) (int64, error)
}

type Handler struct {
	service    Servicer
	clock      timeutil.Clock
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service Servicer, clock timeutil.Clock, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		clock:      clock,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.purgeOp(), h.purge)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	ops, err := h.service.List(ctx, queue.Status(input.Status), input.Limit)
	if err != nil {
		return nil, apierr.From(err)
	}
	stats, err := h.service.Stats(ctx)
	if err != nil {
		return nil, apierr.From(err)
	}

	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, Operation{
			ID:          op.ID,
			Table:       string(op.Table),
			Kind:        string(op.Kind),
			RecordID:    op.RecordID,
			Priority:    op.Priority.String(),
			EnqueuedAt:  op.EnqueuedAt,
			RetryCount:  op.RetryCount,
			LastAttempt: op.LastAttempt,
			Status:      string(op.Status),
			Error:       op.Error,
		})
	}

	return &listOutput{Body: ListResponse{Operations: out, Stats: stats}}, nil
}

func (h *Handler) purge(ctx context.Context, input *purgeInput) (*purgeOutput, error) {
	age, err := time.ParseDuration(input.OlderThan)
	if err != nil || age < 0 {
		return nil, huma.Error400BadRequest("older_than must be a non-negative duration")
	}

	n, err := h.service.PurgeOlderThan(ctx, h.clock.Now().Add(-age), queue.Status(input.Status))
	if err != nil {
		return nil, apierr.From(err)
	}
	h.log.Info("Queue purged", "status", input.Status, "older_than", age, "removed", n)
	return &purgeOutput{Body: PurgeResponse{Removed: n}}, nil
}
