package quota

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client/api/http/apierr"
	"bizsync/internal/domain/quota"
)

type Servicer interface {
	Reserve(ctx context.Context, userID string, amount int64) (quota.ReserveResult, error)
	Commit(ctx context.Context, quotaID string, amountUsed int64) (*quota.Reservation, error)
	CommitReservation(ctx context.Context, reservationID string, amountUsed int64) (*quota.Reservation, error)
	Cancel(ctx context.Context, reservationID string) error
	Available(ctx context.Context, userID string) (quota.Usage, error)
	Reservations(ctx context.Context, userID string, limit int) ([]quota.Reservation, error)
	Reconcile(ctx context.Context, userID string) (bool, error)
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
	huma.Register(api, h.showOp(), h.show)
	huma.Register(api, h.reserveOp(), h.reserve)
	huma.Register(api, h.reconcileOp(), h.reconcile)
	huma.Register(api, h.commitQuotaOp(), h.commitQuota)
	huma.Register(api, h.commitReservationOp(), h.commitReservation)
	huma.Register(api, h.cancelOp(), h.cancel)
}

func (h *Handler) show(ctx context.Context, input *showInput) (*showOutput, error) {
	usage, err := h.service.Available(ctx, input.UserID)
	if err != nil {
		return nil, apierr.From(err)
	}
	rsv, err := h.service.Reservations(ctx, input.UserID, input.Limit)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &showOutput{Body: ShowResponse{Usage: usage, Reservations: rsv}}, nil
}

func (h *Handler) reserve(ctx context.Context, input *reserveInput) (*reserveOutput, error) {
	res, err := h.service.Reserve(ctx, input.UserID, input.Body.Amount)
	if err != nil {
		// нехватка лимита не ошибка запроса: вызывающий получает success=false
		var short *quota.ShortfallError
		if errors.As(err, &short) {
			return &reserveOutput{Body: res}, nil
		}
		return nil, apierr.From(err)
	}
	return &reserveOutput{Body: res}, nil
}

func (h *Handler) reconcile(ctx context.Context, input *reconcileInput) (*reconcileOutput, error) {
	adopted, err := h.service.Reconcile(ctx, input.UserID)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &reconcileOutput{Body: ReconcileResponse{Adopted: adopted}}, nil
}

func (h *Handler) commitQuota(ctx context.Context, input *commitQuotaInput) (*reservationOutput, error) {
	rsv, err := h.service.Commit(ctx, input.QuotaID, input.Body.AmountUsed)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &reservationOutput{Body: rsv}, nil
}

func (h *Handler) commitReservation(ctx context.Context, input *commitReservationInput) (*reservationOutput, error) {
	rsv, err := h.service.CommitReservation(ctx, input.ID, input.Body.AmountUsed)
	if err != nil {
		return nil, apierr.From(err)
	}
	return &reservationOutput{Body: rsv}, nil
}

func (h *Handler) cancel(ctx context.Context, input *cancelInput) (*cancelOutput, error) {
	if err := h.service.Cancel(ctx, input.ID); err != nil {
		return nil, apierr.From(err)
	}
	return &cancelOutput{}, nil
}
