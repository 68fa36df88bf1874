package security

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/app/client/api/http/apierr"
	"bizsync/internal/app/client/api/http/middleware/auth"
	"bizsync/internal/domain/tenant"
)

type Servicer interface {
	RecentEvents(ctx context.Context, limit int, prefix string) ([]tenant.Event, error)
	CheckPermission(ctx context.Context, action tenant.Action, resource string) bool
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
	huma.Register(api, h.auditOp(), h.audit)
	huma.Register(api, h.whoamiOp(), h.whoami)
}

// audit журнал виден только тому, кто управляет арендатором
func (h *Handler) audit(ctx context.Context, input *auditInput) (*auditOutput, error) {
	if !h.service.CheckPermission(ctx, tenant.ActionManage, "audit_log") {
		return nil, apierr.From(tenant.ErrAccessDenied)
	}

	events, err := h.service.RecentEvents(ctx, input.Limit, input.Prefix)
	if err != nil {
		return nil, apierr.From(err)
	}
	if events == nil {
		events = []tenant.Event{}
	}
	return &auditOutput{Body: AuditResponse{Events: events}}, nil
}

func (h *Handler) whoami(ctx context.Context, _ *whoamiInput) (*whoamiOutput, error) {
	u, ok := auth.GetUser(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}
	return &whoamiOutput{Body: u}, nil
}
