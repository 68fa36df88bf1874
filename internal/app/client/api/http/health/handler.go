package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"bizsync/internal/domain/sync"
)

// SyncState источник состояния менеджера синхронизации
type SyncState interface {
	State() sync.State
}

// Connection источник состояния соединения
type Connection interface {
	State() sync.ConnectionState
}

type Handler struct {
	sync       SyncState
	conn       Connection
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(s SyncState, conn Connection, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		sync:       s,
		conn:       conn,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(_ context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	return &Output{
		Body: Response{
			Status:     "OK",
			SyncState:  h.sync.State(),
			Connection: h.conn.State(),
		},
	}, nil
}
