package security

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) auditOp() huma.Operation {
	return huma.Operation{
		OperationID: "audit-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit",
		Summary:     "Журнал аудита",
		Description: "Последние события безопасности, новые первыми",
		Tags:        []string{"security"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) whoamiOp() huma.Operation {
	return huma.Operation{
		OperationID: "session-whoami",
		Method:      http.MethodGet,
		Path:        "/api/v1/session",
		Summary:     "Активный пользователь",
		Tags:        []string{"security"},
		Middlewares: h.middleware,
	}
}
