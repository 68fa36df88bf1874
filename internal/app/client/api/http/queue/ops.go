package queue

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "queue-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue",
		Summary:     "Операции очереди синхронизации",
		Description: "Возвращает операции с указанным статусом в порядке постановки",
		Tags:        []string{"queue"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) purgeOp() huma.Operation {
	return huma.Operation{
		OperationID: "queue-purge",
		Method:      http.MethodDelete,
		Path:        "/api/v1/queue",
		Summary:     "Очистить завершенные операции",
		Description: "Удаляет завершенные или упавшие операции старше указанного возраста",
		Tags:        []string{"queue"},
		Middlewares: h.middleware,
	}
}
