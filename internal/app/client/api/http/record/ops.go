package record

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) putOp() huma.Operation {
	return huma.Operation{
		OperationID: "record-put",
		Method:      http.MethodPut,
		Path:        "/api/v1/records/{table}/{id}",
		Summary:     "Создать или изменить запись",
		Description: "Запись сохраняется локально и ставится в очередь отправки одной транзакцией",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) getOp() huma.Operation {
	return huma.Operation{
		OperationID: "record-get",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{table}/{id}",
		Summary:     "Получить запись",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "record-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{table}",
		Summary:     "Список записей таблицы",
		Tags:        []string{"records"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID:   "record-delete",
		Method:        http.MethodDelete,
		Path:          "/api/v1/records/{table}/{id}",
		Summary:       "Удалить запись",
		Description:   "Мягкое удаление: запись помечается deleted и удаление уходит на сервер",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"records"},
		Middlewares:   h.middleware,
	}
}
