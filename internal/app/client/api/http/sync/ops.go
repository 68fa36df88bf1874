package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) triggerOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-trigger",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync",
		Summary:     "Запустить синхронизацию",
		Description: "Выполняет полный проход: отправка очереди, затем загрузка изменений с сервера",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) partialOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-partial",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/partial",
		Summary:     "Частичная синхронизация",
		Description: "Загружает долю записей указанных таблиц для быстрого первого показа",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) statsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/stats",
		Summary:     "Статистика синхронизации",
		Description: "Возвращает состояние менеджера, очереди, соединения и накопленные счетчики",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) autoSyncOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-auto",
		Method:      http.MethodPut,
		Path:        "/api/v1/sync/auto",
		Summary:     "Включить или выключить автосинхронизацию",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) resolveConflictOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-resolve-conflict",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/conflicts/{table}/{id}",
		Summary:     "Разрешить конфликт вручную",
		Description: "Применяет выбранную сторону к записи в состоянии conflict и ставит итог в очередь",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}
