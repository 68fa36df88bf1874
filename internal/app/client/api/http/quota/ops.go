package quota

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) showOp() huma.Operation {
	return huma.Operation{
		OperationID: "quota-show",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{user_id}/quota",
		Summary:     "Счетчики квоты пользователя",
		Description: "Лимит, расход, активные резервы и последние резервирования",
		Tags:        []string{"quota"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) reserveOp() huma.Operation {
	return huma.Operation{
		OperationID: "quota-reserve",
		Method:      http.MethodPost,
		Path:        "/api/v1/users/{user_id}/quota/reservations",
		Summary:     "Зарезервировать сообщения",
		Description: "При нехватке лимита возвращает success=false и доступный объем",
		Tags:        []string{"quota"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) reconcileOp() huma.Operation {
	return huma.Operation{
		OperationID: "quota-reconcile",
		Method:      http.MethodPost,
		Path:        "/api/v1/users/{user_id}/quota/reconcile",
		Summary:     "Сверить квоту с сервером",
		Tags:        []string{"quota"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) commitQuotaOp() huma.Operation {
	return huma.Operation{
		OperationID: "quota-commit",
		Method:      http.MethodPost,
		Path:        "/api/v1/quotas/{quota_id}/commit",
		Summary:     "Зафиксировать расход по старейшему резерву",
		Tags:        []string{"quota"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) commitReservationOp() huma.Operation {
	return huma.Operation{
		OperationID: "reservation-commit",
		Method:      http.MethodPost,
		Path:        "/api/v1/reservations/{id}/commit",
		Summary:     "Зафиксировать расход по резерву",
		Tags:        []string{"quota"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) cancelOp() huma.Operation {
	return huma.Operation{
		OperationID:   "reservation-cancel",
		Method:        http.MethodPost,
		Path:          "/api/v1/reservations/{id}/cancel",
		Summary:       "Отменить резерв",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"quota"},
		Middlewares:   h.middleware,
	}
}
