// Package apierr переводит ошибки доменных сервисов в ответы API управления
package apierr

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"bizsync/internal/domain/queue"
	"bizsync/internal/domain/quota"
	"bizsync/internal/domain/record"
	"bizsync/internal/domain/sync"
	"bizsync/internal/domain/tenant"
)

// From подбирает HTTP статус по ошибке; неизвестные ошибки становятся 500
func From(err error) error {
	if err == nil {
		return nil
	}

	var verr *record.ValidationError
	var short *quota.ShortfallError
	switch {
	case errors.As(err, &verr):
		details := make([]error, 0, len(verr.Fields))
		for field, tag := range verr.Fields {
			details = append(details, &huma.ErrorDetail{Location: "body." + field, Message: "failed on " + tag})
		}
		return huma.Error422UnprocessableEntity(err.Error(), details...)
	case errors.As(err, &short):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, tenant.ErrNoUser),
		errors.Is(err, tenant.ErrInvalidSession),
		errors.Is(err, tenant.ErrSessionExpired):
		return huma.Error401Unauthorized(err.Error())
	case errors.Is(err, tenant.ErrAccessDenied), errors.Is(err, sync.ErrAccessDenied):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, record.ErrNotFound),
		errors.Is(err, queue.ErrOperationNotFound),
		errors.Is(err, quota.ErrQuotaNotFound),
		errors.Is(err, quota.ErrReservationNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, record.ErrUnknownTable),
		errors.Is(err, record.ErrInvalidRecord),
		errors.Is(err, record.ErrIDMismatch),
		errors.Is(err, queue.ErrInvalidPriority),
		errors.Is(err, queue.ErrNonTerminalPurge),
		errors.Is(err, quota.ErrInvalidAmount),
		errors.Is(err, quota.ErrExceedsReservation):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, sync.ErrSyncInProgress),
		errors.Is(err, sync.ErrNoConflict),
		errors.Is(err, quota.ErrReservationExpired),
		errors.Is(err, quota.ErrNotPending):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, sync.ErrThrottled):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, sync.ErrOffline),
		errors.Is(err, sync.ErrNoTenant),
		errors.Is(err, sync.ErrRemoteUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
