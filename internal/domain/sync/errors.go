package sync

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	ErrOffline           = errors.New("sync unavailable: offline")
	ErrNoTenant          = errors.New("sync unavailable: no tenant context")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrThrottled         = errors.New("sync trigger throttled")
	ErrAccessDenied      = errors.New("access denied")
	ErrRemoteNotFound    = errors.New("remote record not found")
	ErrRemoteUnavailable = errors.New("remote unavailable: connection lost")
	ErrStaleWrite        = errors.New("remote record changed since it was read")
	ErrManualConflict    = errors.New("conflict awaiting manual resolution")
	ErrNoConflict        = errors.New("record is not in conflict")
)

// recoverableVocabulary фрагменты сообщений, по которым ошибка считается сетевой
var recoverableVocabulary = []string{
	"network",
	"timeout",
	"timed out",
	"connection",
	"unreachable",
	"temporarily",
	"temporary",
	"no such host",
	"broken pipe",
	"reset by peer",
	"eof",
	"dial",
	"offline",
}

// IsRecoverable сообщает, стоит ли повторять операцию позже.
// Ошибки доступа и конфликты не повторяются никогда.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrManualConflict), errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, ErrOffline), errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, word := range recoverableVocabulary {
		if strings.Contains(msg, word) {
			return true
		}
	}
	return false
}

// retryable ошибки, которые имеет смысл повторить в рамках одного прохода
func retryable(err error) bool {
	return errors.Is(err, ErrStaleWrite) || IsRecoverable(err)
}
