package queue

import "errors"

var (
	ErrOperationNotFound = errors.New("queue operation not found")
	ErrInvalidKind       = errors.New("invalid operation kind")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidPayload    = errors.New("invalid operation payload")
	ErrNonTerminalPurge  = errors.New("only completed or failed operations can be purged")
)
