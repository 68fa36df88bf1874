package conflict

import "errors"

var (
	ErrUnknownStrategy = errors.New("unknown conflict strategy")
	ErrInvalidChoice   = errors.New("manual resolution must pick local or remote")
)
