package tenant

import "errors"

var (
	ErrNoUser          = errors.New("no active user")
	ErrInvalidUser     = errors.New("invalid user identity")
	ErrProfileNotFound = errors.New("profile not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidSession  = errors.New("invalid session")
	ErrAccessDenied    = errors.New("access denied")
)
