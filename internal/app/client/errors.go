package client

import "errors"

var (
	ErrRemoteNotConfigured = errors.New("remote backend is not configured")
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrLoginRejected       = errors.New("login rejected")
)
