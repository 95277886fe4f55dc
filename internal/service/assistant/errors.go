package assistant

import "errors"

var (
	ErrEmptyInput           = errors.New("message text is empty")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionClosed        = errors.New("session closed")
	ErrResponderTimeout     = errors.New("responder timed out")
	ErrResponderUnavailable = errors.New("responder unavailable")
)
