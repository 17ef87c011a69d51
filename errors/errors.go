package errors

import "fmt"

// Taxonomy of failures surfaced to clients as `error` events.
// Each sentinel marks a family; call sites wrap them with
// fmt.Errorf("%w: ...") so errors.Is keeps working.
var (
	ErrValidation    = fmt.Errorf("validation failed")
	ErrUnauthorized  = fmt.Errorf("not allowed")
	ErrNotFound      = fmt.Errorf("not found")
	ErrTerminalState = fmt.Errorf("message is deleted")

	ErrSelfConversation = fmt.Errorf("%w: cannot open a conversation with yourself", ErrValidation)
	ErrEmptyContent     = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrUnknownEvent     = fmt.Errorf("%w: unknown event", ErrValidation)

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("unable to generate token")

	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrSlowConsumer      = fmt.Errorf("sink buffer full")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
)
