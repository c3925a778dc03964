package bus

import "errors"

var (
	ErrHandlerRegistered = errors.New("queue already has a handler")
	ErrNoHandler         = errors.New("queue has no handler")
	ErrHandlerPanicked   = errors.New("handler panicked")
)
