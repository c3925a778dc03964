package resource

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. HTTP handlers translate these to status codes;
// everything else matches with errors.Is.
var (
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrNotFound             = errors.New("resource not found")
	ErrNotReady             = errors.New("agent not ready")
	ErrInvalidEvent         = errors.New("invalid event")
	ErrInvalidResource      = errors.New("invalid resource")
	ErrDeserialization      = errors.New("deserialization failed")
	ErrListenerDisconnected = errors.New("listener disconnected")
	ErrWebhookMalformed     = errors.New("malformed webhook")
)

// AlreadyExistsError reports a Create against an occupied key.
type AlreadyExistsError struct {
	Type      ResourceType
	Namespace string
	Name      string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s/%s already exists", e.Type, e.Namespace, e.Name)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// NotFoundError reports a lookup miss for a named resource.
type NotFoundError struct {
	Type      ResourceType
	Namespace string
	Name      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s/%s not found", e.Type, e.Namespace, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
