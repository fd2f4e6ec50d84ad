package errors

import "errors"

var (
	ErrInvalidEvent        = errors.New("domain event is missing required fields")
	ErrDuplicateEvent      = errors.New("domain event id already appended")
	ErrEventNotFound       = errors.New("no events recorded for aggregate")
	ErrHandlerExists       = errors.New("handler name already subscribed for event type")
	ErrHandlerNotFound     = errors.New("handler is not subscribed for event type")
	ErrEmptyBatch          = errors.New("event batch is empty")
	ErrProjectionCorrupted = errors.New("equity event payload cannot be decoded")
)
