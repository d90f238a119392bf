package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreFailure marks failures of the underlying document store, as
	// opposed to a lookup that found nothing.
	ErrStoreFailure = errors.New("store failure")
	// ErrConnector marks failures of external process connectors.
	ErrConnector = errors.New("connector failure")
	// ErrUnknownConnector is returned when a step names a connector that is not registered.
	ErrUnknownConnector = errors.New("unknown connector")
	// ErrPersistQueueFull is reported when the TTable write queue has no room.
	ErrPersistQueueFull = errors.New("ttable persist queue full")
	// ErrPersisterClosed is returned when enqueueing after Close.
	ErrPersisterClosed = errors.New("ttable persister closed")
)

// StoreError wraps a store failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrStoreFailure and the cause to errors.Is/As.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}

// IsStoreFailure reports whether err came from an unreachable or failing store.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreFailure)
}

// ConnectorError wraps a failed connector call.
type ConnectorError struct {
	Connector string
	Err       error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Connector, e.Err)
}

func (e *ConnectorError) Unwrap() []error {
	return []error{ErrConnector, e.Err}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
