// Package dferrors provides structured errors for the monitoring core.
package dferrors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrValidation   = errors.New("validation failed")
	ErrCollaborator = errors.New("collaborator call failed")
	ErrDelivery     = errors.New("delivery failed")
	ErrCapacity     = errors.New("queue at capacity")
	ErrFatal        = errors.New("fatal error")
	ErrNotFound     = errors.New("not found")
)

// Kind categorizes an error for propagation policy decisions.
type Kind string

const (
	KindValidation Kind = "validation"
	KindCollab     Kind = "collaborator"
	KindDelivery   Kind = "transient_delivery"
	KindCapacity   Kind = "capacity"
	KindFatal      Kind = "fatal"
	KindNotFound   Kind = "not_found"
)

// MonitorError is a structured error for monitoring operations.
type MonitorError struct {
	Kind      Kind
	Op        string // operation that failed (e.g., "classify", "enqueue_scrape")
	WebsiteID string // website the operation was acting on, if any
	Err       error
	Timestamp time.Time
	Retryable bool
}

func (e *MonitorError) Error() string {
	if e.WebsiteID != "" {
		return fmt.Sprintf("%s failed for website %s: %v", e.Op, e.WebsiteID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is so callers can match on the base error types.
func (e *MonitorError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrCollaborator:
		return e.Kind == KindCollab
	case ErrDelivery:
		return e.Kind == KindDelivery
	case ErrCapacity:
		return e.Kind == KindCapacity
	case ErrFatal:
		return e.Kind == KindFatal
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return errors.Is(e.Err, target)
}

// New creates a MonitorError of the given kind.
func New(kind Kind, op string, err error) *MonitorError {
	return &MonitorError{
		Kind:      kind,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: kind == KindDelivery || kind == KindCollab,
	}
}

// WithWebsite attaches the website the operation was acting on.
func (e *MonitorError) WithWebsite(websiteID string) *MonitorError {
	e.WebsiteID = websiteID
	return e
}

// Validation builds a caller-facing bad-input error. Never retried.
func Validation(op string, err error) *MonitorError {
	me := New(KindValidation, op, err)
	me.Retryable = false
	return me
}

// Capacity builds a queue-full error surfaced at the submission boundary.
func Capacity(op string) *MonitorError {
	me := New(KindCapacity, op, ErrCapacity)
	me.Retryable = false
	return me
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err may be retried with backoff.
func IsRetryable(err error) bool {
	var me *MonitorError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}
