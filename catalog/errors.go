package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// NetworkError indicates a transport failure, a timeout, or a response the
// client could not interpret.
type NetworkError struct {
	Op  string
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Errorf("network: %s: %w", e.Op, e.Err).Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a deadline.
func (e NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// NotFoundError indicates the remote store has no record with the id (HTTP 404).
type NotFoundError struct {
	ID  int64
	Err error
}

func (e NotFoundError) Error() string {
	return fmt.Errorf("not_found: record %d: %w", e.ID, e.Err).Error()
}

func (e NotFoundError) Unwrap() error {
	return e.Err
}

// ValidationError indicates the remote store rejected the payload.
type ValidationError struct {
	Status  int
	Message string
}

func (e ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("validation: http status %d", e.Status)
	}
	return fmt.Sprintf("validation: http status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound NotFoundError
	return errors.As(err, &notFound)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var network NetworkError
	if errors.As(err, &network) {
		if network.Timeout() {
			return "timeout"
		}
		return "network"
	}
	var notFound NotFoundError
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var validation ValidationError
	if errors.As(err, &validation) {
		return "validation"
	}
	return "other"
}
