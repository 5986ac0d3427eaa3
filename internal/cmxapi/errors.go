package cmxapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/leefowlercu/cmxbatch/internal/auth"
)

// SearchError is returned when a search page request fails.
type SearchError struct {
	Status    int
	retryable bool
	Err       error
}

func (e *SearchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("search failed (status %d); %v", e.Status, e.Err)
	}
	return fmt.Sprintf("search failed; %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Retryable reports whether the request may succeed if repeated.
func (e *SearchError) Retryable() bool { return e.retryable }

// ItemOperationError is returned when a per-document call fails.
type ItemOperationError struct {
	Op         string
	DocumentID string
	Status     int
	retryable  bool
	Err        error
}

func (e *ItemOperationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s failed (status %d); %v", e.Op, e.DocumentID, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s failed; %v", e.Op, e.DocumentID, e.Err)
}

func (e *ItemOperationError) Unwrap() error { return e.Err }

// Retryable reports whether the call may succeed if repeated.
func (e *ItemOperationError) Retryable() bool { return e.retryable }

// NewItemOperationError builds an ItemOperationError for callers that fail
// before reaching the API, such as a local write of fetched content.
func NewItemOperationError(op, id string, retryable bool, err error) *ItemOperationError {
	return &ItemOperationError{Op: op, DocumentID: id, retryable: retryable, Err: err}
}

// IsNotFound reports whether err is a 404 from the document store.
func IsNotFound(err error) bool {
	var itemErr *ItemOperationError
	if errors.As(err, &itemErr) {
		return itemErr.Status == http.StatusNotFound
	}
	var searchErr *SearchError
	if errors.As(err, &searchErr) {
		return searchErr.Status == http.StatusNotFound
	}
	return false
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// retryableTransport classifies an error returned by the HTTP client.
func retryableTransport(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return false
	}
	return true
}

// apiError carries a non-2xx response before it is turned into a
// SearchError or ItemOperationError.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	if e.body == "" {
		return http.StatusText(e.status)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.status), e.body)
}
