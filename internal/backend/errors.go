package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the backend. Detail holds the
// server-supplied "detail" message when one was sent.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend: status %d", e.StatusCode)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// DetailOr returns the server detail carried by err, or fallback when there
// is none.
func DetailOr(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Detail) != "" {
		return apiErr.Detail
	}
	return fallback
}

func newAPIError(status int, body io.Reader) *APIError {
	apiErr := &APIError{StatusCode: status}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) != nil || len(payload.Detail) == 0 {
		return apiErr
	}
	var detail string
	if json.Unmarshal(payload.Detail, &detail) == nil {
		apiErr.Detail = strings.TrimSpace(detail)
	}
	return apiErr
}
