package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSessionLost is reported (via errors.Is) when the reissue endpoint
// rejects the durable session and the member must log in again.
var ErrSessionLost = errors.New("session: session lost")

// ErrRequestNotReplayable is returned when a request failed authorization but
// its body cannot be re-read for the retry.
var ErrRequestNotReplayable = errors.New("session: request body not replayable")

// APIError is a non-2xx JSON error envelope from the AirBnG backend.
type APIError struct {
	// StatusCode is the HTTP status of the response carrying the error.
	StatusCode int `json:"-"`

	// Code is the backend's application error code.
	Code int `json:"code"`

	// Message is the human-readable description from the backend.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("airbng api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("airbng api error: HTTP %d", e.StatusCode)
}

// RenewalError wraps the failure that ended a credential renewal. Every
// caller parked on the renewal receives the same RenewalError, and
// errors.Is(err, ErrSessionLost) holds for all of them.
type RenewalError struct {
	// StatusCode is the HTTP status of the reissue response, or zero when the
	// call never produced a response.
	StatusCode int

	// Err is the underlying cause, when one exists.
	Err error
}

// Error implements the error interface.
func (e *RenewalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session: renewal failed: %v", e.Err)
	}
	return fmt.Sprintf("session: renewal failed: HTTP %d", e.StatusCode)
}

// Unwrap exposes the underlying cause.
func (e *RenewalError) Unwrap() error { return e.Err }

// Is makes every renewal failure match ErrSessionLost.
func (e *RenewalError) Is(target error) bool { return target == ErrSessionLost }

// parseErrorResponse turns a non-2xx response body into a typed *APIError.
// Bodies that are not the standard envelope fall back to a status-only error.
func parseErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err == nil && apiErr.Message != "" {
		return apiErr
	}
	return apiErr
}
