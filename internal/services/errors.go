package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrAuthentication = errors.New("authentication error")
	ErrValidation     = errors.New("validation error")
	ErrAPI            = errors.New("api error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrCancelled      = errors.New("cancelled")
	ErrConfiguration  = errors.New("configuration error")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// APIError is a non-success response from the remote service. Code and Message
// carry the service's own error fields when the body supplied them.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Operation  string
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("api error")
	if e.Operation != "" {
		b.WriteString(": ")
		b.WriteString(e.Operation)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is lets errors.Is match the ErrAPI marker, and ErrNotFound for 404s.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAuthentication:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// NotFound builds the APIError returned when the service has no record of a job.
func NotFound(operation, subject string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", subject),
		Operation:  operation,
	}
}

// TimeoutError reports that a job did not reach a terminal state in time.
type TimeoutError struct {
	RID   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: job %s not finished after %s", e.RID, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// IsRetryable reports whether an error is worth retrying for idempotent calls.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
