package models

import (
	"errors"
	"fmt"
)

// Error codes used across the fetch → extract → write pipeline.
const (
	ErrCodeTransport    = "TRANSPORT_ERROR"
	ErrCodeHTTPStatus   = "HTTP_STATUS_ERROR"
	ErrCodeDecode       = "DECODE_ERROR"
	ErrCodeIO           = "IO_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	// StatusCode is the HTTP status for ErrCodeHTTPStatus, zero otherwise.
	StatusCode int
	Err        error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewStatusError creates an ErrCodeHTTPStatus error for a non-2xx response.
func NewStatusError(statusCode int, url string) *ScrapeError {
	return &ScrapeError{
		Code:       ErrCodeHTTPStatus,
		Message:    fmt.Sprintf("HTTP %d for %s", statusCode, url),
		StatusCode: statusCode,
	}
}

// CodeOf returns the code of the first ScrapeError in err's chain,
// or "" if there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
