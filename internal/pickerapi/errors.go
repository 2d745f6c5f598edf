package pickerapi

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the orchestrator boundary.
	ErrSessionCreate   = errors.New("pickerapi: session creation failed")
	ErrUpload          = errors.New("pickerapi: video upload failed")
	ErrProcessingStart = errors.New("pickerapi: processing start failed")
	ErrPoll            = errors.New("pickerapi: status poll failed")
	ErrResults         = errors.New("pickerapi: results fetch failed")
	ErrDownload        = errors.New("pickerapi: frame download failed")
	ErrSessionDelete   = errors.New("pickerapi: session delete failed")
)

// APIError is a rich error type that wraps the sentinel errors with context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("pickerapi: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
