package analysis

import (
	"errors"
	"fmt"
)

// TransportError means the analysis endpoint could not be reached, answered
// with a non-2xx status, or sent a body that is not a valid envelope.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	if e.Err != nil {
		return "analysis request failed: " + e.Err.Error()
	}
	return "analysis request failed"
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError carries the message of a status:false envelope verbatim.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string { return e.Message }

// Outcome classifies err for metrics and events.
func Outcome(err error) string {
	var te *TransportError
	var ae *ApplicationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ae):
		return "application_error"
	case errors.As(err, &te):
		return "transport_error"
	default:
		return "error"
	}
}
