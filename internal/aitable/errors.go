package aitable

import (
	"fmt"
	"strings"
)

// FallbackMessage is reported when the remote API gives no message of its own.
const FallbackMessage = "remote API request failed"

// RemoteAPIError is a non-success answer from the remote API: either a non-2xx
// status or a 2xx envelope with success:false.
type RemoteAPIError struct {
	StatusCode int
	Status     string
	Code       int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = FallbackMessage
	}
	if e.Status != "" {
		return fmt.Sprintf("%s: %s", e.Status, msg)
	}
	return msg
}

// ValidationError reports a missing or malformed input caught before any
// network call is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// MissingParameterError is a ValidationError naming the absent parameters.
type MissingParameterError struct {
	Names []string
}

func (e *MissingParameterError) Error() string {
	return "missing required parameters: " + strings.Join(e.Names, ", ")
}
