package tracking

import (
	"errors"
	"fmt"
	"strings"

	"storefront/api/models"
)

var ErrPurgeInProgress = errors.New("purge already in progress")

// Outcome is the result of a recording call. Telemetry callers treat anything
// but OutcomeInvalid as "nothing to fix on my side".
type Outcome string

const (
	OutcomeRecorded    Outcome = "recorded"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeUnavailable Outcome = "unavailable"
)

type Result struct {
	Outcome Outcome `json:"outcome"`
	EventID string  `json:"eventId,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned before any I/O when input is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func newValidationError(field, rule, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule, Message: msg}}}
}

// PurgeError reports a purge that stopped partway. Partial holds what was
// already deleted; committed batches are not rolled back.
type PurgeError struct {
	Partial models.PurgeResult
	Err     error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge failed after deleting %d sessions and %d events: %v",
		e.Partial.SessionsDeleted, e.Partial.PageViewsDeleted, e.Err)
}

func (e *PurgeError) Unwrap() error { return e.Err }
