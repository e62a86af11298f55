package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrServer          = errors.New("analysis server error")
	ErrTransport       = errors.New("analysis transport error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrSubmitInFlight  = errors.New("submission already in progress")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// SubmissionError is the terminal outcome of a failed submission cycle.
// Message is the user-facing text; empty means the kind's fallback applies.
type SubmissionError struct {
	Kind       error
	Message    string
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e == nil {
		return "submission error"
	}
	parts := []string{}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status %d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *SubmissionError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NewValidationError() error {
	return &SubmissionError{Kind: ErrValidation, Message: MsgMissingInput}
}

func NewServerError(statusCode int, detail string) error {
	return &SubmissionError{Kind: ErrServer, Message: strings.TrimSpace(detail), StatusCode: statusCode}
}

func NewTransportError(message string, err error) error {
	return &SubmissionError{Kind: ErrTransport, Message: strings.TrimSpace(message), Err: err}
}

// UserMessage resolves the text shown in the form for a failed cycle.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var subErr *SubmissionError
	if errors.As(err, &subErr) && strings.TrimSpace(subErr.Message) != "" {
		return strings.TrimSpace(subErr.Message)
	}
	switch {
	case IsKind(err, ErrValidation):
		return MsgMissingInput
	case IsKind(err, ErrServer):
		return MsgAnalysisFailed
	default:
		return MsgBackendUnreachable
	}
}
