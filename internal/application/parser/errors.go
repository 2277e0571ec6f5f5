package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationErrorKind classifies command validation failures
type ValidationErrorKind string

const (
	ErrKindEmptyCommand      ValidationErrorKind = "empty_command"
	ErrKindUnknownModifier   ValidationErrorKind = "unknown_modifier"
	ErrKindDuplicateModifier ValidationErrorKind = "duplicate_modifier"
	ErrKindUnknownPrompt     ValidationErrorKind = "unknown_prompt"
	ErrKindMalformedJSON     ValidationErrorKind = "malformed_json"
	ErrKindUnsupported       ValidationErrorKind = "unsupported_format"
)

// ValidationError is returned for commands the caller must fix. It is never fatal.
type ValidationError struct {
	Kind           ValidationErrorKind
	Message        string
	Suggestions    []string
	ValidModifiers []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	if len(e.ValidModifiers) > 0 {
		fmt.Fprintf(&b, " (valid modifiers: %s)", strings.Join(e.ValidModifiers, ", "))
	}
	return b.String()
}

// AsValidationError extracts a ValidationError from err
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
