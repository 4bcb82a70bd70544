package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/treecalc/types"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "rename", "calculate")
	Cause       string   // The underlying cause (e.g., "item not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("Failed to %s", e.Operation))
	} else {
		msg.WriteString("Operation failed")
	}

	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}

	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for invalid arguments
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
		Underlying:  types.ErrInvalid,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewDocumentError describes a failed treecalc operation by its error kind
func NewDocumentError(operation string, underlying error) *CLIError {
	cause := "operation failed"
	var suggestions []string

	switch types.KindOf(underlying) {
	case types.ErrNotFound:
		cause = "not found"
		suggestions = []string{CommonSuggestions.CheckRef, CommonSuggestions.CheckDocument}
	case types.ErrInvalid:
		cause = "not allowed"
		suggestions = []string{CommonSuggestions.RunHelp}
	case types.ErrMissingInput:
		cause = "missing input"
		suggestions = []string{CommonSuggestions.CheckData, CommonSuggestions.SetReduction}
	case types.ErrCorrupt:
		cause = "document structure is damaged"
		suggestions = []string{CommonSuggestions.RunCheck}
	case types.ErrCancelled:
		cause = "cancelled"
		suggestions = []string{CommonSuggestions.UseYes}
	case types.ErrIO:
		cause = "could not read or write a file"
		suggestions = []string{CommonSuggestions.CheckPerms}
	case types.ErrStale:
		cause = "the document changed in the meantime"
		suggestions = []string{CommonSuggestions.Retry}
	}

	details := ""
	if underlying != nil {
		details = underlying.Error()
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}

// WrapError wraps an existing error with CLI-friendly context
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	return NewDocumentError(operation, err)
}

// Common error messages and suggestions
var CommonSuggestions = struct {
	CheckRef      string
	CheckDocument string
	CheckData     string
	SetReduction  string
	RunCheck      string
	UseYes        string
	CheckPerms    string
	Retry         string
	RunHelp       string
	SetHistory    string
}{
	CheckRef:      "Items can be referenced by name or numeric id (try 'treecalc show --ids')",
	CheckDocument: "Verify --document points to a treecalc document",
	CheckData:     "Generate a data file with every leaf using 'treecalc template'",
	SetReduction:  "Give every composite a reduction with 'treecalc set-reduction'",
	RunCheck:      "Run 'treecalc check' for details",
	UseYes:        "Pass --yes to confirm without prompting",
	CheckPerms:    "Check file paths, extensions (.json, .yaml, .yml, optionally .zst) and permissions",
	Retry:         "Run the command again",
	RunHelp:       "Run command with --help for usage information",
	SetHistory:    "Set --history (or TREECALC_HISTORY) to a database path",
}
