package model

import (
	"errors"
	"fmt"
)

// ProviderError wraps a failure returned by an LLM provider call.
type ProviderError struct {
	Provider string
	Message  string
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// NewProviderError constructs a ProviderError.
func NewProviderError(provider, message string) ProviderError {
	return ProviderError{Provider: provider, Message: message}
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var e ProviderError
	return errors.As(err, &e)
}

// ToolError wraps a failure raised by a tool call. Malformed tool-call JSON
// that survives brace-rebalancing repair is reported as a ParseError instead.
type ToolError struct {
	Tool    string
	Message string
}

func (e ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// NewToolError constructs a ToolError.
func NewToolError(tool, message string) ToolError {
	return ToolError{Tool: tool, Message: message}
}

// IsToolError reports whether err is (or wraps) a ToolError.
func IsToolError(err error) bool {
	var e ToolError
	return errors.As(err, &e)
}

// ValidationError represents a ward or input-schema validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var e ValidationError
	return errors.As(err, &e)
}

// ParseError represents a failure to parse a cascade document, SQL
// statement, or tool-call payload.
type ParseError struct {
	Source  string
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Source, e.Message)
}

// NewParseError constructs a ParseError.
func NewParseError(source, message string) ParseError {
	return ParseError{Source: source, Message: message}
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var e ParseError
	return errors.As(err, &e)
}

// TimeoutError represents a cell, candidate, or reforge step that exceeded
// its deadline.
type TimeoutError struct {
	CellName string
	Message  string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timeout in cell %s: %s", e.CellName, e.Message)
}

// NewTimeoutError constructs a TimeoutError.
func NewTimeoutError(cellName, message string) TimeoutError {
	return TimeoutError{CellName: cellName, Message: message}
}

// IsTimeoutError reports whether err is (or wraps) a TimeoutError.
func IsTimeoutError(err error) bool {
	var e TimeoutError
	return errors.As(err, &e)
}

// CanceledError represents a session aborted by caller cancellation rather
// than by engine failure.
type CanceledError struct {
	SessionID string
}

func (e CanceledError) Error() string {
	return fmt.Sprintf("session %s canceled", e.SessionID)
}

// NewCanceledError constructs a CanceledError.
func NewCanceledError(sessionID string) CanceledError {
	return CanceledError{SessionID: sessionID}
}

// IsCanceledError reports whether err is (or wraps) a CanceledError.
func IsCanceledError(err error) bool {
	var e CanceledError
	return errors.As(err, &e)
}

// CandidateExhaustionError represents all_or_nothing or first_valid
// candidate modes running out of candidates without a winner.
type CandidateExhaustionError struct {
	CellName string
	Attempts int
}

func (e CandidateExhaustionError) Error() string {
	return fmt.Sprintf("cell %s: all %d candidates failed", e.CellName, e.Attempts)
}

// NewCandidateExhaustionError constructs a CandidateExhaustionError.
func NewCandidateExhaustionError(cellName string, attempts int) CandidateExhaustionError {
	return CandidateExhaustionError{CellName: cellName, Attempts: attempts}
}

// IsCandidateExhaustionError reports whether err is (or wraps) a
// CandidateExhaustionError.
func IsCandidateExhaustionError(err error) bool {
	var e CandidateExhaustionError
	return errors.As(err, &e)
}

// PolicyError represents a run refused by an engine policy: a cascade nested
// beyond the maximum depth, or a for_each_row cell with no row source.
type PolicyError struct {
	Policy  string
	Message string
}

func (e PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.Policy, e.Message)
}

// NewPolicyError constructs a PolicyError.
func NewPolicyError(policy, message string) PolicyError {
	return PolicyError{Policy: policy, Message: message}
}

// IsPolicyError reports whether err is (or wraps) a PolicyError.
func IsPolicyError(err error) bool {
	var e PolicyError
	return errors.As(err, &e)
}

// Sentinel errors retained for simple not-found/conflict checks outside the
// typed-error hierarchy (e.g. SessionStore lookups).
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
