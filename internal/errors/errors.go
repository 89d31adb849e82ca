package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Error types for the agentmap analyzer
type ErrorType string

const (
	// Startup errors
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeProvider     ErrorType = "provider"
	ErrorTypeQueryCompile ErrorType = "query_compile"

	// Per-file errors
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeAnalyzer ErrorType = "analyzer"
	ErrorTypeCodec    ErrorType = "codec"
	ErrorTypeIO       ErrorType = "io"
)

// Sentinel errors
var (
	ErrUnsupportedLanguage = stderrors.New("unsupported language")
	ErrNoAnchor            = stderrors.New("no anchor header found")
	ErrAnchorNotFound      = stderrors.New("anchor not found")
)

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// ProviderError is raised when a query provider cannot supply a program
type ProviderError struct {
	Provider   string
	Language   string
	Path       string
	Underlying error
	Timestamp  time.Time
}

// NewProviderError creates a new provider error
func NewProviderError(provider, lang, path string, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Language:   lang,
		Path:       path,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s provider failed for %s (%s): %v", e.Provider, e.Language, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s provider failed for %s: %v", e.Provider, e.Language, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// QueryCompileError is raised when a query program does not compile
type QueryCompileError struct {
	Language   string
	Kind       string
	Hash       string
	Preview    string
	Underlying error
	Timestamp  time.Time
}

// previewLen bounds the pattern text carried in a compile error
const previewLen = 60

// NewQueryCompileError creates a compile error with a preview of the pattern
func NewQueryCompileError(lang, kind, hash, pattern string, err error) *QueryCompileError {
	preview := pattern
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	return &QueryCompileError{
		Language:   lang,
		Kind:       kind,
		Hash:       hash,
		Preview:    preview,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *QueryCompileError) Error() string {
	return fmt.Sprintf("query %s/%s (%s) failed to compile near %q: %v",
		e.Language, e.Kind, e.Hash, e.Preview, e.Underlying)
}

// Unwrap returns the underlying error
func (e *QueryCompileError) Unwrap() error {
	return e.Underlying
}

// ParseError represents a parsing error
type ParseError struct {
	FilePath   string
	Language   string
	Line       int
	Column     int
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(path, lang string, line, column int, err error) *ParseError {
	return &ParseError{
		FilePath:   path,
		Language:   lang,
		Line:       line,
		Column:     column,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s:%d:%d (%s): %v",
		e.FilePath, e.Line, e.Column, e.Language, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// AnalyzerError is a per-file failure during analysis
type AnalyzerError struct {
	FilePath    string
	Stage       string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// NewAnalyzerError creates a new analyzer error
func NewAnalyzerError(stage, path string, err error) *AnalyzerError {
	return &AnalyzerError{
		FilePath:   path,
		Stage:      stage,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithRecoverable marks the error as recoverable
func (e *AnalyzerError) WithRecoverable(recoverable bool) *AnalyzerError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface
func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer %s failed for %s: %v", e.Stage, e.FilePath, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *AnalyzerError) Unwrap() error {
	return e.Underlying
}

// CodecError is an anchor encode or decode failure
type CodecError struct {
	Op         string
	FilePath   string
	Underlying error
	Timestamp  time.Time
}

// NewCodecError creates a new codec error
func NewCodecError(op, path string, err error) *CodecError {
	return &CodecError{
		Op:         op,
		FilePath:   path,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *CodecError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("anchor %s failed for %s: %v", e.Op, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("anchor %s failed: %v", e.Op, e.Underlying)
}

// Unwrap returns the underlying error
func (e *CodecError) Unwrap() error {
	return e.Underlying
}

// IoError represents a file or sink I/O failure
type IoError struct {
	Op         string
	Path       string
	Retried    bool
	Underlying error
	Timestamp  time.Time
}

// NewIoError creates a new I/O error
func NewIoError(op, path string, err error) *IoError {
	return &IoError{
		Op:         op,
		Path:       path,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *IoError) Error() string {
	suffix := ""
	if e.Retried {
		suffix = " (after retry)"
	}
	return fmt.Sprintf("io %s failed for %s%s: %v", e.Op, e.Path, suffix, e.Underlying)
}

// Unwrap returns the underlying error
func (e *IoError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// Kind returns the ErrorType of the first typed error in err's chain,
// or "" when there is none.
func Kind(err error) ErrorType {
	var (
		cfg  *ConfigError
		prov *ProviderError
		qce  *QueryCompileError
		pe   *ParseError
		ae   *AnalyzerError
		ce   *CodecError
		ioe  *IoError
	)
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &cfg):
		return ErrorTypeConfig
	case stderrors.As(err, &qce):
		return ErrorTypeQueryCompile
	case stderrors.As(err, &prov):
		return ErrorTypeProvider
	case stderrors.As(err, &pe):
		return ErrorTypeParse
	case stderrors.As(err, &ae):
		return ErrorTypeAnalyzer
	case stderrors.As(err, &ce):
		return ErrorTypeCodec
	case stderrors.As(err, &ioe):
		return ErrorTypeIO
	}
	return ""
}

// IsFatalForLanguage reports whether err disables a whole language
func IsFatalForLanguage(err error) bool {
	k := Kind(err)
	return k == ErrorTypeProvider || k == ErrorTypeQueryCompile
}

// IsConfig reports whether err is a configuration error
func IsConfig(err error) bool {
	return Kind(err) == ErrorTypeConfig
}
