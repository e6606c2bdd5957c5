package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies application errors so callers can decide whether a
// failure is terminal for a run, contained to one analysis, or fatal at
// startup.
type ErrorKind string

const (
	ErrDocumentParse ErrorKind = "document_parse"
	ErrImageDecode   ErrorKind = "image_decode"
	ErrAnalysis      ErrorKind = "analysis"
	ErrConfiguration ErrorKind = "configuration"
)

// AppError is a classified error with an optional cause.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewDocumentParseError marks an upload that cannot be read as a PDF.
func NewDocumentParseError(message string, err error) *AppError {
	return &AppError{Kind: ErrDocumentParse, Message: message, Err: err}
}

// NewImageDecodeError marks a single embedded image that could not be decoded.
func NewImageDecodeError(message string, err error) *AppError {
	return &AppError{Kind: ErrImageDecode, Message: message, Err: err}
}

// NewAnalysisError marks a failed LLM call or an unparseable response.
func NewAnalysisError(kind AnalysisKind, message string, err error) *AppError {
	return &AppError{Kind: ErrAnalysis, Message: fmt.Sprintf("%s: %s", kind, message), Err: err}
}

// NewConfigurationError marks missing or invalid startup configuration.
func NewConfigurationError(message string, err error) *AppError {
	return &AppError{Kind: ErrConfiguration, Message: message, Err: err}
}

// IsKind reports whether err (or anything it wraps) is an AppError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
