package feed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	KindSizeExceeded        ErrorKind = "SIZE_EXCEEDED"
	KindParseError          ErrorKind = "PARSE_ERROR"
	KindSchema              ErrorKind = "SCHEMA"
	KindDateFormat          ErrorKind = "DATE_FORMAT"
	KindDateFuture          ErrorKind = "DATE_FUTURE"
	KindURIInvalid          ErrorKind = "URI_INVALID"
	KindPercentageFormat    ErrorKind = "PERCENTAGE_FORMAT"
	KindMetricFormat        ErrorKind = "METRIC_FORMAT"
	KindMetricInconsistent  ErrorKind = "METRIC_INCONSISTENT"
	KindCategoryFormat      ErrorKind = "CATEGORY_FORMAT"
	KindCategoryNonstandard ErrorKind = "CATEGORY_NONSTANDARD"
	KindLanguageUnsupported ErrorKind = "LANGUAGE_UNSUPPORTED"
	KindRetentionTooShort   ErrorKind = "RETENTION_TOO_SHORT"
	KindSignatureInvalid    ErrorKind = "SIGNATURE_INVALID"
)

// ValidationError is one structural or semantic defect of a document.
// Defects are values: validation never fails with a Go error.
type ValidationError struct {
	Kind     ErrorKind `json:"code"`
	Message  string    `json:"message"`
	Location string    `json:"location,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Location, e.Message)
}

// NewError builds a ValidationError with a formatted message.
func NewError(kind ErrorKind, location, format string, args ...any) ValidationError {
	return ValidationError{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Location: location,
	}
}

var ErrSizeExceeded = errors.New("document exceeds maximum size")

// ParseError wraps a failure to turn bytes into a Document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Kind maps a Parser error to the ValidationError kind it reports as.
func Kind(err error) ErrorKind {
	if errors.Is(err, ErrSizeExceeded) {
		return KindSizeExceeded
	}
	return KindParseError
}
