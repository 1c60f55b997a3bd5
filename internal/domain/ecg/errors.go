package ecg

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindSizeExceeded     Kind = "size_exceeded"
	KindUnsupportedType  Kind = "unsupported_type"
	KindNoFileSelected   Kind = "no_file_selected"
	KindRequestFailed    Kind = "request_failed"
	KindInvalidBase64    Kind = "invalid_base64"
	KindMalformedPayload Kind = "malformed_payload"
)

// Category groups kinds the way they are surfaced.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryDispatch   Category = "dispatch"
	CategoryNetwork    Category = "network"
	CategoryDecode     Category = "decode"
	CategoryUnknown    Category = "unknown"
)

// Category returns the taxonomy group of the kind.
func (k Kind) Category() Category {
	switch k {
	case KindSizeExceeded, KindUnsupportedType:
		return CategoryValidation
	case KindNoFileSelected:
		return CategoryDispatch
	case KindRequestFailed:
		return CategoryNetwork
	case KindInvalidBase64, KindMalformedPayload:
		return CategoryDecode
	default:
		return CategoryUnknown
	}
}

// Error is the failure type carried by Failed states and returned by
// intake. Detail holds the reason text (status text, limit, file name).
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind against a sentinel without detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrSizeExceeded     = &Error{Kind: KindSizeExceeded}
	ErrUnsupportedType  = &Error{Kind: KindUnsupportedType}
	ErrNoFileSelected   = &Error{Kind: KindNoFileSelected}
	ErrRequestFailed    = &Error{Kind: KindRequestFailed}
	ErrInvalidBase64    = &Error{Kind: KindInvalidBase64}
	ErrMalformedPayload = &Error{Kind: KindMalformedPayload}
)

// ErrIllegalTransition is returned when a state change is not in the table.
var ErrIllegalTransition = errors.New("illegal analysis state transition")

func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// RequestFailed builds a network failure carrying the response status text.
func RequestFailed(statusText string, err error) *Error {
	return &Error{Kind: KindRequestFailed, Detail: statusText, Err: err}
}

// AsError extracts the *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CategoryOf returns the taxonomy group of err, or CategoryUnknown when err
// is not a pipeline failure.
func CategoryOf(err error) Category {
	if e, ok := AsError(err); ok {
		return e.Kind.Category()
	}
	return CategoryUnknown
}

// UserMessage converts a failure into the text shown to the user.
func UserMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		return "Failed to analyze ECG"
	}
	switch e.Kind {
	case KindSizeExceeded:
		if e.Detail != "" {
			return fmt.Sprintf("File size exceeds %s limit", e.Detail)
		}
		return "File size exceeds 10MB limit"
	case KindUnsupportedType:
		if e.Detail != "" {
			return "Invalid file type: " + e.Detail
		}
		return "Invalid file type"
	case KindNoFileSelected:
		return "Please upload an ECG image first"
	case KindRequestFailed:
		if e.Detail != "" {
			return "Failed to analyze ECG: " + e.Detail
		}
		return "Failed to analyze ECG"
	case KindInvalidBase64, KindMalformedPayload:
		return "Failed to analyze ECG: invalid response from analysis service"
	default:
		return "Failed to analyze ECG"
	}
}
