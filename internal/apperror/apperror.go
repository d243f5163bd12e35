package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without matching on text.
type Kind string

const (
	KindMissingCredential   Kind = "missing_credential"
	KindUploadInit          Kind = "upload_init_error"
	KindUploadTransfer      Kind = "upload_transfer_error"
	KindProcessingFailed    Kind = "processing_failed"
	KindRateLimited         Kind = "rate_limited"
	KindProvider            Kind = "provider_error"
	KindEmptyResponse       Kind = "empty_response"
	KindMalformedResponse   Kind = "malformed_response"
	KindInvalidTimeRange    Kind = "invalid_time_range"
	KindInvalidSourceFormat Kind = "invalid_source_format"
	KindTimeout             Kind = "timeout"
	KindTranscodeFailed     Kind = "transcode_failed"
	KindNotFound            Kind = "not_found"
	KindUnknown             Kind = "unknown"
)

// Error is a classified failure. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind with no message,
// so errors.Is(err, apperror.RateLimited) works against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	MissingCredential   = &Error{Kind: KindMissingCredential}
	UploadInit          = &Error{Kind: KindUploadInit}
	UploadTransfer      = &Error{Kind: KindUploadTransfer}
	ProcessingFailed    = &Error{Kind: KindProcessingFailed}
	RateLimited         = &Error{Kind: KindRateLimited}
	Provider            = &Error{Kind: KindProvider}
	EmptyResponse       = &Error{Kind: KindEmptyResponse}
	MalformedResponse   = &Error{Kind: KindMalformedResponse}
	InvalidTimeRange    = &Error{Kind: KindInvalidTimeRange}
	InvalidSourceFormat = &Error{Kind: KindInvalidSourceFormat}
	Timeout             = &Error{Kind: KindTimeout}
	TranscodeFailed     = &Error{Kind: KindTranscodeFailed}
	NotFound            = &Error{Kind: KindNotFound}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and display message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the display message of the first *Error in err's chain,
// falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
