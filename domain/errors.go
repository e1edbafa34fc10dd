package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags a failed operation so callers can branch on it.
type ErrorKind string

const (
	KindCredential  ErrorKind = "credential"
	KindTransport   ErrorKind = "transport"
	KindImage       ErrorKind = "image"
	KindProvider    ErrorKind = "provider"
	KindUnavailable ErrorKind = "unavailable"
)

// Sentinels wrapped by adapters to classify a failure.
var (
	ErrCredential = errors.New("credential")
	ErrTransport  = errors.New("transport")
	ErrImage      = errors.New("image")
	ErrProvider   = errors.New("provider")

	// ErrUnavailable marks an operation attempted without an open chat.
	ErrUnavailable = errors.New("chat unavailable")
)

// Shell-level sentinels.
var (
	ErrNoImage         = errors.New("no image uploaded")
	ErrAlreadyAnalyzed = errors.New("image already analyzed")
	ErrSessionNotFound = errors.New("session not found")
	ErrVoiceDisabled   = errors.New("voice is not configured")
	ErrNothingToSpeak  = errors.New("no assistant reply to speak")
	ErrEmptyMessage    = errors.New("message is empty")
)

// AnalyzeHint follows a failed analysis in the rendered transcript.
const AnalyzeHint = "Please ensure your API key is valid and you're using a supported image format."

type Op string

const (
	OpStartChat    Op = "Error starting chat"
	OpSendMessage  Op = "Error sending message"
	OpAnalyzeImage Op = "Error analyzing site plan"
)

// Error is the failure result of a model operation. Its message keeps the
// human-readable "<op>: <cause>" form shown to users.
type Error struct {
	Op   Op
	Kind ErrorKind
	Err  error
}

func NewError(op Op, err error) *Error {
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unavailable reports op as impossible because the session holds no chat.
// cause is the failure that left it without one, if known.
func Unavailable(op Op, cause error) *Error {
	var inner *Error
	if errors.As(cause, &inner) {
		cause = inner.Err
	}
	err := ErrUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnavailable, cause)
	}
	return &Error{Op: op, Kind: KindUnavailable, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a classified failure.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

func classify(err error) ErrorKind {
	var domainErr *Error
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Kind
	case errors.Is(err, ErrCredential):
		return KindCredential
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrImage):
		return KindImage
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindProvider
	}
}
