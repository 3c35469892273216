// Package errs defines the typed error kinds the ingest core can return,
// so callers at the process boundary can pick an exit status without
// string-matching error messages.
package errs

import "fmt"

// Kind identifies the class of failure that occurred.
type Kind int

const (
	KindConfig Kind = iota
	KindSingleInstance
	KindDisplay
	KindSocketSetup
	KindGraphBuild
	KindGraphLink
	KindGraphState
	KindDecoderInit
	KindDecoderStart
	KindThreadSpawn
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ErrConfig"
	case KindSingleInstance:
		return "ErrSingleInstance"
	case KindDisplay:
		return "ErrDisplay"
	case KindSocketSetup:
		return "ErrSocketSetup"
	case KindGraphBuild:
		return "ErrGraphBuild"
	case KindGraphLink:
		return "ErrGraphLink"
	case KindGraphState:
		return "ErrGraphState"
	case KindDecoderInit:
		return "ErrDecoderInit"
	case KindDecoderStart:
		return "ErrDecoderStart"
	case KindThreadSpawn:
		return "ErrThreadSpawn"
	case KindTransient:
		return "ErrTransient"
	default:
		return "ErrUnknown"
	}
}

// Error wraps a Kind with the underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func Wrap(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, errs.KindSocketSetup)-style checks is not directly
// supported (Kind is not an error); use errors.As with *Error and compare Kind.
