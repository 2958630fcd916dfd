package catalog

import (
	"errors"
	"fmt"
)

// ErrorClass is the public family an error belongs to, one per entry point.
type ErrorClass int

const (
	ClassIngest ErrorClass = iota + 1
	ClassQuery
	ClassFederation
	ClassResource
	ClassSourceInfo
	ClassTransform
)

func (c ErrorClass) String() string {
	switch c {
	case ClassIngest:
		return "ingest"
	case ClassQuery:
		return "query"
	case ClassFederation:
		return "federation"
	case ClassResource:
		return "resource"
	case ClassSourceInfo:
		return "source info"
	case ClassTransform:
		return "transform"
	}
	return "catalog"
}

// ErrorKind is the cause category of an error.
type ErrorKind int

const (
	// KindStructural: malformed request (nil, empty, missing attribute).
	KindStructural ErrorKind = iota + 1
	// KindUnavailable: a required local provider or store is down.
	KindUnavailable
	// KindPolicyVeto: a policy or access plugin stopped the operation.
	KindPolicyVeto
	// KindPluginSoftFailure: a pre/post plugin failed. Only logged by the
	// framework; exposed for plugin authors and tests.
	KindPluginSoftFailure
	// KindStorage: a storage provider or transaction failed.
	KindStorage
	// KindRemoteDispatch: a remote source or store failed.
	KindRemoteDispatch
	KindNotFound
	KindUnsupported
	// KindInternal: an unexpected failure caught at the API boundary.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindUnavailable:
		return "unavailable"
	case KindPolicyVeto:
		return "policy veto"
	case KindPluginSoftFailure:
		return "plugin failure"
	case KindStorage:
		return "storage"
	case KindRemoteDispatch:
		return "remote dispatch"
	case KindNotFound:
		return "not found"
	case KindUnsupported:
		return "unsupported"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is the single error type returned by the framework's entry points.
type Error struct {
	Class    ErrorClass
	Kind     ErrorKind
	Message  string
	SourceID string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Class.String() + " failure"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.SourceID != "" {
		msg += fmt.Sprintf(" (source %s)", e.SourceID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by class and kind. A zero class or kind on the
// target acts as a wildcard; targets carrying a message only match
// themselves.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.SourceID != "" || t.Err != nil {
		return false
	}
	if t.Class != 0 && t.Class != e.Class {
		return false
	}
	if t.Kind != 0 && t.Kind != e.Kind {
		return false
	}
	return true
}

var (
	ErrIngest     = &Error{Class: ClassIngest}
	ErrQuery      = &Error{Class: ClassQuery}
	ErrFederation = &Error{Class: ClassFederation}
	ErrResource   = &Error{Class: ClassResource}
	ErrSourceInfo = &Error{Class: ClassSourceInfo}
	ErrTransform  = &Error{Class: ClassTransform}

	ErrStructural  = &Error{Kind: KindStructural}
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrPolicyVeto  = &Error{Kind: KindPolicyVeto}
	ErrStorage     = &Error{Kind: KindStorage}
	ErrInternal    = &Error{Kind: KindInternal}

	ErrResourceNotFound     = &Error{Class: ClassResource, Kind: KindNotFound}
	ErrResourceNotSupported = &Error{Class: ClassResource, Kind: KindUnsupported}
	ErrUnsupportedQuery     = &Error{Class: ClassQuery, Kind: KindUnsupported}
)

func NewError(class ErrorClass, kind ErrorKind, msg string, err error) *Error {
	return &Error{Class: class, Kind: kind, Message: msg, Err: err}
}

func IngestError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassIngest, kind, msg, err)
}

func QueryError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassQuery, kind, msg, err)
}

func FederationError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassFederation, kind, msg, err)
}

func ResourceError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassResource, kind, msg, err)
}

func SourceInfoError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassSourceInfo, kind, msg, err)
}

func TransformError(kind ErrorKind, msg string, err error) *Error {
	return NewError(ClassTransform, kind, msg, err)
}

// KindOf returns the kind of the outermost *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ClassOf returns the class of the outermost *Error in err's chain, or 0.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return 0
}
