package capability

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the capability catalog and registry.
var (
	ErrNotFound      = errors.New("capability not found")
	ErrAlreadyExists = errors.New("capability already registered")
	ErrEmptyName     = errors.New("capability name is empty")
	ErrNilCapability = errors.New("capability is nil")
	ErrUnbound       = errors.New("node has no bound capability")
)

// Kind classifies capability failures.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindRateLimited       Kind = "rate_limited"
	KindMalformedResponse Kind = "malformed_response"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
	KindValidation        Kind = "validation"
	KindCanceled          Kind = "canceled"
)

// CapabilityError reports a failed external call made on behalf of a node.
type CapabilityError struct {
	Node string
	Kind Kind
	Err  error
}

func (e *CapabilityError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("capability %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("node %s: capability %s: %v", e.Node, e.Kind, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ValidationError reports malformed input or configuration observed while
// running a node.
type ValidationError struct {
	Node  string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Node == "":
		return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
	case e.Field == "":
		return fmt.Sprintf("node %s: validation failed: %v", e.Node, e.Err)
	default:
		return fmt.Sprintf("node %s: validation failed for %s: %v", e.Node, e.Field, e.Err)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Timeout, RateLimited, Malformed, and Unavailable are shorthand
// constructors for implementations that do not know their node id.
func Timeout(err error) error     { return &CapabilityError{Kind: KindTimeout, Err: err} }
func RateLimited(err error) error { return &CapabilityError{Kind: KindRateLimited, Err: err} }
func Malformed(err error) error   { return &CapabilityError{Kind: KindMalformedResponse, Err: err} }
func Unavailable(err error) error { return &CapabilityError{Kind: KindUnavailable, Err: err} }

// Invalid reports a malformed value for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// KindOf returns the failure kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnavailable
	}
}

// normalize attaches node to err and converts unknown errors into a
// *CapabilityError.
func normalize(node string, err error) error {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		out := *ce
		if out.Node == "" {
			out.Node = node
		}
		return &out
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		out := *ve
		if out.Node == "" {
			out.Node = node
		}
		return &out
	}
	return &CapabilityError{Node: node, Kind: KindOf(err), Err: err}
}
