package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a service failure so callers can pick a policy without
// looking at error text.
type Kind int

const (
	// Permanent failures will not succeed on retry.
	Permanent Kind = iota
	// Transient failures may succeed later.
	Transient
	// NeedsCredential means the API key is missing or rejected.
	NeedsCredential
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case NeedsCredential:
		return "needs credential"
	default:
		return "permanent"
	}
}

// Sentinels for errors.Is matching on ServiceError kinds.
var (
	ErrPermanent       = errors.New("permanent service failure")
	ErrTransient       = errors.New("transient service failure")
	ErrNeedsCredential = errors.New("service credential missing or invalid")
)

// ServiceError is a classified failure of an external service call.
type ServiceError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrPermanent:
		return e.Kind == Permanent
	case ErrTransient:
		return e.Kind == Transient
	case ErrNeedsCredential:
		return e.Kind == NeedsCredential
	}
	return false
}

// NewError builds a ServiceError.
func NewError(kind Kind, op string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a classified error. Unclassified errors count
// as permanent.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return Permanent
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return NeedsCredential
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return Transient
	default:
		return Permanent
	}
}

// FromStatus builds the error for a non-2xx response.
func FromStatus(op string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return NewError(KindForStatus(code), op, fmt.Errorf("server returned status %d: %s", code, msg))
}

// Classify wraps a transport error. Context cancellation stays permanent;
// timeouts and network errors are transient. Already classified errors
// pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return NewError(Permanent, op, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return NewError(Transient, op, err)
	}
	return NewError(Permanent, op, err)
}
