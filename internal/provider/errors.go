package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rotisserie/eris"

	"github.com/brandforge/suggest-engine/pkg/chatapi"
	"github.com/brandforge/suggest-engine/pkg/geminiapi"
)

// ErrNoProviders signals a configuration error: no enabled provider has
// a usable credential. The request fails without dispatching.
var ErrNoProviders = eris.New("provider: no enabled providers with usable credentials")

// Class partitions provider call failures for recording and diagnostics.
type Class string

const (
	// ClassUnavailable covers timeouts, transport failures, and non-2xx
	// responses.
	ClassUnavailable Class = "provider_unavailable"
	// ClassMalformedEnvelope means the provider responded but not in the
	// expected envelope shape.
	ClassMalformedEnvelope Class = "malformed_envelope"
)

// CallError is a classified provider-level failure. It never escalates
// beyond the provider that produced it.
type CallError struct {
	Provider string
	Class    Class
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a ProviderUnavailable failure.
func Unavailable(provider string, err error) *CallError {
	return &CallError{Provider: provider, Class: ClassUnavailable, Err: err}
}

// Malformed wraps err as a MalformedEnvelope failure.
func Malformed(provider string, err error) *CallError {
	return &CallError{Provider: provider, Class: ClassMalformedEnvelope, Err: err}
}

// ClassOf extracts the failure class from an error chain, or "" when the
// error is not a classified provider failure.
func ClassOf(err error) Class {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ""
}

// classify maps raw client errors onto the failure taxonomy: envelope
// decode problems become MalformedEnvelope, everything else that stopped
// the call (timeout, DNS, connection reset, non-2xx) is
// ProviderUnavailable.
func classify(provider string, err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}

	var decodeErr *chatapi.DecodeError
	if errors.As(err, &decodeErr) || eris.Is(err, geminiapi.ErrInvalidEnvelope) || eris.Is(err, geminiapi.ErrMissingText) {
		return Malformed(provider, err)
	}

	var statusErr *chatapi.StatusError
	var gstatusErr *geminiapi.StatusError
	if errors.As(err, &statusErr) || errors.As(err, &gstatusErr) {
		return Unavailable(provider, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable(provider, err)
	}

	return Unavailable(provider, err)
}
