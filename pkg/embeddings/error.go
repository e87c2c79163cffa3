package embeddings

import (
	"fmt"

	"github.com/papercomputeco/notevec/pkg/vector"
)

// FailureKind classifies how an embedding request failed.
type FailureKind string

const (
	// KindTransport means the backend could not be reached.
	KindTransport FailureKind = "transport"

	// KindStatus means the backend answered with a non-success status.
	KindStatus FailureKind = "status"

	// KindDecode means the backend answer could not be decoded.
	KindDecode FailureKind = "decode"

	// KindEmpty means the backend answered without a vector.
	KindEmpty FailureKind = "empty"
)

// ProviderError is returned by embedders when the backend fails. It matches
// vector.ErrProvider and unwraps to its cause.
type ProviderError struct {
	// Provider names the backend, e.g. "ollama".
	Provider string

	Kind FailureKind

	// Status is the HTTP status for KindStatus failures.
	Status int

	// Message is the backend specific description, such as a response body.
	Message string

	Err error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s %s failure", vector.ErrProvider, e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{vector.ErrProvider}
	}
	return []error{vector.ErrProvider, e.Err}
}
