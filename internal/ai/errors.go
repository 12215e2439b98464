package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/lecturelab/internal/httpx"
)

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrNoBackendAvailable  = errors.New("no ai backend available")
	ErrUnsupported         = errors.New("capability not supported by backend")
)

// ErrorKind separates failures worth retrying from those that will fail again.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// ProviderError is a classified failure of one backend call.
type ProviderError struct {
	Backend    string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s, status %d): %v", e.Backend, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *ProviderError) Transient() bool { return e.Kind == KindTransient }

// Classify wraps err into a *ProviderError for backend. Already classified
// errors pass through unchanged; nil stays nil.
func Classify(backend string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	out := &ProviderError{Backend: backend, Kind: KindPermanent, Err: err}
	var sc httpx.HTTPStatusCoder
	if errors.As(err, &sc) {
		out.StatusCode = sc.HTTPStatusCode()
	}

	switch {
	case errors.Is(err, ErrInferenceTimeout):
		out.Kind = KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTransient
		out.Err = fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	case errors.Is(err, ErrProviderUnavailable):
		out.Kind = KindTransient
	case errors.Is(err, ErrInvalidResponse), errors.Is(err, ErrUnsupported):
	case errors.Is(err, httpx.ErrDecode):
		out.Err = fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	case httpx.IsRetryableError(err):
		out.Kind = KindTransient
		out.Err = fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return out
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}
