package domain

import "errors"

var (
	// ErrNotFound means a city or coordinate could not be resolved
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable covers network errors, timeouts and non-2xx provider responses
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedResponse means the provider answered with an unexpected payload
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidInput means the user's free text had the wrong shape
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence wraps session or cache storage failures
	ErrPersistence = errors.New("persistence failure")
)

// Classify maps err onto the closed error taxonomy. Errors outside the
// taxonomy are reported as ErrUpstreamUnavailable.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrMalformedResponse):
		return ErrMalformedResponse
	case errors.Is(err, ErrInvalidInput):
		return ErrInvalidInput
	case errors.Is(err, ErrPersistence):
		return ErrPersistence
	default:
		return ErrUpstreamUnavailable
	}
}
