package limiter

import "errors"

// Error variables for policy validation and store operations.
var (
	// ErrInvalidRequests is returned when a policy quota is not positive.
	ErrInvalidRequests = errors.New("limiter: requests must be positive")

	// ErrInvalidWindow is returned when a policy window is not positive.
	ErrInvalidWindow = errors.New("limiter: window must be positive")

	// ErrInvalidBurst is returned when a burst multiplier is below 1.0.
	ErrInvalidBurst = errors.New("limiter: burst multiplier must be at least 1.0")

	// ErrInvalidPolicy is returned for other malformed policy fields.
	ErrInvalidPolicy = errors.New("limiter: invalid policy")

	// ErrUnknownAlgorithm is returned when an algorithm name does not parse.
	ErrUnknownAlgorithm = errors.New("limiter: unknown algorithm")

	// ErrStoreUnavailable wraps counter store failures. The engine converts
	// it into a fail-open decision; it never reaches HTTP callers.
	ErrStoreUnavailable = errors.New("limiter: counter store unavailable")
)
