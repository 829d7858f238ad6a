package credential

import "errors"

var (
	// ErrInvalidInput indicates a secret rejected by policy (empty, too long)
	// or a stored value that is not a recognised hash encoding.
	ErrInvalidInput = errors.New("credential: invalid input")
	// ErrUnavailable indicates the hashing primitive failed to produce output.
	ErrUnavailable = errors.New("credential: hashing unavailable")
)
