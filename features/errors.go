package features

import "github.com/pkg/errors"

var (
	// ErrInvalidInput covers empty feature sets, mismatched descriptor
	// dimensionality, malformed frames and non-positive rectangles. It is always
	// the caller's responsibility and is never coerced silently.
	ErrInvalidInput = errors.New("invalid input")
)
