package ttl

import "github.com/pkg/errors"

var (
	// ErrOutOfRange reports an index outside the bank, bit or parameter space.
	ErrOutOfRange = errors.New("index out of range")
	// ErrUnknownParameterKind reports a parameter index in the sentinel region.
	ErrUnknownParameterKind = errors.New("unknown parameter kind")
	// ErrStaleTopology reports a reference to a stream or line that is not provisioned.
	ErrStaleTopology = errors.New("stale topology reference")
	// ErrMissingParameter reports a stream without a host parameter object.
	ErrMissingParameter = errors.New("missing host parameter")
	// ErrWrongRole reports an operation the panel role does not support.
	ErrWrongRole = errors.New("operation not supported by role")
)
