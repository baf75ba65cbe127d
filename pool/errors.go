package pool

import "errors"

var (
	// ErrNotCheckedOut indicates Free of an instance that is not checked out
	// under the given key.
	ErrNotCheckedOut = errors.New("instance not checked out under key")

	// ErrNilConstructor indicates Alloc was called without a constructor.
	ErrNilConstructor = errors.New("nil constructor")

	// ErrDetached indicates use of a buffer after its contents were transferred.
	ErrDetached = errors.New("buffer detached by transfer")
)
