package analysis

import "errors"

var (
	// ErrCancelled indicates the work was superseded or its context ended.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrNoCalculation indicates frames or a result were requested before
	// the calculation was initialized.
	ErrNoCalculation = errors.New("no calculation in progress")

	// ErrInvalidArgs indicates a message whose arguments do not match its
	// action.
	ErrInvalidArgs = errors.New("invalid action arguments")

	// ErrNoSource indicates a Source without an Open function.
	ErrNoSource = errors.New("track has no audio source")

	// ErrIncompleteConfig indicates a constructor was missing a dependency.
	ErrIncompleteConfig = errors.New("incomplete configuration")

	// ErrBufferNotReturned indicates the backend kept a transferred buffer.
	ErrBufferNotReturned = errors.New("transferred buffer not returned")
)
