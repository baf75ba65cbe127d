package trackcore

import "errors"

var (
	// ErrClosed is returned by a Core after Close.
	ErrClosed = errors.New("core closed")

	// ErrUnsupportedFormat indicates a file extension with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrStoreDisabled is returned by lookups when results are not persisted.
	ErrStoreDisabled = errors.New("result store disabled")
)
