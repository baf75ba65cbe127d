package native

import (
	"errors"
	"fmt"
)

// Kernel status codes. Zero means success.
const (
	CodeOK = iota
	CodeInvalidArgument
	CodeInvalidPointer
	CodeOutOfMemory
	CodeInvalidState
	CodeInsufficientData
)

// Arena errors.
var (
	// ErrZeroAllocation indicates a Malloc of zero bytes.
	ErrZeroAllocation = errors.New("zero-size allocation")

	// ErrOutOfMemory indicates the arena would exceed MaxMemoryBytes.
	ErrOutOfMemory = errors.New("native memory exhausted")

	// ErrInvalidPointer indicates a pointer that does not address a live block.
	ErrInvalidPointer = errors.New("invalid native pointer")

	// ErrOutOfBounds indicates a view that extends past its block.
	ErrOutOfBounds = errors.New("native view out of bounds")
)

// Handle errors.
var (
	// ErrHandleReleased indicates use of a handle after its object was freed.
	ErrHandleReleased = errors.New("native handle already released")
)

// Error is a failure reported by a kernel through its status code.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("native error %d", e.Code)
	}
	return fmt.Sprintf("native error %d: %s", e.Code, e.Message)
}
