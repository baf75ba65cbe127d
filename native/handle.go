package native

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle owns a kernel object pointer and releases it at most once.
//
// After Release the stored pointer is zero; Ptr and Release then report
// ErrHandleReleased.
type Handle struct {
	mu      sync.Mutex
	ptr     Ptr
	release func(Ptr) error
}

// NewHandle wraps ptr; release is invoked exactly once by the first Release.
func NewHandle(ptr Ptr, release func(Ptr) error) *Handle {
	return &Handle{ptr: ptr, release: release}
}

// Ptr returns the owned pointer, or ErrHandleReleased.
func (h *Handle) Ptr() (Ptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr == 0 {
		return 0, ErrHandleReleased
	}
	return h.ptr, nil
}

// Release frees the owned object. A second call is a programming error: it is
// logged and returns ErrHandleReleased without touching the arena.
func (h *Handle) Release() error {
	h.mu.Lock()
	ptr := h.ptr
	h.ptr = 0
	h.mu.Unlock()

	if ptr == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Handle.Release",
		}).Error("Double release of native handle")
		return ErrHandleReleased
	}
	if h.release == nil {
		return nil
	}
	return h.release(ptr)
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptr == 0
}
