package native

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// objectHeaderSize is the arena footprint reserved for every kernel object so
// its address is a real, unique pointer.
const objectHeaderSize = 16

// Module couples a Memory arena with the kernel error slot and the table of
// stateful kernel objects.
type Module struct {
	Memory *Memory

	mu        sync.Mutex
	lastError string
	objects   map[Ptr]any
}

// NewModule creates a module with a fresh arena.
func NewModule() *Module {
	return &Module{
		Memory:  NewMemory(),
		objects: make(map[Ptr]any),
	}
}

// Fail records message in the error slot and returns code. Kernels return its
// result directly.
func (m *Module) Fail(code int, format string, args ...any) int {
	m.mu.Lock()
	m.lastError = fmt.Sprintf(format, args...)
	m.mu.Unlock()
	return code
}

// GetError returns the message left by the last failing kernel call.
func (m *Module) GetError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Check converts a kernel status code into an error. Every kernel call site
// goes through Check; a non-zero code is never ignored.
func (m *Module) Check(code int) error {
	if code == CodeOK {
		return nil
	}
	err := &Error{Code: code, Message: m.GetError()}
	logrus.WithFields(logrus.Fields{
		"function": "Module.Check",
		"code":     code,
		"error":    err.Message,
	}).Debug("Kernel call failed")
	return err
}

// NewObject stores state in the object table and returns its address.
func (m *Module) NewObject(state any) (Ptr, error) {
	ptr, err := m.Memory.Malloc(objectHeaderSize)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.objects[ptr] = state
	m.mu.Unlock()
	return ptr, nil
}

// Object looks up the state stored at ptr.
func (m *Module) Object(ptr Ptr) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.objects[ptr]
	return state, ok
}

// DestroyObject removes the object at ptr and frees its arena block.
func (m *Module) DestroyObject(ptr Ptr) error {
	m.mu.Lock()
	_, ok := m.objects[ptr]
	delete(m.objects, ptr)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: destroy of object %d", ErrInvalidPointer, ptr)
	}
	return m.Memory.Free(ptr)
}

// LiveObjects reports the number of kernel objects not yet destroyed.
func (m *Module) LiveObjects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
