package native

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// MaxMemoryBytes caps the arena size.
	MaxMemoryBytes = 1 << 30

	// wordSize is the allocation granularity; every block is float32 aligned.
	wordSize = 4

	// heapBase keeps address zero reserved as the null pointer.
	heapBase = 16
)

// Ptr is a byte address into a Memory arena. Zero is the null pointer.
type Ptr uint32

// Memory is a growable linear arena of float32 words addressed by byte pointers.
//
// Freed blocks are kept on per-size free lists and handed out again for
// requests of the same rounded size.
type Memory struct {
	mu     sync.Mutex
	words  []float32
	top    uint32
	blocks map[Ptr]uint32
	free   map[uint32][]Ptr
}

// NewMemory creates an empty arena.
func NewMemory() *Memory {
	return &Memory{
		words:  make([]float32, heapBase/wordSize),
		top:    heapBase,
		blocks: make(map[Ptr]uint32),
		free:   make(map[uint32][]Ptr),
	}
}

func roundSize(size uint32) uint32 {
	return (size + wordSize - 1) &^ (wordSize - 1)
}

// Malloc reserves size bytes and returns the block's address.
func (m *Memory) Malloc(size uint32) (Ptr, error) {
	if size == 0 {
		return 0, ErrZeroAllocation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mallocLocked(roundSize(size))
}

func (m *Memory) mallocLocked(size uint32) (Ptr, error) {
	if list := m.free[size]; len(list) > 0 {
		ptr := list[len(list)-1]
		m.free[size] = list[:len(list)-1]
		m.blocks[ptr] = size
		clear(m.words[ptr/wordSize : (uint32(ptr)+size)/wordSize])
		return ptr, nil
	}

	if uint64(m.top)+uint64(size) > MaxMemoryBytes {
		logrus.WithFields(logrus.Fields{
			"function":  "Memory.Malloc",
			"requested": size,
			"in_use":    m.top,
		}).Error("Native arena exhausted")
		return 0, fmt.Errorf("%w: %d bytes requested with %d in use", ErrOutOfMemory, size, m.top)
	}

	ptr := Ptr(m.top)
	m.top += size
	need := int(m.top / wordSize)
	if need > len(m.words) {
		grown := make([]float32, need, need+need/2)
		copy(grown, m.words)
		m.words = grown
	}
	m.blocks[ptr] = size
	return ptr, nil
}

// Free returns a block to the arena. Freeing an unknown or already freed
// pointer returns ErrInvalidPointer.
func (m *Memory) Free(ptr Ptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.freeLocked(ptr)
}

func (m *Memory) freeLocked(ptr Ptr) error {
	size, ok := m.blocks[ptr]
	if !ok {
		return fmt.Errorf("%w: free of %d", ErrInvalidPointer, ptr)
	}
	delete(m.blocks, ptr)
	m.free[size] = append(m.free[size], ptr)
	return nil
}

// Realloc resizes a block, moving it when needed. A null ptr behaves like Malloc.
// The first min(old, new) bytes are preserved.
func (m *Memory) Realloc(ptr Ptr, size uint32) (Ptr, error) {
	if ptr == 0 {
		return m.Malloc(size)
	}
	if size == 0 {
		return 0, ErrZeroAllocation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	oldSize, ok := m.blocks[ptr]
	if !ok {
		return 0, fmt.Errorf("%w: realloc of %d", ErrInvalidPointer, ptr)
	}
	size = roundSize(size)
	if size == oldSize {
		return ptr, nil
	}

	newPtr, err := m.mallocLocked(size)
	if err != nil {
		return 0, err
	}
	n := min(size, oldSize) / wordSize
	copy(m.words[uint32(newPtr)/wordSize:uint32(newPtr)/wordSize+n], m.words[uint32(ptr)/wordSize:uint32(ptr)/wordSize+n])
	if err := m.freeLocked(ptr); err != nil {
		return 0, err
	}
	return newPtr, nil
}

// Float32s returns a view of byteLength bytes starting at ptr. The range must
// lie inside a single live block.
func (m *Memory) Float32s(ptr Ptr, byteLength uint32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byteLength%wordSize != 0 || uint32(ptr)%wordSize != 0 {
		return nil, fmt.Errorf("%w: unaligned view %d+%d", ErrOutOfBounds, ptr, byteLength)
	}
	base, size, ok := m.blockContaining(ptr)
	if !ok {
		return nil, fmt.Errorf("%w: view of %d", ErrInvalidPointer, ptr)
	}
	if uint64(ptr)+uint64(byteLength) > uint64(base)+uint64(size) {
		return nil, fmt.Errorf("%w: view %d+%d exceeds block %d+%d", ErrOutOfBounds, ptr, byteLength, base, size)
	}
	start := uint32(ptr) / wordSize
	return m.words[start : start+byteLength/wordSize], nil
}

// blockContaining finds the live block holding ptr. Interior pointers are
// allowed so kernels can address a window of a larger buffer.
func (m *Memory) blockContaining(ptr Ptr) (Ptr, uint32, bool) {
	if size, ok := m.blocks[ptr]; ok {
		return ptr, size, true
	}
	for base, size := range m.blocks {
		if ptr > base && uint32(ptr) < uint32(base)+size {
			return base, size, true
		}
	}
	return 0, 0, false
}

// BlockSize reports the rounded size of the live block at ptr.
func (m *Memory) BlockSize(ptr Ptr) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, ok := m.blocks[ptr]
	return size, ok
}

// LiveBlocks reports the number of allocated blocks.
func (m *Memory) LiveBlocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}
