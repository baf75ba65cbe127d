package native

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMallocFree(t *testing.T) {
	mem := NewMemory()

	ptr, err := mem.Malloc(10)
	require.NoError(t, err)
	assert.NotZero(t, ptr)
	assert.Zero(t, uint32(ptr)%wordSize)

	size, ok := mem.BlockSize(ptr)
	require.True(t, ok)
	assert.Equal(t, uint32(12), size)

	require.NoError(t, mem.Free(ptr))
	assert.ErrorIs(t, mem.Free(ptr), ErrInvalidPointer)

	again, err := mem.Malloc(12)
	require.NoError(t, err)
	assert.Equal(t, ptr, again, "same size class reuses the freed block")
}

func TestMemoryZeroAllocation(t *testing.T) {
	_, err := NewMemory().Malloc(0)
	assert.ErrorIs(t, err, ErrZeroAllocation)
}

func TestMemoryViews(t *testing.T) {
	mem := NewMemory()
	ptr, err := mem.Malloc(16)
	require.NoError(t, err)

	view, err := mem.Float32s(ptr, 16)
	require.NoError(t, err)
	require.Len(t, view, 4)
	view[3] = 0.5

	inner, err := mem.Float32s(ptr+8, 8)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), inner[1])

	_, err = mem.Float32s(ptr, 20)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = mem.Float32s(ptr+2, 4)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = mem.Float32s(Ptr(4000), 4)
	assert.ErrorIs(t, err, ErrInvalidPointer)
}

func TestMemoryReallocPreservesContents(t *testing.T) {
	mem := NewMemory()
	ptr, err := mem.Malloc(8)
	require.NoError(t, err)
	view, _ := mem.Float32s(ptr, 8)
	view[0], view[1] = 1, 2

	grown, err := mem.Realloc(ptr, 32)
	require.NoError(t, err)
	view, err = mem.Float32s(grown, 32)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 0, 0, 0, 0, 0, 0}, view)
	assert.Equal(t, 1, mem.LiveBlocks())
}

func TestModuleCheck(t *testing.T) {
	m := NewModule()
	assert.NoError(t, m.Check(CodeOK))

	code := m.Fail(CodeInvalidArgument, "bad channel count %d", 9)
	err := m.Check(code)
	require.Error(t, err)

	var nerr *Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, CodeInvalidArgument, nerr.Code)
	assert.Equal(t, "bad channel count 9", nerr.Message)
}

func TestHandleReleasesOnce(t *testing.T) {
	m := NewModule()
	ptr, err := m.NewObject("state")
	require.NoError(t, err)

	calls := 0
	h := NewHandle(ptr, func(p Ptr) error {
		calls++
		return m.DestroyObject(p)
	})

	got, err := h.Ptr()
	require.NoError(t, err)
	assert.Equal(t, ptr, got)

	require.NoError(t, h.Release())
	assert.True(t, h.Released())
	assert.ErrorIs(t, h.Release(), ErrHandleReleased)
	assert.Equal(t, 1, calls)

	_, err = h.Ptr()
	assert.ErrorIs(t, err, ErrHandleReleased)
	assert.Zero(t, m.LiveObjects())
}
