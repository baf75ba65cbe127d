package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	id     int
	config string
	resets int
}

func newFactory() (func(config string) func() (*fakeInstance, error), *int) {
	constructed := 0
	return func(config string) func() (*fakeInstance, error) {
		return func() (*fakeInstance, error) {
			constructed++
			return &fakeInstance{id: constructed, config: config}, nil
		}
	}, &constructed
}

func reinit(config string) func(*fakeInstance) error {
	return func(f *fakeInstance) error {
		f.config = config
		f.resets++
		return nil
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "2|44100|11025|4", Key(2, 44100, 11025, 4))
	assert.NotEqual(t, Key(1, 2), Key(12))
}

func TestAllocReusesFreedInstancesBeforeConstructing(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	factory, constructed := newFactory()
	key := Key(2, 44100)

	a, err := p.Alloc(key, factory(key), reinit(key))
	require.NoError(t, err)
	b, err := p.Alloc(key, factory(key), reinit(key))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, *constructed)

	require.NoError(t, p.Free(key, a))
	assert.Equal(t, 1, p.FreeCount(key))

	c, err := p.Alloc(key, factory(key), reinit(key))
	require.NoError(t, err)
	assert.Same(t, a, c, "freed instance must be reused")
	assert.Equal(t, 1, c.resets)
	assert.Equal(t, 2, p.AllocationCount(key), "allocation count tracks constructions, not Alloc calls")
	assert.Zero(t, p.FreeCount(key))
}

func TestAllocKeysAreIsolated(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	factory, constructed := newFactory()
	mono, stereo := Key(1), Key(2)

	a, err := p.Alloc(mono, factory(mono), nil)
	require.NoError(t, err)
	require.NoError(t, p.Free(mono, a))

	b, err := p.Alloc(stereo, factory(stereo), nil)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, *constructed)
	assert.Equal(t, 1, p.AllocationCount(mono))
	assert.Equal(t, 1, p.AllocationCount(stereo))
}

func TestFreeRejectsMismatchedKey(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	factory, _ := newFactory()
	mono, stereo := Key(1), Key(2)

	a, err := p.Alloc(mono, factory(mono), nil)
	require.NoError(t, err)
	_, err = p.Alloc(stereo, factory(stereo), nil)
	require.NoError(t, err)

	err = p.Free(stereo, a)
	assert.True(t, errors.Is(err, ErrNotCheckedOut))
	assert.Zero(t, p.FreeCount(stereo))

	require.NoError(t, p.Free(mono, a))
	assert.ErrorIs(t, p.Free(mono, a), ErrNotCheckedOut, "double free is rejected")
}

func TestAllocPastLeakThresholdStillSucceeds(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	factory, constructed := newFactory()
	key := Key("opus")

	for i := 0; i < LeakThreshold+3; i++ {
		_, err := p.Alloc(key, factory(key), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, LeakThreshold+3, *constructed)
	assert.Equal(t, LeakThreshold+3, p.AllocationCount(key))
}

func TestAllocPropagatesErrors(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	boom := errors.New("boom")

	_, err := p.Alloc("k", func() (*fakeInstance, error) { return nil, boom }, nil)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.AllocationCount("k"))

	_, err = p.Alloc("k", nil, nil)
	assert.ErrorIs(t, err, ErrNilConstructor)

	inst, err := p.Alloc("k", func() (*fakeInstance, error) { return &fakeInstance{}, nil }, nil)
	require.NoError(t, err)
	require.NoError(t, p.Free("k", inst))

	_, err = p.Alloc("k", nil, nil)
	assert.ErrorIs(t, err, ErrNilConstructor)

	_, err = p.Alloc("k", func() (*fakeInstance, error) { return &fakeInstance{}, nil },
		func(*fakeInstance) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDrain(t *testing.T) {
	p := NewObjects[*fakeInstance]("fake")
	factory, _ := newFactory()

	a, _ := p.Alloc("a", factory("a"), nil)
	b, _ := p.Alloc("b", factory("b"), nil)
	held, _ := p.Alloc("b", factory("b"), nil)
	require.NoError(t, p.Free("a", a))
	require.NoError(t, p.Free("b", b))

	var drained []*fakeInstance
	p.Drain(func(_ string, f *fakeInstance) { drained = append(drained, f) })
	assert.ElementsMatch(t, []*fakeInstance{a, b}, drained)
	assert.NoError(t, p.Free("b", held))
}
