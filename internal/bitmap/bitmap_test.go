package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetClearRoundTrip(t *testing.T) {
	b := New(128)
	assert.False(t, b.Test(5))

	b.Set(5)
	assert.True(t, b.Test(5))

	b.Clear(5)
	assert.False(t, b.Test(5))
}

func TestSetIdempotent(t *testing.T) {
	b := New(64)
	b.Set(10)
	b.Set(10)
	assert.True(t, b.Test(10))
}

func TestClearIdempotent(t *testing.T) {
	b := New(64)
	b.Clear(10)
	b.Clear(10)
	assert.False(t, b.Test(10))
}

func TestSetAllClearAll(t *testing.T) {
	b := New(40)
	b.SetAll()
	for i := uint32(0); i < 40; i++ {
		assert.True(t, b.Test(i))
	}
	b.ClearAll()
	for i := uint32(0); i < 40; i++ {
		assert.False(t, b.Test(i))
	}
}

func TestFirstClear(t *testing.T) {
	b := New(40)
	b.SetAll()
	b.Clear(33)
	idx, ok := b.FirstClear()
	assert.True(t, ok)
	assert.Equal(t, uint32(33), idx)
}

func TestFirstClearNoneLeft(t *testing.T) {
	b := New(8)
	b.SetAll()
	_, ok := b.FirstClear()
	assert.False(t, ok)
}

func TestFirstSet(t *testing.T) {
	b := New(70)
	b.Set(65)
	idx, ok := b.FirstSet()
	assert.True(t, ok)
	assert.Equal(t, uint32(65), idx)
}

func TestOutOfRangePanics(t *testing.T) {
	b := New(8)
	assert.Panics(t, func() { b.Set(8) })
}
