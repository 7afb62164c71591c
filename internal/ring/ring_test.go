package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_PushBelowCapacity(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	assert.Equal(t, []int{1, 2, 3}, b.All())
	assert.Equal(t, 3, b.Len())
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last)
}

func TestBuffer_EvictsOldestFirst(t *testing.T) {
	b := New[int](50)
	for i := 1; i <= 60; i++ {
		b.Push(i)
	}

	all := b.All()
	require.Len(t, all, 50)
	assert.Equal(t, 11, all[0])
	assert.Equal(t, 60, all[49])
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1]+1, all[i], "entries must stay in insertion order")
	}
	last, _ := b.Last()
	assert.Equal(t, 60, last)
	assert.Equal(t, int64(60), b.Total())
}

func TestBuffer_Tail(t *testing.T) {
	b := New[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Push(s)
	}
	assert.Equal(t, []string{"d", "e"}, b.Tail(2))
	assert.Equal(t, []string{"b", "c", "d", "e"}, b.Tail(10))
}

func TestBuffer_EmptyAndClear(t *testing.T) {
	b := New[int](0)
	assert.Equal(t, 1, b.Cap())
	_, ok := b.Last()
	assert.False(t, ok)
	assert.Empty(t, b.All())

	b.Push(7)
	b.Push(8)
	assert.Equal(t, []int{8}, b.All())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	b.Push(9)
	assert.Equal(t, []int{9}, b.All())
}

func TestBuffer_AllReturnsCopy(t *testing.T) {
	b := New[int](3)
	b.Push(1)
	got := b.All()
	got[0] = 99
	assert.Equal(t, []int{1}, b.All())
}
