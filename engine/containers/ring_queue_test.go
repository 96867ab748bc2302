package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](3)
	assert.True(t, rq.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.True(t, errors.Is(rq.Enqueue(4), ErrQueueFull))

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, rq.Enqueue(4))

	var got []int
	for !rq.IsEmpty() {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)
}

func TestRingQueueEmpty(t *testing.T) {
	rq := NewRingQueue[string](2)
	_, err := rq.Dequeue()
	assert.True(t, errors.Is(err, ErrQueueEmpty))
	_, err = rq.Peek()
	assert.True(t, errors.Is(err, ErrQueueEmpty))

	require.NoError(t, rq.Enqueue("a"))
	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, rq.Len())
	assert.Equal(t, 2, rq.Cap())
}
