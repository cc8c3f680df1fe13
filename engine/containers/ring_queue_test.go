package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, rq.Enqueue(4))

	v, err = rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 3, rq.Len())

	last, ok := rq.Drain()
	assert.True(t, ok)
	assert.Equal(t, 4, last)
	assert.True(t, rq.IsEmpty())

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, ok = rq.Drain()
	assert.False(t, ok)
}
