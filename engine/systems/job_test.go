package systems

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFinished(t *testing.T, js *JobSystem, want int) int {
	t.Helper()
	handled := 0
	require.Eventually(t, func() bool {
		handled += js.Update()
		return handled >= want
	}, time.Second, time.Millisecond)
	return handled
}

func TestJobSystemRunsCallbacksOnUpdate(t *testing.T) {
	js, err := NewJobSystem(3, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	var started atomic.Int32
	sum := 0
	failures := 0
	for i := 1; i <= 10; i++ {
		i := i
		require.NoError(t, js.Submit(JobTask{
			Name: "square",
			OnStart: func() (interface{}, error) {
				started.Add(1)
				if i == 10 {
					return nil, errors.New("too big")
				}
				return i * i, nil
			},
			OnComplete: func(result interface{}) { sum += result.(int) },
			OnFailure:  func(err error) { failures++ },
		}))
	}

	assert.Equal(t, 10, waitFinished(t, js, 10))
	assert.Equal(t, int32(10), started.Load())
	assert.Equal(t, 285, sum)
	assert.Equal(t, 1, failures)
	assert.Zero(t, js.Pending())
}

func TestJobSystemNonBlocking(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	done := false
	js.AddWorkNonBlocking(JobTask{
		Name:       "noop",
		OnStart:    func() (interface{}, error) { return nil, nil },
		OnComplete: func(interface{}) { done = true },
	})
	waitFinished(t, js, 1)
	assert.True(t, done)
}

func TestJobSystemErrors(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	assert.Error(t, js.Submit(JobTask{Name: "empty"}))
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())
	err = js.Submit(JobTask{OnStart: func() (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
}
