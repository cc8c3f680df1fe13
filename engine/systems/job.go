package systems

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/prism/engine/core"
)

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

// JobTask is a unit of background work. OnStart runs on a worker; the
// callbacks run on the goroutine that calls Update.
type JobTask struct {
	Name       string
	OnStart    func() (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	doneMu  sync.Mutex
	done    []jobResult
	pending atomic.Int64
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.OnStart()
				js.doneMu.Lock()
				js.done = append(js.done, jobResult{task: job, result: result, err: err})
				js.doneMu.Unlock()
			}
		}()
	}
}

// Shutdown waits for the queued jobs to finish. Their callbacks are dropped.
func (js *JobSystem) Shutdown() error {
	js.closeMu.Lock()
	if js.closed {
		js.closeMu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.closeMu.Unlock()

	js.wg.Wait()
	js.doneMu.Lock()
	js.done = nil
	js.doneMu.Unlock()
	js.pending.Store(0)
	return nil
}

// Update runs the callbacks of every finished job and returns how many
// jobs it handled. Should happen once an update cycle.
func (js *JobSystem) Update() int {
	js.doneMu.Lock()
	done := js.done
	js.done = nil
	js.doneMu.Unlock()

	for _, r := range done {
		js.pending.Add(-1)
		if r.err != nil {
			core.LogError("job `%s` failed: %s", r.task.Name, r.err)
			if r.task.OnFailure != nil {
				r.task.OnFailure(r.err)
			}
			continue
		}
		if r.task.OnComplete != nil {
			r.task.OnComplete(r.result)
		}
	}
	return len(done)
}

// Pending counts the jobs submitted whose callbacks have not run yet.
func (js *JobSystem) Pending() int {
	return int(js.pending.Load())
}

// AddWorkNonBlocking queues the job from another goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("job `%s` dropped: %s", jt.Name, err)
		}
	}()
}

// Submit queues the job, blocking while the queue is full.
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.OnStart == nil {
		return fmt.Errorf("job `%s` has nothing to run", jt.Name)
	}
	js.closeMu.RLock()
	defer js.closeMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.pending.Add(1)
	js.jobQueue <- jt
	return nil
}
