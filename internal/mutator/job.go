package mutator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/regions/internal/geom"
)

// Op names a bulk operation kind.
type Op string

const (
	OpTranslate  Op = "translate"
	OpLoadPreset Op = "load_preset"
	OpRestore    Op = "restore"
)

const (
	jobQueued int32 = iota
	jobRunning
	jobCancelled
)

// Job is a queued bulk operation. Its result becomes available once Done is closed.
type Job struct {
	id      uuid.UUID
	op      Op
	created time.Time
	run     func(ctx context.Context) (Result, error)
	state   atomic.Int32

	done chan struct{}
	once sync.Once
	res  Result
	err  error
}

// Result describes a finished bulk operation.
type Result struct {
	// Area is the destination volume that now holds the copied blocks.
	Area geom.Area
	// Blocks is the number of blocks written.
	Blocks int64
	// Moved lists the entities relocated after the copy committed.
	Moved []uint32
	// Backup is the path of the pre-copy destination snapshot, if one was taken.
	Backup string
}

func newJob(op Op, run func(ctx context.Context) (Result, error)) *Job {
	return &Job{
		id:      uuid.New(),
		op:      op,
		created: time.Now(),
		run:     run,
		done:    make(chan struct{}),
	}
}

// ID returns the job id.
func (j *Job) ID() uuid.UUID { return j.id }

// Op returns the job's operation kind.
func (j *Job) Op() Op { return j.op }

// Done is closed when the job has finished, successfully or not.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes or ctx is done. When ctx ends while the
// job is still queued, the job is cancelled and never runs. A job a worker has
// already started is waited for regardless of ctx, so the returned outcome is
// always the one the world observes.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.res, j.err
	case <-ctx.Done():
	}

	if j.state.CompareAndSwap(jobQueued, jobCancelled) {
		j.finish(Result{}, ctx.Err())
	}
	<-j.done
	return j.res, j.err
}

// start claims the job for a worker. False means it was cancelled while queued.
func (j *Job) start() bool {
	return j.state.CompareAndSwap(jobQueued, jobRunning)
}

func (j *Job) finish(res Result, err error) {
	j.once.Do(func() {
		j.res, j.err = res, err
		close(j.done)
	})
}
