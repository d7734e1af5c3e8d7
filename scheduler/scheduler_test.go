package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTasksToCompletion(t *testing.T) {
	p := NewPool(Options{Workers: 2})
	p.Start()
	defer p.Stop()

	var ran atomic.Int64
	var ids []uint64
	for i := 0; i < 16; i++ {
		ids = append(ids, p.Submit(Task{Run: func() Result {
			ran.Add(1)
			return Result{Status: StatusCompleted}
		}}))
	}
	p.Wait()
	assert.Equal(t, int64(16), ran.Load())
	for _, id := range ids {
		r, ok := p.Result(id)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, r.Status)
	}
}

func TestYieldedTasksResume(t *testing.T) {
	p := NewPool(Options{Workers: 1})
	p.Start()
	defer p.Stop()

	var slices atomic.Int64
	id := p.Submit(Task{Run: func() Result {
		if slices.Add(1) < 4 {
			return Result{Status: StatusYielded}
		}
		return Result{Status: StatusCompleted}
	}})
	r := p.WaitFor(id)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, int64(4), slices.Load())
}

func TestFailedTaskReportsError(t *testing.T) {
	p := NewPool(Options{Workers: 1})
	p.Start()
	defer p.Stop()

	id := p.Submit(Task{Run: func() Result {
		return Result{Status: StatusFailed, Err: assert.AnError}
	}})
	r := p.WaitFor(id)
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, assert.AnError)
}

func TestHybridRunsLightJobsInline(t *testing.T) {
	p := NewPool(Options{Workers: 1, EnableHybrid: true, LightweightJobLevel: 1})
	// the pool is intentionally not started: light jobs run on the caller
	done := false
	id := p.Submit(Task{Level: 0, Run: func() Result {
		done = true
		return Result{Status: StatusCompleted}
	}})
	assert.True(t, done)
	r, ok := p.Result(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, r.Status)
}

func TestStealingDrainsOtherQueues(t *testing.T) {
	p := NewPool(Options{Workers: 4, StealingEnabled: true, StealingWait: 1})
	p.Start()
	defer p.Stop()

	var ran atomic.Int64
	for i := 0; i < 64; i++ {
		p.Submit(Task{Run: func() Result {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return Result{Status: StatusCompleted}
		}})
	}
	p.Wait()
	assert.Equal(t, int64(64), ran.Load())
}

func TestAbortedStatus(t *testing.T) {
	p := NewPool(Options{Workers: 1})
	p.Start()
	defer p.Stop()

	id := p.Submit(Task{Run: func() Result {
		return Result{Status: StatusAborted}
	}})
	r := p.WaitFor(id)
	assert.Equal(t, StatusAborted, r.Status)
}
