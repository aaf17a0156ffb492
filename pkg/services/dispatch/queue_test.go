package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestQueue_RunsTasks(t *testing.T) {
	q := New(zap.NewNop(), 2, 8)
	defer q.Close()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := q.Enqueue(Task{Name: "count", Run: func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}})
		assert.True(t, ok)
	}
	wg.Wait()
	assert.EqualValues(t, 5, ran.Load())
}

func TestQueue_TaskErrorDoesNotStopWorkers(t *testing.T) {
	q := New(zap.NewNop(), 1, 8)
	defer q.Close()

	done := make(chan struct{})
	q.Enqueue(Task{Name: "fails", Run: func(context.Context) error {
		return errors.New("boom")
	}})
	q.Enqueue(Task{Name: "after", Run: func(context.Context) error {
		close(done)
		return nil
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover after task error")
	}
}

func TestQueue_OverflowDrops(t *testing.T) {
	q := New(zap.NewNop(), 1, 1)
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(Task{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started

	// Fills the single buffer slot.
	assert.True(t, q.Enqueue(Task{Name: "queued", Run: func(context.Context) error { return nil }}))
	// Overflow drops without blocking.
	assert.False(t, q.Enqueue(Task{Name: "dropped", Run: func(context.Context) error { return nil }}))

	close(block)
}

func TestQueue_CloseDrainsQueuedTasks(t *testing.T) {
	q := New(zap.NewNop(), 1, 8)

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		q.Enqueue(Task{Name: "drain", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}
	q.Close()
	assert.EqualValues(t, 3, ran.Load())

	// Enqueue after close is rejected; Close is idempotent.
	assert.False(t, q.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}))
	q.Close()
}

func TestQueue_DefaultsForInvalidSizes(t *testing.T) {
	q := New(zap.NewNop(), 0, 0)
	defer q.Close()

	done := make(chan struct{})
	assert.True(t, q.Enqueue(Task{Name: "ok", Run: func(context.Context) error {
		close(done)
		return nil
	}}))
	<-done
}
