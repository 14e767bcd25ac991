package worker

import (
	"sync/atomic"
	"testing"
	"time"
)

type countTask struct {
	counter *int64
	done    chan struct{}
}

func (t *countTask) Execute() {
	atomic.AddInt64(t.counter, 1)
	t.done <- struct{}{}
}

func TestPoolExecutesTasks(t *testing.T) {
	pool := NewPool(3)
	defer pool.Close()

	var counter int64
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		pool.Exec(&countTask{counter: &counter, done: done})
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d tasks", i)
		}
	}
	if got := atomic.LoadInt64(&counter); got != 10 {
		t.Errorf("executed %d tasks, want 10", got)
	}
}

type blockTask struct {
	started chan struct{}
	release chan struct{}
}

func (t *blockTask) Execute() {
	t.started <- struct{}{}
	<-t.release
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		pool.Exec(&blockTask{started: started, release: release})
	}
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not pick up tasks")
		}
	}
	// Both workers are busy now, a third task must not start.
	go pool.Exec(&blockTask{started: started, release: release})
	select {
	case <-started:
		t.Error("third task started while all workers were busy")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
}
