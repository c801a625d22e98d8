package serial

import (
	"sync"
	"testing"
)

func TestQueuePreservesOrder(t *testing.T) {
	q := NewQueue()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Do(func() {})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order (got %d)", i, v)
		}
	}
}

func TestQueueNeverRunsTasksConcurrently(t *testing.T) {
	q := NewQueue()

	var running, max int
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		q.Post(func() {
			mu.Lock()
			running++
			if running > max {
				max = running
			}
			mu.Unlock()

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	q.Do(func() {})

	if max != 1 {
		t.Fatalf("max concurrent tasks = %d, want 1", max)
	}
}

func TestDoBlocksUntilRun(t *testing.T) {
	q := NewQueue()

	ran := false
	q.Do(func() { ran = true })
	if !ran {
		t.Fatal("Do returned before the task ran")
	}
}
