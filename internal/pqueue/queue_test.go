package pqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := New[string]()
	q.Push(types.PriorityLow, "low")
	q.Push(types.PriorityNormal, "normal")
	q.Push(types.PriorityCritical, "critical")
	q.Push(types.PriorityHigh, "high")

	var order []string
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		order = append(order, v)
	}
	assert.Equal(t, []string{"critical", "high", "normal", "low"}, order)
}

func TestQueueFIFOWithinLevel(t *testing.T) {
	q := New[int]()
	q.Push(types.PriorityNormal, 1)
	q.Push(types.PriorityNormal, 2)
	q.Push(types.PriorityNormal, 3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop()
		if ok {
			done <- v
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(types.PriorityNormal, 42)
	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueueCloseDrainsThenStops(t *testing.T) {
	q := New[int]()
	q.Push(types.PriorityNormal, 1)
	q.Close()

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Pop()
	assert.False(t, ok)

	// Push after Close is a no-op.
	q.Push(types.PriorityNormal, 2)
	assert.Equal(t, 0, q.Len())
}
