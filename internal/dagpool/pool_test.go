package dagpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := New(2, nil)
	defer p.Stop()

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		p.Submit(types.PriorityNormal, func(ctx context.Context) {
			defer wg.Done()
			count.Add(1)
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not complete")
	}
	assert.Equal(t, int64(5), count.Load())
}

func TestPoolGrowsUnderSaturation(t *testing.T) {
	p := New(1, nil)
	defer p.Stop()

	release := make(chan struct{})
	var started atomic.Int64
	for i := 0; i < 4; i++ {
		p.Submit(types.PriorityNormal, func(ctx context.Context) {
			started.Add(1)
			<-release
		})
	}

	require.Eventually(t, func() bool {
		return p.Stats().WorkersTotal > 1
	}, time.Second, 10*time.Millisecond, "pool should grow past its initial size under saturation")

	close(release)
}

func TestPoolIsPoolWorker(t *testing.T) {
	p := New(1, nil)
	defer p.Stop()

	result := make(chan bool, 1)
	p.Submit(types.PriorityNormal, func(ctx context.Context) {
		result <- IsPoolWorker(ctx)
	})
	assert.True(t, <-result)
	assert.False(t, IsPoolWorker(context.Background()))
}

func TestPoolStopDrainsAndBlocks(t *testing.T) {
	p := New(2, nil)
	var ran atomic.Bool
	p.Submit(types.PriorityNormal, func(ctx context.Context) { ran.Store(true) })
	p.Stop()
	assert.True(t, ran.Load())

	// Submitting after Stop is a no-op, not a panic.
	p.Submit(types.PriorityNormal, func(ctx context.Context) {})
}
