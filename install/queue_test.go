package install

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestQueueSerialOrdering mirrors spec.md §8 property 9: no two jobs run
// concurrently, and jobs complete in the order they were enqueued.
func TestQueueSerialOrdering(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	var running int32
	var overlapped int32
	var order []int32
	done := make(chan struct{})

	const n = 5
	channels := make([]<-chan Result, n)
	for i := 0; i < n; i++ {
		i := int32(i)
		channels[i] = q.Enqueue(ctx, func(ctx context.Context) (*PipelineResult, error) {
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlapped, 1)
			}
			time.Sleep(2 * time.Millisecond)
			order = append(order, i)
			atomic.AddInt32(&running, -1)
			return &PipelineResult{ModID: "m"}, nil
		})
	}

	go func() {
		for _, ch := range channels {
			<-ch
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain in time")
	}

	assert.Equal(t, int32(0), overlapped)
	for i, v := range order {
		assert.Equal(t, int32(i), v, "expected strict fifo order, got %v", order)
	}
}
