package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneQueueOrdering(t *testing.T) {
	q := NewLaneQueue(zerolog.Nop())
	defer q.Shutdown()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			// Stagger enqueues so the lane sees them in index order.
			time.Sleep(time.Duration(i) * 10 * time.Millisecond)
			_, err := q.Enqueue(context.Background(), "lane-a", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLaneQueueLanesRunConcurrently(t *testing.T) {
	q := NewLaneQueue(zerolog.Nop())
	defer q.Shutdown()

	gate := make(chan struct{})
	started := make(chan string, 2)

	var wg sync.WaitGroup
	for _, lane := range []string{"lane-a", "lane-b"} {
		wg.Add(1)
		lane := lane
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), lane, func(ctx context.Context) (interface{}, error) {
				started <- lane
				<-gate
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}

	// Both lanes must report in while the gate still blocks them.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("lanes did not run concurrently")
		}
	}
	close(gate)
	wg.Wait()
}

func TestLaneQueueReturnsTaskResult(t *testing.T) {
	q := NewLaneQueue(zerolog.Nop())
	defer q.Shutdown()

	t.Run("value", func(t *testing.T) {
		value, err := q.Enqueue(context.Background(), "lane", func(ctx context.Context) (interface{}, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})

	t.Run("error", func(t *testing.T) {
		wantErr := errors.New("task failed")
		_, err := q.Enqueue(context.Background(), "lane", func(ctx context.Context) (interface{}, error) {
			return nil, wantErr
		})
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestLaneQueueSkipsCancelledTasks(t *testing.T) {
	q := NewLaneQueue(zerolog.Nop())
	defer q.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := q.Enqueue(ctx, "lane", func(ctx context.Context) (interface{}, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	// Give the drain goroutine a moment; the task must stay skipped.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran)
}
