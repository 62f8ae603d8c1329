package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// laneState manages execution state for a single lane
type laneState struct {
	queue   []*taskRecord
	running bool
	mu      sync.Mutex
}

// LaneQueue serializes tasks per lane while lanes run fully concurrently.
// One lane per session gives the single flow of control the execution
// backends require.
type LaneQueue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	logger    zerolog.Logger
	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewLaneQueue creates an empty lane queue; lanes appear on first use.
func NewLaneQueue(logger zerolog.Logger) *LaneQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &LaneQueue{
		lanes:  make(map[string]*laneState),
		logger: logger.With().Str("component", "lane-queue").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue schedules the task on the lane and blocks until it finishes.
// Tasks within one lane execute strictly in enqueue order.
func (q *LaneQueue) Enqueue(ctx context.Context, lane string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	ls, ok := q.lanes[lane]
	if !ok {
		ls = &laneState{}
		q.lanes[lane] = ls
	}
	q.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	shouldStart := !ls.running
	if shouldStart {
		ls.running = true
	}
	ls.mu.Unlock()

	q.logger.Debug().
		Str("lane", lane).
		Str("task_id", taskID).
		Int("queue_size", queueSize).
		Msg("Task enqueued")

	if shouldStart {
		q.wg.Add(1)
		go q.drain(lane, ls)
	}

	select {
	case res := <-record.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain runs the lane's queue until it empties.
func (q *LaneQueue) drain(lane string, ls *laneState) {
	defer q.wg.Done()

	for {
		ls.mu.Lock()
		if len(ls.queue) == 0 {
			ls.running = false
			ls.mu.Unlock()
			return
		}
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.mu.Unlock()

		q.run(lane, record)
	}
}

func (q *LaneQueue) run(lane string, record *taskRecord) {
	// Skip tasks whose caller has already gone away
	select {
	case <-record.ctx.Done():
		record.result <- taskResult{err: record.ctx.Err()}
		return
	case <-q.ctx.Done():
		record.result <- taskResult{err: q.ctx.Err()}
		return
	default:
	}

	start := time.Now()
	value, err := record.task(record.ctx)

	q.logger.Debug().
		Str("lane", lane).
		Str("task_id", record.id).
		Dur("wait", start.Sub(record.enqueuedAt)).
		Dur("elapsed", time.Since(start)).
		Bool("success", err == nil).
		Msg("Task finished")

	record.result <- taskResult{value: value, err: err}
}

// Shutdown cancels pending work and waits for running tasks to return.
func (q *LaneQueue) Shutdown() {
	q.cancel()
	q.wg.Wait()
}
