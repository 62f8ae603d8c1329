package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
)

// Event is one progress update emitted while an analysis runs.
type Event struct {
	Type      string    `json:"type"` // step_started, tool_started, tool_finished, step_completed, analysis_finished
	SessionID string    `json:"session_id"`
	StepOrder int       `json:"step_order,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans progress events out to at most one consumer through a
// buffered channel. Emission never blocks the analysis: with no consumer, or
// a slow one, events are dropped and counted.
type Notifier struct {
	ch      chan Event
	dropped atomic.Int64
	logger  zerolog.Logger
	once    sync.Once
}

// NewNotifier creates a notifier with the given buffer size.
func NewNotifier(buffer int, logger zerolog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{
		ch:     make(chan Event, buffer),
		logger: logger.With().Str("component", "progress").Logger(),
	}
}

// Events returns the consumer side of the notifier.
func (n *Notifier) Events() <-chan Event {
	return n.ch
}

// Emit publishes an event without blocking.
func (n *Notifier) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case n.ch <- event:
	default:
		dropped := n.dropped.Add(1)
		observability.RecordProgressDropped()
		if dropped%100 == 1 {
			n.logger.Warn().Int64("dropped", dropped).Msg("Progress events dropped, buffer full")
		}
	}
}

// Dropped reports how many events were discarded so far.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close shuts the event channel. Emit must not be called afterwards.
func (n *Notifier) Close() {
	n.once.Do(func() { close(n.ch) })
}
