package remote

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry maps session ids to their executors. It is the only shared state
// of the remote backend: each executor is owned by its session and accessed
// through a per-key lock, replacing the shared-singleton-client shape with
// explicit session-scoped handles.
type Registry struct {
	client   *PlatformClient
	plotsDir string
	logger   zerolog.Logger

	executors map[string]*Executor
	locks     map[string]*sync.Mutex
	mu        sync.Mutex
}

// NewRegistry creates an executor registry.
func NewRegistry(client *PlatformClient, plotsDir string, logger zerolog.Logger) *Registry {
	return &Registry{
		client:    client,
		plotsDir:  plotsDir,
		logger:    logger,
		executors: make(map[string]*Executor),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Executor returns the session's executor, creating it on first use.
func (r *Registry) Executor(sessionID string) *Executor {
	r.mu.Lock()
	defer r.mu.Unlock()

	exec, ok := r.executors[sessionID]
	if !ok {
		exec = NewExecutor(sessionID, r.client, r.plotsDir, r.logger)
		r.executors[sessionID] = exec
		r.logger.Debug().Str("session_id", sessionID).Msg("Remote executor created")
	}
	return exec
}

// Lock returns the session's serialization lock. Callers must hold it for
// the duration of any Execute call: the contract forbids concurrent
// executions within one session while sessions stay independent.
func (r *Registry) Lock(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[sessionID] = lock
	}
	return lock
}

// ActiveSessions reports how many sessions hold an executor.
func (r *Registry) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executors)
}
