package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// RunFunc is the body of a session task
type RunFunc func(ctx context.Context) error

// ExitFunc is called once a session task has returned
type ExitFunc func(clientID string, key StreamKey, err error)

type task struct {
	cancel   context.CancelFunc
	done     chan struct{}
	playback *PlaybackController
}

// SessionRegistry tracks one cancellable task per (client, stream key)
type SessionRegistry struct {
	mu    sync.Mutex
	tasks map[string]map[StreamKey]*task

	shutdown atomic.Bool
	wg       sync.WaitGroup
	onExit   ExitFunc

	log zerolog.Logger
}

// NewSessionRegistry creates an empty registry. onExit may be nil.
func NewSessionRegistry(onExit ExitFunc) *SessionRegistry {
	return &SessionRegistry{
		tasks:  make(map[string]map[StreamKey]*task),
		onExit: onExit,
		log:    logging.Component("sessions"),
	}
}

// Start runs fn for (clientID, key). A key that is already running is left
// untouched and ErrDuplicateSession is returned.
func (r *SessionRegistry) Start(clientID string, key StreamKey, playback *PlaybackController, fn RunFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown.Load() {
		return ErrShuttingDown
	}
	client := r.tasks[clientID]
	if client == nil {
		client = make(map[StreamKey]*task)
		r.tasks[clientID] = client
	}
	if _, exists := client[key]; exists {
		r.log.Warn().Str("client_id", clientID).Str("stream_key", string(key)).Msg("stream already running, ignoring start")
		return ErrDuplicateSession
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{}), playback: playback}
	client[key] = t

	r.wg.Add(1)
	go r.run(ctx, clientID, key, t, fn)

	r.log.Info().Str("client_id", clientID).Str("stream_key", string(key)).Msg("session task started")
	return nil
}

// StartOrReplace cancels any running task for the key, waits up to wait for
// it to exit, then starts fn.
func (r *SessionRegistry) StartOrReplace(clientID string, key StreamKey, playback *PlaybackController, fn RunFunc, wait time.Duration) error {
	if prev := r.detach(clientID, key); prev != nil {
		prev.cancel()
		timer := time.NewTimer(wait)
		select {
		case <-prev.done:
			timer.Stop()
		case <-timer.C:
			return ErrReplaceTimeout
		}
	}

	// a concurrent start may have taken the slot meanwhile; Start reports it
	return r.Start(clientID, key, playback, fn)
}

// Stop cancels the task for (clientID, key); it reports whether one was running
func (r *SessionRegistry) Stop(clientID string, key StreamKey) bool {
	t := r.detach(clientID, key)
	if t == nil {
		return false
	}
	t.cancel()
	r.log.Info().Str("client_id", clientID).Str("stream_key", string(key)).Msg("session stop requested")
	return true
}

// DisconnectClient cancels every task of a client and drops its entry
func (r *SessionRegistry) DisconnectClient(clientID string) int {
	r.mu.Lock()
	client := r.tasks[clientID]
	delete(r.tasks, clientID)
	r.mu.Unlock()

	for _, t := range client {
		t.cancel()
	}
	if len(client) > 0 {
		r.log.Info().Str("client_id", clientID).Int("sessions", len(client)).Msg("client disconnected, sessions cancelled")
	}
	return len(client)
}

// Playback returns the control state of a running test-video task
func (r *SessionRegistry) Playback(clientID string, key StreamKey) (*PlaybackController, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[clientID][key]
	if !ok || t.playback == nil {
		return nil, false
	}
	return t.playback, true
}

// Running reports whether a task exists for (clientID, key)
func (r *SessionRegistry) Running(clientID string, key StreamKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[clientID][key]
	return ok
}

// Count returns the number of registered tasks
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, client := range r.tasks {
		n += len(client)
	}
	return n
}

// ShuttingDown is polled by session loops at the top of every iteration
func (r *SessionRegistry) ShuttingDown() bool {
	return r.shutdown.Load()
}

// Shutdown raises the shutdown flag, cancels every task and waits up to
// timeout for them to exit. It returns true if all tasks finished.
func (r *SessionRegistry) Shutdown(timeout time.Duration) bool {
	r.mu.Lock()
	r.shutdown.Store(true)
	all := r.tasks
	r.tasks = make(map[string]map[StreamKey]*task)
	r.mu.Unlock()

	for _, client := range all {
		for _, t := range client {
			t.cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Msg("all sessions stopped")
		return true
	case <-time.After(timeout):
		r.log.Warn().Dur("timeout", timeout).Msg("sessions still running at shutdown")
		return false
	}
}

func (r *SessionRegistry) run(ctx context.Context, clientID string, key StreamKey, t *task, fn RunFunc) {
	defer r.wg.Done()
	defer close(t.done)

	err := fn(ctx)

	// remove our own entry unless a stop or replace already detached it
	r.mu.Lock()
	if client := r.tasks[clientID]; client != nil && client[key] == t {
		delete(client, key)
		if len(client) == 0 {
			delete(r.tasks, clientID)
		}
	}
	r.mu.Unlock()
	t.cancel()

	ev := r.log.Info()
	if err != nil {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("client_id", clientID).Str("stream_key", string(key)).Msg("session task exited")

	if r.onExit != nil {
		r.onExit(clientID, key, err)
	}
}

func (r *SessionRegistry) detach(clientID string, key StreamKey) *task {
	r.mu.Lock()
	defer r.mu.Unlock()
	client := r.tasks[clientID]
	t, ok := client[key]
	if !ok {
		return nil
	}
	delete(client, key)
	if len(client) == 0 {
		delete(r.tasks, clientID)
	}
	return t
}
