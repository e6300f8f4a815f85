package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingRun counts starts and blocks until cancelled
func blockingRun(started *atomic.Int32) RunFunc {
	return func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestDuplicateStartIsNoop(t *testing.T) {
	r := NewSessionRegistry(nil)
	var started atomic.Int32

	if err := r.Start("c1", LiveKey(1), nil, blockingRun(&started)); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := r.Start("c1", LiveKey(1), nil, blockingRun(&started))
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second start = %v, want ErrDuplicateSession", err)
	}

	waitFor(t, func() bool { return started.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := started.Load(); n != 1 {
		t.Errorf("tasks started = %d, want 1", n)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d", r.Count())
	}

	// same key for another client is independent
	if err := r.Start("c2", LiveKey(1), nil, blockingRun(&started)); err != nil {
		t.Errorf("other client: %v", err)
	}
	r.Shutdown(time.Second)
}

func TestStopCancelsTask(t *testing.T) {
	var mu sync.Mutex
	var exited []StreamKey
	r := NewSessionRegistry(func(_ string, key StreamKey, _ error) {
		mu.Lock()
		exited = append(exited, key)
		mu.Unlock()
	})
	var started atomic.Int32

	r.Start("c1", LiveKey(3), nil, blockingRun(&started))
	if !r.Stop("c1", LiveKey(3)) {
		t.Fatal("Stop reported no task")
	}
	if r.Running("c1", LiveKey(3)) {
		t.Error("task still registered after stop")
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(exited) == 1
	})
	if r.Stop("c1", LiveKey(3)) {
		t.Error("second stop should report nothing to stop")
	}

	// the key is free again
	if err := r.Start("c1", LiveKey(3), nil, blockingRun(&started)); err != nil {
		t.Errorf("restart: %v", err)
	}
	r.Shutdown(time.Second)
}

func TestTaskRemovesItselfOnExit(t *testing.T) {
	r := NewSessionRegistry(nil)
	r.Start("c1", LiveKey(5), nil, func(context.Context) error { return ErrSourceEnded })
	waitFor(t, func() bool { return !r.Running("c1", LiveKey(5)) })
}

func TestDisconnectCancelsAllClientTasks(t *testing.T) {
	r := NewSessionRegistry(nil)
	var started atomic.Int32
	var stopped atomic.Int32
	run := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		stopped.Add(1)
		return nil
	}

	r.Start("c1", LiveKey(1), nil, run)
	r.Start("c1", LiveKey(2), nil, run)
	r.Start("c1", TestVideoKey, NewPlaybackController(), run)
	r.Start("c2", LiveKey(1), nil, run)

	if n := r.DisconnectClient("c1"); n != 3 {
		t.Errorf("cancelled = %d, want 3", n)
	}
	waitFor(t, func() bool { return stopped.Load() == 3 })
	if !r.Running("c2", LiveKey(1)) {
		t.Error("other client's session was cancelled")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
	r.Shutdown(time.Second)
}

func TestStartOrReplaceWaitsForPrevious(t *testing.T) {
	r := NewSessionRegistry(nil)
	var mu sync.Mutex
	var order []string

	first := func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, "first exited")
		mu.Unlock()
		return nil
	}
	second := func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "second started")
		mu.Unlock()
		<-ctx.Done()
		return nil
	}

	pb1 := NewPlaybackController()
	r.Start("c1", TestVideoKey, pb1, first)
	pb2 := NewPlaybackController()
	if err := r.StartOrReplace("c1", TestVideoKey, pb2, second, time.Second); err != nil {
		t.Fatalf("StartOrReplace: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	if order[0] != "first exited" {
		t.Errorf("order = %v", order)
	}
	if got, ok := r.Playback("c1", TestVideoKey); !ok || got != pb2 {
		t.Error("playback control should belong to the new session")
	}
	r.Shutdown(time.Second)
}

func TestStartOrReplaceTimesOut(t *testing.T) {
	r := NewSessionRegistry(nil)
	release := make(chan struct{})
	r.Start("c1", TestVideoKey, nil, func(ctx context.Context) error {
		<-release
		return nil
	})

	err := r.StartOrReplace("c1", TestVideoKey, nil, func(context.Context) error { return nil }, 10*time.Millisecond)
	if !errors.Is(err, ErrReplaceTimeout) {
		t.Fatalf("err = %v, want ErrReplaceTimeout", err)
	}
	close(release)
	r.Shutdown(time.Second)
}

func TestShutdownRejectsNewSessions(t *testing.T) {
	r := NewSessionRegistry(nil)
	var started atomic.Int32
	r.Start("c1", LiveKey(1), nil, blockingRun(&started))

	if !r.Shutdown(time.Second) {
		t.Fatal("sessions did not stop")
	}
	if !r.ShuttingDown() {
		t.Error("shutdown flag not set")
	}
	if err := r.Start("c1", LiveKey(2), nil, blockingRun(&started)); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("start after shutdown = %v", err)
	}
}

func TestPlaybackLookup(t *testing.T) {
	r := NewSessionRegistry(nil)
	var started atomic.Int32
	pb := NewPlaybackController()
	r.Start("c1", TestVideoKey, pb, blockingRun(&started))
	r.Start("c1", LiveKey(1), nil, blockingRun(&started))

	if got, ok := r.Playback("c1", TestVideoKey); !ok || got != pb {
		t.Error("test video playback not found")
	}
	if _, ok := r.Playback("c1", LiveKey(1)); ok {
		t.Error("live session has no playback control")
	}
	if _, ok := r.Playback("nobody", TestVideoKey); ok {
		t.Error("unknown client")
	}
	r.Shutdown(time.Second)
}
