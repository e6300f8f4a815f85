package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// Pool runs background write jobs with bounded concurrency.
// Jobs may outlive the session that queued them but not Shutdown.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewPool creates a pool running at most workers jobs at once
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		log:    logging.Component("write-pool"),
	}
}

// Go queues fn without blocking the caller. It returns false once the pool is shut down.
func (p *Pool) Go(name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn().Str("job", name).Msg("pool closed, dropping job")
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.log.Warn().Str("job", name).Err(err).Msg("job abandoned before start")
			return
		}
		defer p.sem.Release(1)
		fn(p.ctx)
	}()
	return true
}

// Shutdown stops accepting jobs and waits up to timeout for running ones.
// Jobs still running afterwards see their context cancelled. Returns true if all jobs finished.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return true
	case <-time.After(timeout):
		p.log.Warn().Dur("timeout", timeout).Msg("write jobs still running at shutdown, cancelling")
		p.cancel()
		return false
	}
}

// Wait blocks until every queued job has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}
