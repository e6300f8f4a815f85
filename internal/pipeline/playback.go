package pipeline

import (
	"fmt"
	"sync"
)

// Playback actions accepted from the client
const (
	ActionPause = "pause"
	ActionPlay  = "play"
	ActionSeek  = "seek"
	ActionRate  = "playback_rate"
)

// PlaybackState is the control state of a test-video session
type PlaybackState struct {
	Paused      bool
	CurrentTime float64
	PendingSeek *float64
	Rate        float64
}

// PlaybackController is written by control commands and read by the session
// loop once per iteration.
type PlaybackController struct {
	mu    sync.Mutex
	state PlaybackState
}

// NewPlaybackController starts playing at normal speed
func NewPlaybackController() *PlaybackController {
	return &PlaybackController{state: PlaybackState{Rate: 1.0}}
}

func (p *PlaybackController) Pause(t float64) {
	p.mu.Lock()
	p.state.Paused = true
	p.state.CurrentTime = t
	p.mu.Unlock()
}

func (p *PlaybackController) Play(t float64) {
	p.mu.Lock()
	p.state.Paused = false
	p.state.CurrentTime = t
	p.mu.Unlock()
}

// Seek requests a jump; the loop performs it on its next iteration
func (p *PlaybackController) Seek(t float64) {
	p.mu.Lock()
	p.state.PendingSeek = &t
	p.state.CurrentTime = t
	p.mu.Unlock()
}

// SetRate changes the playback speed multiplier
func (p *PlaybackController) SetRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	p.mu.Lock()
	p.state.Rate = rate
	p.mu.Unlock()
	return nil
}

// Apply dispatches a named control command
func (p *PlaybackController) Apply(action string, t, rate float64) error {
	switch action {
	case ActionPause:
		p.Pause(t)
	case ActionPlay:
		p.Play(t)
	case ActionSeek:
		p.Seek(t)
	case ActionRate:
		return p.SetRate(rate)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// Snapshot returns a copy of the current state
func (p *PlaybackController) Snapshot() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	if s.PendingSeek != nil {
		v := *s.PendingSeek
		s.PendingSeek = &v
	}
	return s
}

// TakeSeek returns and clears the pending seek target
func (p *PlaybackController) TakeSeek() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.PendingSeek == nil {
		return 0, false
	}
	t := *p.state.PendingSeek
	p.state.PendingSeek = nil
	return t, true
}

// Paused reports whether playback is suspended
func (p *PlaybackController) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Paused
}

// Rate returns the playback speed multiplier
func (p *PlaybackController) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Rate
}
