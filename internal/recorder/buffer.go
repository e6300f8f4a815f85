package recorder

import (
	"time"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

// FrameBuffer keeps the rolling pre-event history of one session.
//
// Trim drops the oldest frame only while the next one is itself at least
// window old, so once warm the buffer always spans >= window and at most
// window plus one frame interval.
type FrameBuffer struct {
	window time.Duration
	frames []*frame.Frame
}

// NewFrameBuffer creates a buffer retaining window of history
func NewFrameBuffer(window time.Duration) *FrameBuffer {
	return &FrameBuffer{window: window}
}

// Append adds a frame; frames must arrive in capture order
func (b *FrameBuffer) Append(f *frame.Frame) {
	b.frames = append(b.frames, f)
}

// Trim discards history older than the window relative to now
func (b *FrameBuffer) Trim(now time.Time) {
	cutoff := now.Add(-b.window)
	drop := 0
	for len(b.frames)-drop > 1 && !b.frames[drop+1].Timestamp.After(cutoff) {
		drop++
	}
	if drop == 0 {
		return
	}
	// release references so trimmed frames can be collected
	for i := 0; i < drop; i++ {
		b.frames[i] = nil
	}
	b.frames = b.frames[drop:]
}

// Len returns the number of buffered frames
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}

// Oldest returns the timestamp of the oldest buffered frame
func (b *FrameBuffer) Oldest() (time.Time, bool) {
	if len(b.frames) == 0 {
		return time.Time{}, false
	}
	return b.frames[0].Timestamp, true
}

// Span returns newest minus oldest timestamp
func (b *FrameBuffer) Span() time.Duration {
	if len(b.frames) < 2 {
		return 0
	}
	return b.frames[len(b.frames)-1].Timestamp.Sub(b.frames[0].Timestamp)
}

// Covers reports whether the history reaches back at least window before t
func (b *FrameBuffer) Covers(t time.Time) bool {
	oldest, ok := b.Oldest()
	return ok && t.Sub(oldest) >= b.window
}

// Snapshot returns a copy of the buffered frame list
func (b *FrameBuffer) Snapshot() []*frame.Frame {
	out := make([]*frame.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// Reset empties the buffer
func (b *FrameBuffer) Reset() {
	b.frames = nil
}
