package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
)

// solid returns a small image whose red channel encodes n
func solid(n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	c := color.RGBA{uint8(n), 40, 200, 255}
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// fakeFile is a seekable source whose frame i is solid(i)
type fakeFile struct {
	mu       sync.Mutex
	count    int
	fps      float64
	pos      int
	reads    []int
	released bool
	seekErr  error
	size     image.Rectangle
}

func newFakeFile(count int, fps float64) *fakeFile {
	return &fakeFile{count: count, fps: fps}
}

func (f *fakeFile) Read() (*image.RGBA, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= f.count {
		return nil, false
	}
	f.reads = append(f.reads, f.pos)
	img := solid(f.pos % 256)
	if !f.size.Empty() {
		img = image.NewRGBA(f.size)
	}
	f.pos++
	return img, true
}

func (f *fakeFile) SeekToFrame(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	if index > f.count {
		index = f.count
	}
	f.pos = index
	return nil
}

func (f *fakeFile) ResetToStart() error { return f.SeekToFrame(0) }
func (f *fakeFile) FrameRate() float64  { return f.fps }
func (f *fakeFile) FrameCount() int     { return f.count }

func (f *fakeFile) Position() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeFile) Release() error {
	f.mu.Lock()
	f.released = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFile) lastRead() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return -1
	}
	return f.reads[len(f.reads)-1]
}

// fakeLive delivers n frames then fails
type fakeLive struct {
	mu       sync.Mutex
	left     int
	released bool
}

func (l *fakeLive) Read() (*image.RGBA, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.left <= 0 {
		return nil, false
	}
	l.left--
	return solid(l.left % 256), true
}

func (l *fakeLive) Release() error {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
	return nil
}

type fakeDetector struct {
	mu     sync.Mutex
	dets   []frame.Detection
	err    error
	calls  int
	fusion []bool
}

func (d *fakeDetector) Detect(_ context.Context, visual *image.RGBA, thermal *image.Gray) ([]frame.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.fusion = append(d.fusion, thermal != nil)
	if d.err != nil {
		return nil, d.err
	}
	out := make([]frame.Detection, len(d.dets))
	copy(out, d.dets)
	return out, nil
}

type fakeViewer struct {
	mu     sync.Mutex
	frames []*FramePayload
	errors []string
}

func (v *fakeViewer) SendFrame(p *FramePayload) bool {
	v.mu.Lock()
	v.frames = append(v.frames, p)
	v.mu.Unlock()
	return true
}

func (v *fakeViewer) SendError(msg string) {
	v.mu.Lock()
	v.errors = append(v.errors, msg)
	v.mu.Unlock()
}

func (v *fakeViewer) last() *FramePayload {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.frames) == 0 {
		return nil
	}
	return v.frames[len(v.frames)-1]
}

func (v *fakeViewer) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.frames)
}

// memStore satisfies recorder.Store
type memStore struct {
	mu     sync.Mutex
	events []*database.DetectionEventRecord
	fail   bool
}

func (s *memStore) CreateEvent(_ context.Context, ev *database.DetectionEventRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("disk full")
	}
	s.events = append(s.events, ev)
	ev.ID = int64(len(s.events))
	return ev.ID, nil
}

func (s *memStore) AddEventFile(context.Context, int64, string, string) error        { return nil }
func (s *memStore) UpdateEventFilePath(context.Context, int64, string, string) error { return nil }

func (s *memStore) GetEventView(_ context.Context, id int64) (*database.EventView, error) {
	return &database.EventView{ID: id}, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type nopWriter struct{}

func (nopWriter) Write(*image.RGBA) error { return nil }
func (nopWriter) Close() error            { return nil }

type nopFactory struct{}

func (nopFactory) Create(string, string, float64, int, int) (recorder.VideoWriter, error) {
	return nopWriter{}, nil
}
