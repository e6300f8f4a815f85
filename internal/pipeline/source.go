package pipeline

import (
	"fmt"
	"image"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

// DualSource reads the visual and thermal channels of a session in lockstep.
//
// The channels are paired only by being read in the same iteration. When the
// thermal read fails, or there is no thermal source, the thermal image is
// synthesized from the visual frame with frame.ToGray.
type DualSource struct {
	visual  FrameSource
	thermal FrameSource

	// file is visual as a FileSource, nil for live sources
	file FileSource
}

// NewLiveSource wraps a live capture; thermal is always synthesized
func NewLiveSource(visual FrameSource) *DualSource {
	return &DualSource{visual: visual}
}

// NewFileSource wraps a file-backed visual source and an optional thermal file
func NewFileSource(visual FileSource, thermal FileSource) *DualSource {
	d := &DualSource{visual: visual, file: visual}
	if thermal != nil {
		d.thermal = thermal
	}
	return d
}

// Live reports whether this is a live capture
func (d *DualSource) Live() bool {
	return d.file == nil
}

// HasThermal reports whether a real thermal channel is attached
func (d *DualSource) HasThermal() bool {
	return d.thermal != nil
}

// Read returns the next visual frame and its thermal companion
func (d *DualSource) Read() (*image.RGBA, *image.Gray, bool) {
	visual, ok := d.visual.Read()
	if !ok || visual == nil {
		return nil, nil, false
	}

	if d.thermal != nil {
		if img, ok := d.thermal.Read(); ok && img != nil && img.Bounds().Size() == visual.Bounds().Size() {
			return visual, frame.ToGray(img), true
		}
	}
	return visual, frame.ToGray(visual), true
}

// SeekToTime moves both channels to the frame at seconds and returns its index
func (d *DualSource) SeekToTime(seconds float64) (int, error) {
	if d.file == nil {
		return 0, fmt.Errorf("seek on a live source")
	}
	index := FrameIndex(seconds, d.file.FrameRate())
	if err := d.file.SeekToFrame(index); err != nil {
		return index, fmt.Errorf("failed to seek visual source: %w", err)
	}
	if t, ok := d.thermal.(FileSource); ok {
		if err := t.SeekToFrame(index); err != nil {
			return index, fmt.Errorf("failed to seek thermal source: %w", err)
		}
	}
	return index, nil
}

// ResetToStart rewinds both channels
func (d *DualSource) ResetToStart() error {
	if d.file == nil {
		return nil
	}
	if err := d.file.ResetToStart(); err != nil {
		return err
	}
	if t, ok := d.thermal.(FileSource); ok {
		return t.ResetToStart()
	}
	return nil
}

// Position is the index of the next visual frame, -1 for live sources
func (d *DualSource) Position() int {
	if d.file == nil {
		return -1
	}
	return d.file.Position()
}

// Playback describes the current position of a file source
func (d *DualSource) Playback() *PlaybackInfo {
	if d.file == nil {
		return nil
	}
	info := &PlaybackInfo{
		CurrentFrame: d.file.Position(),
		TotalFrames:  d.file.FrameCount(),
	}
	if fps := d.file.FrameRate(); fps > 0 {
		info.CurrentTime = float64(info.CurrentFrame) / fps
		info.Duration = float64(info.TotalFrames) / fps
	}
	return info
}

// Release frees both capture handles
func (d *DualSource) Release() error {
	err := d.visual.Release()
	if d.thermal != nil {
		if terr := d.thermal.Release(); err == nil {
			err = terr
		}
	}
	return err
}

// FrameIndex translates a time into a frame index at fps, using a default
// rate when the source reports none.
func FrameIndex(seconds, fps float64) int {
	if fps <= 0 {
		fps = defaultSeekFPS
	}
	if seconds < 0 {
		seconds = 0
	}
	return int(seconds * fps)
}
