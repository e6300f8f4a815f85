package pipeline

import (
	"errors"
	"testing"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

func TestPlaybackTransitions(t *testing.T) {
	pb := NewPlaybackController()
	if st := pb.Snapshot(); st.Paused || st.Rate != 1.0 || st.PendingSeek != nil {
		t.Fatalf("initial state = %+v", st)
	}

	pb.Pause(12.5)
	if st := pb.Snapshot(); !st.Paused || st.CurrentTime != 12.5 {
		t.Errorf("after pause = %+v", st)
	}

	pb.Play(13)
	if st := pb.Snapshot(); st.Paused || st.CurrentTime != 13 {
		t.Errorf("after play = %+v", st)
	}

	pb.Seek(42)
	st := pb.Snapshot()
	if st.PendingSeek == nil || *st.PendingSeek != 42 || st.CurrentTime != 42 {
		t.Errorf("after seek = %+v", st)
	}

	if err := pb.SetRate(2); err != nil {
		t.Fatal(err)
	}
	if st := pb.Snapshot(); st.Rate != 2 || st.Paused {
		t.Errorf("rate change touched pause state: %+v", st)
	}

	v, ok := pb.TakeSeek()
	if !ok || v != 42 {
		t.Errorf("TakeSeek = %v, %v", v, ok)
	}
	if _, ok := pb.TakeSeek(); ok {
		t.Error("pending seek should be cleared")
	}
}

func TestPlaybackSnapshotIsCopy(t *testing.T) {
	pb := NewPlaybackController()
	pb.Seek(5)
	st := pb.Snapshot()
	*st.PendingSeek = 99
	if v, _ := pb.TakeSeek(); v != 5 {
		t.Errorf("snapshot aliased controller state: %v", v)
	}
}

func TestPlaybackApply(t *testing.T) {
	tests := []struct {
		action  string
		time    float64
		rate    float64
		wantErr error
		check   func(PlaybackState) bool
	}{
		{action: "pause", time: 3, check: func(s PlaybackState) bool { return s.Paused && s.CurrentTime == 3 }},
		{action: "play", time: 4, check: func(s PlaybackState) bool { return !s.Paused && s.CurrentTime == 4 }},
		{action: "seek", time: 8, check: func(s PlaybackState) bool { return s.PendingSeek != nil && *s.PendingSeek == 8 }},
		{action: "playback_rate", rate: 0.5, check: func(s PlaybackState) bool { return s.Rate == 0.5 }},
		{action: "playback_rate", rate: 0, wantErr: ErrInvalidRate},
		{action: "rewind", wantErr: ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			pb := NewPlaybackController()
			err := pb.Apply(tt.action, tt.time, tt.rate)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(pb.Snapshot()) {
				t.Errorf("state = %+v", pb.Snapshot())
			}
		})
	}
}

func TestThresholdsEvaluate(t *testing.T) {
	det := func(class string, conf float64) frame.Detection {
		return frame.Detection{Class: class, Confidence: conf}
	}

	tests := []struct {
		name        string
		dets        []frame.Detection
		wantTrigger string
		wantPerson  bool
	}{
		{"empty", nil, "", false},
		{"person below threshold", []frame.Detection{det("person", 0.69)}, "", false},
		{"person at threshold", []frame.Detection{det("person", 0.7)}, "person", true},
		{"animal", []frame.Detection{det("scrofa", 0.9)}, "scrofa", false},
		{"unlisted class ignored", []frame.Detection{det("car", 0.99)}, "", false},
		{"first qualifying wins", []frame.Detection{det("car", 0.99), det("inermis", 0.8), det("person", 0.95)}, "inermis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, person := testThresholds.Evaluate(tt.dets)
			got := ""
			if trigger != nil {
				got = trigger.Class
			}
			if got != tt.wantTrigger || person != tt.wantPerson {
				t.Errorf("Evaluate = %q, %v; want %q, %v", got, person, tt.wantTrigger, tt.wantPerson)
			}
		})
	}
}

func TestThresholdsOverlays(t *testing.T) {
	th := Thresholds{Overlay: 0.5}
	dets := []frame.Detection{{Class: "a", Confidence: 0.49}, {Class: "b", Confidence: 0.5}, {Class: "c", Confidence: 0.9}}
	got := th.Overlays(dets)
	if len(got) != 2 || got[0].Class != "b" || got[1].Class != "c" {
		t.Errorf("Overlays = %+v", got)
	}
}
