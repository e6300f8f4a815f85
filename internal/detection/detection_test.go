package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

type fakeEngine struct {
	mu       sync.Mutex
	healthy  map[string]error
	down     bool
	inferred []*Tensor
	models   []string
}

func (f *fakeEngine) Infer(_ context.Context, model string, in *Tensor) ([]frame.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inferred = append(f.inferred, in)
	f.models = append(f.models, model)
	return []frame.Detection{{Class: "person", Confidence: 0.9}}, nil
}

func (f *fakeEngine) Health(_ context.Context, model string) error {
	if f.down {
		return ErrEngineUnavailable
	}
	if err, ok := f.healthy[model]; ok {
		return err
	}
	return ErrModelUnavailable
}

func (f *fakeEngine) Close() error { return nil }

func TestFuseChannelOrder(t *testing.T) {
	visual := image.NewRGBA(image.Rect(0, 0, 2, 1))
	visual.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	visual.Set(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})
	thermal := image.NewGray(image.Rect(0, 0, 2, 1))
	thermal.SetGray(0, 0, color.Gray{Y: 7})
	thermal.SetGray(1, 0, color.Gray{Y: 9})

	in, err := Fuse(visual, thermal)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{30, 20, 10, 7, 60, 50, 40, 9}
	if string(in.Data) != string(want) || in.Channels != 4 {
		t.Errorf("fused = %v (%d channels), want %v", in.Data, in.Channels, want)
	}

	in, _ = Fuse(visual, nil)
	if string(in.Data) != string([]byte{30, 20, 10, 60, 50, 40}) || in.Channels != 3 {
		t.Errorf("visual only = %v", in.Data)
	}
}

func TestFuseRejectsMismatch(t *testing.T) {
	if _, err := Fuse(image.NewRGBA(image.Rect(0, 0, 4, 4)), image.NewGray(image.Rect(0, 0, 2, 2))); err == nil {
		t.Error("expected size mismatch error")
	}
	if _, err := Fuse(nil, nil); err == nil {
		t.Error("expected error for nil visual")
	}
}

func TestIsMultiSpectral(t *testing.T) {
	for model, want := range map[string]bool{
		"yolo11n_early_fusion.pt": true,
		"yolo11n_mid_fusion.pt":   true,
		"YOLO_Fusion.pt":          true,
		"yolo11n.pt":              false,
	} {
		if got := IsMultiSpectral(model); got != want {
			t.Errorf("IsMultiSpectral(%q) = %v", model, got)
		}
	}
}

func TestAdapterAlwaysSendsFourChannels(t *testing.T) {
	visual := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range visual.Pix {
		visual.Pix[i] = byte(i)
	}
	thermal := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range thermal.Pix {
		thermal.Pix[i] = 200
	}

	for _, model := range []string{"yolo11n_early_fusion.pt", "yolo11n_mid_fusion.pt", "yolo11n.pt"} {
		t.Run(model, func(t *testing.T) {
			eng := &fakeEngine{}
			if _, err := NewAdapter(eng, model).Detect(context.Background(), visual, thermal); err != nil {
				t.Fatal(err)
			}
			in := eng.inferred[0]
			if in.Channels != 4 {
				t.Fatalf("channels = %d, want 4", in.Channels)
			}
			if in.Data[3] != 200 {
				t.Errorf("thermal byte = %d, want the supplied thermal frame", in.Data[3])
			}
		})
	}
}

func TestAdapterSynthesizesMissingThermal(t *testing.T) {
	eng := &fakeEngine{}
	visual := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range visual.Pix {
		visual.Pix[i] = 90
	}
	if _, err := NewAdapter(eng, "yolo11n.pt").Detect(context.Background(), visual, nil); err != nil {
		t.Fatal(err)
	}
	in := eng.inferred[0]
	if in.Channels != 4 || in.Data[3] != frame.ToGray(visual).Pix[0] {
		t.Errorf("channels = %d, thermal = %d", in.Channels, in.Data[3])
	}
}

func TestResolve(t *testing.T) {
	const def = "yolo11n_early_fusion.pt"
	eng := &fakeEngine{healthy: map[string]error{def: nil, "yolo11n.pt": nil}}
	ctx := context.Background()

	tests := []struct {
		name      string
		requested string
		wantModel string
		fellBack  bool
	}{
		{"served", "yolo11n.pt", "yolo11n.pt", false},
		{"empty means default", "", def, false},
		{"unavailable falls back", "custom.pt", def, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, fellBack, err := NewResolver(eng, true).Resolve(ctx, tt.requested, def)
			if err != nil {
				t.Fatal(err)
			}
			if a.Model() != tt.wantModel || fellBack != tt.fellBack {
				t.Errorf("got %s fellBack=%v", a.Model(), fellBack)
			}
		})
	}
}

func TestResolveEngineDown(t *testing.T) {
	eng := &fakeEngine{down: true}
	ctx := context.Background()

	if _, _, err := NewResolver(eng, true).Resolve(ctx, "yolo11n.pt", "yolo11n.pt"); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("required: err = %v", err)
	}
	a, _, err := NewResolver(eng, false).Resolve(ctx, "yolo11n.pt", "yolo11n.pt")
	if err != nil || a == nil {
		t.Errorf("optional: adapter=%v err=%v", a, err)
	}

	if _, _, err := NewResolver(nil, true).Resolve(ctx, "", "yolo11n.pt"); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("no engine, required: %v", err)
	}
	if a, _, err := NewResolver(nil, false).Resolve(ctx, "", "yolo11n.pt"); a != nil || err != nil {
		t.Errorf("no engine, optional: %v %v", a, err)
	}
}

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	got, err := ListModels(dir)
	if err != nil || len(got) != 3 || got[0] != "yolo11n_early_fusion.pt" {
		t.Errorf("empty dir = %v, %v", got, err)
	}
	got, _ = ListModels(filepath.Join(dir, "missing"))
	if len(got) != 3 {
		t.Errorf("missing dir = %v", got)
	}

	for _, name := range []string{"b.pt", "a.PT", "notes.txt"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0o644)
	}
	os.Mkdir(filepath.Join(dir, "c.pt"), 0o755)
	got, err = ListModels(dir)
	if err != nil || len(got) != 2 || got[0] != "a.PT" || got[1] != "b.pt" {
		t.Errorf("ListModels = %v, %v", got, err)
	}
}
