package mjpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
)

func encodeJPEG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractJPEG(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		wantImg  []byte
		wantRest []byte
	}{
		{"empty", nil, nil, nil},
		{"no start", []byte{1, 2, 3}, nil, []byte{1, 2, 3}},
		{"incomplete", []byte{9, 0xFF, 0xD8, 5}, nil, []byte{0xFF, 0xD8, 5}},
		{"complete with garbage", []byte{9, 0xFF, 0xD8, 5, 0xFF, 0xD9, 7}, []byte{0xFF, 0xD8, 5, 0xFF, 0xD9}, []byte{7}},
		{"minimal", []byte{0xFF, 0xD8, 0xFF, 0xD9}, []byte{0xFF, 0xD8, 0xFF, 0xD9}, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, rest := extractJPEG(tt.buf)
			if !bytes.Equal(img, tt.wantImg) {
				t.Errorf("img = %x, want %x", img, tt.wantImg)
			}
			if !bytes.Equal(rest, tt.wantRest) {
				t.Errorf("rest = %x, want %x", rest, tt.wantRest)
			}
		})
	}
}

// trickle delivers at most n bytes per Read so images straddle chunk boundaries
type trickle struct {
	r io.Reader
	n int
}

func (t *trickle) Read(p []byte) (int, error) {
	if len(p) > t.n {
		p = p[:t.n]
	}
	return t.r.Read(p)
}

func TestReaderSplitsStream(t *testing.T) {
	red := encodeJPEG(t, 16, 8, color.RGBA{255, 0, 0, 255})
	blue := encodeJPEG(t, 16, 8, color.RGBA{0, 0, 255, 255})
	stream := slices.Concat([]byte("noise"), red, []byte{0xFF, 0xD8, 1, 2, 0xFF, 0xD9}, blue)

	var closed atomic.Bool
	r := NewReader(&trickle{r: bytes.NewReader(stream), n: 100}, func() error {
		closed.Store(true)
		return nil
	})

	first, ok := r.Read()
	if !ok {
		t.Fatal("first frame missing")
	}
	if first.Bounds().Dx() != 16 || first.Pix[0] < 200 {
		t.Errorf("first frame = %v r=%d, want red 16x8", first.Bounds(), first.Pix[0])
	}

	// the corrupt image in between is skipped
	second, ok := r.Read()
	if !ok {
		t.Fatal("second frame missing")
	}
	if second.Pix[2] < 200 {
		t.Errorf("second frame blue = %d", second.Pix[2])
	}

	if _, ok := r.Read(); ok {
		t.Error("expected end of stream")
	}
	r.Release()
	if !closed.Load() {
		t.Error("Release did not close the stream")
	}
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("rtsp://cam/1", 15)
	if args[0] != "-rtsp_transport" || args[1] != "tcp" {
		t.Errorf("rtsp args = %v", args)
	}
	if !slices.Contains(args, "15") || args[len(args)-1] != "-" {
		t.Errorf("args = %v", args)
	}

	args = ffmpegArgs("http://cam/stream", 0)
	if slices.Contains(args, "-rtsp_transport") || slices.Contains(args, "-r") {
		t.Errorf("http args = %v", args)
	}
}

func TestIsSnapshotURL(t *testing.T) {
	tests := map[string]bool{
		"http://cam/image.jpg":     true,
		"https://cam/snapshot.cgi": true,
		"http://cam/video.mjpg":    false,
		"rtsp://cam/snapshot.jpg":  false,
		"0":                        false,
	}
	for url, want := range tests {
		if got := IsSnapshotURL(url); got != want {
			t.Errorf("IsSnapshotURL(%q) = %v", url, got)
		}
	}
}

func TestSnapshotPoller(t *testing.T) {
	img := encodeJPEG(t, 4, 4, color.RGBA{0, 255, 0, 255})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(img)
	}))
	defer srv.Close()

	p := NewSnapshotPoller(srv.URL+"/snapshot.jpg", srv.Client())
	for i := 0; i < 2; i++ {
		frame, ok := p.Read()
		if !ok || frame.Bounds().Dx() != 4 {
			t.Fatalf("read %d failed", i)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3 (one retried)", hits.Load())
	}
	p.Release()
}

func TestSnapshotPollerGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewSnapshotPoller(srv.URL+"/x.jpg", srv.Client())
	if _, ok := p.Read(); ok {
		t.Fatal("read should fail")
	}
}
