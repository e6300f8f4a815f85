package mjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// maxSnapshotFailures is how many consecutive failed fetches end the stream
const maxSnapshotFailures = 5

// IsSnapshotURL reports whether url serves single JPEG images rather than a stream
func IsSnapshotURL(url string) bool {
	return (strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) &&
		(strings.Contains(url, ".jpg") || strings.Contains(url, ".jpeg") || strings.Contains(url, "snapshot"))
}

// SnapshotPoller fetches one image per Read from an HTTP endpoint.
// Pacing is left to the caller.
type SnapshotPoller struct {
	url      string
	client   *http.Client
	failures int
	log      zerolog.Logger
}

// NewSnapshotPoller creates a poller; a nil client uses a 10s timeout
func NewSnapshotPoller(url string, client *http.Client) *SnapshotPoller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SnapshotPoller{url: url, client: client, log: logging.Component("mjpeg")}
}

// Read fetches and decodes the current snapshot. Isolated failures are
// retried; the stream ends after maxSnapshotFailures in a row.
func (p *SnapshotPoller) Read() (*image.RGBA, bool) {
	for p.failures < maxSnapshotFailures {
		img, err := p.fetch()
		if err == nil {
			p.failures = 0
			return img, true
		}
		p.failures++
		p.log.Warn().Err(err).Str("url", p.url).Int("failures", p.failures).Msg("snapshot fetch failed")
	}
	return nil, false
}

func (p *SnapshotPoller) fetch() (*image.RGBA, error) {
	resp, err := p.client.Get(p.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return frame.ToRGBA(img), nil
}

// Release drops idle keep-alive connections
func (p *SnapshotPoller) Release() error {
	p.client.CloseIdleConnections()
	return nil
}
