package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// HTTPEngine posts tensors to an inference service's /detect endpoint
type HTTPEngine struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger

	mu        sync.RWMutex
	lastCheck map[string]time.Time
}

var _ Engine = (*HTTPEngine)(nil)

type detectResponse struct {
	Detections      []wireDetection `json:"detections"`
	InferenceTimeMs float32         `json:"inference_time_ms"`
	Device          string          `json:"device"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPEngine creates an engine for the service at endpoint
func NewHTTPEngine(endpoint string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPEngine{
		endpoint:  strings.TrimRight(endpoint, "/"),
		client:    &http.Client{Timeout: timeout},
		log:       logging.Component("detection").With().Str("transport", "http").Str("endpoint", endpoint).Logger(),
		lastCheck: make(map[string]time.Time),
	}
}

// Infer uploads the tensor as the multipart "file" field
func (e *HTTPEngine) Infer(ctx context.Context, model string, in *Tensor) ([]frame.Detection, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.raw")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(in.Data); err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"model":    model,
		"width":    strconv.Itoa(in.Width),
		"height":   strconv.Itoa(in.Height),
		"channels": strconv.Itoa(in.Channels),
	} {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		e.forget(model)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		e.forget(model)
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	case resp.StatusCode == http.StatusServiceUnavailable:
		e.forget(model)
		return nil, ErrEngineUnavailable
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detection failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}
	return convertDetections(result.Detections)
}

// Health queries /health for the model; successful checks are cached for healthTTL
func (e *HTTPEngine) Health(ctx context.Context, model string) error {
	e.mu.RLock()
	last, ok := e.lastCheck[model]
	e.mu.RUnlock()
	if ok && time.Since(last) < healthTTL {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	u := e.endpoint + "/health"
	if model != "" {
		u += "?model=" + url.QueryEscape(model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if !health.ModelLoaded {
		return fmt.Errorf("%w: %s not loaded", ErrModelUnavailable, model)
	}

	e.mu.Lock()
	e.lastCheck[model] = time.Now()
	e.mu.Unlock()
	e.log.Debug().Str("model", model).Str("device", health.Device).Msg("engine healthy")
	return nil
}

func (e *HTTPEngine) forget(model string) {
	e.mu.Lock()
	delete(e.lastCheck, model)
	e.mu.Unlock()
}

// Close releases idle connections
func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
