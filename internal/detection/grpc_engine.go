package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

const (
	// detectMethod takes the raw tensor as a BytesValue and answers with a
	// ListValue of {class, class_id, confidence, bbox} structs. The tensor
	// shape and model name travel as request metadata.
	detectMethod = "/msdash.detection.v1.Detector/Detect"

	healthTTL     = 30 * time.Second
	healthTimeout = 5 * time.Second
)

// GRPCEngine calls the inference engine over a single multiplexed gRPC connection
type GRPCEngine struct {
	endpoint string
	conn     *grpc.ClientConn
	health   healthpb.HealthClient
	timeout  time.Duration
	log      zerolog.Logger

	healthMu  sync.RWMutex
	lastCheck map[string]time.Time
}

var _ Engine = (*GRPCEngine)(nil)

// NewGRPCEngine creates the client connection. The connection is established
// lazily, so an engine that is down at startup is reported by Health, not here.
func NewGRPCEngine(endpoint string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCEngine, error) {
	// Detect dead connections quickly
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection client for %s: %w", endpoint, err)
	}

	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	e := &GRPCEngine{
		endpoint:  endpoint,
		conn:      conn,
		health:    healthpb.NewHealthClient(conn),
		timeout:   timeout,
		log:       logging.Component("detection").With().Str("transport", "grpc").Str("endpoint", endpoint).Logger(),
		lastCheck: make(map[string]time.Time),
	}
	e.log.Info().Msg("detection client created")
	return e, nil
}

// Infer sends one tensor and decodes the detections
func (e *GRPCEngine) Infer(ctx context.Context, model string, in *Tensor) ([]frame.Detection, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx = metadata.AppendToOutgoingContext(ctx,
		"model", model,
		"width", strconv.Itoa(in.Width),
		"height", strconv.Itoa(in.Height),
		"channels", strconv.Itoa(in.Channels),
	)

	out := &structpb.ListValue{}
	if err := e.conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(in.Data), out); err != nil {
		return nil, e.classify(model, err)
	}

	raw, err := json.Marshal(out.AsSlice())
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode detections: %w", err)
	}
	var dets []wireDetection
	if err := json.Unmarshal(raw, &dets); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	return convertDetections(dets)
}

// Health checks the standard gRPC health service, using the model name as
// the service name. Successful checks are cached for healthTTL.
func (e *GRPCEngine) Health(ctx context.Context, model string) error {
	e.healthMu.RLock()
	last, ok := e.lastCheck[model]
	e.healthMu.RUnlock()
	if ok && time.Since(last) < healthTTL {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := e.health.Check(ctx, &healthpb.HealthCheckRequest{Service: model})
	if err != nil {
		return e.classify(model, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		e.forget(model)
		if model == "" {
			return fmt.Errorf("%w: status %s", ErrEngineUnavailable, resp.GetStatus())
		}
		return fmt.Errorf("%w: %s is %s", ErrModelUnavailable, model, resp.GetStatus())
	}

	e.healthMu.Lock()
	e.lastCheck[model] = time.Now()
	e.healthMu.Unlock()
	return nil
}

func (e *GRPCEngine) classify(model string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		e.forget(model)
		return fmt.Errorf("%w: %s", ErrModelUnavailable, model)
	case codes.Unavailable:
		e.forget(model)
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	default:
		return fmt.Errorf("inference call failed: %w", err)
	}
}

func (e *GRPCEngine) forget(model string) {
	e.healthMu.Lock()
	delete(e.lastCheck, model)
	e.healthMu.Unlock()
}

// Close shuts down the gRPC connection
func (e *GRPCEngine) Close() error {
	return e.conn.Close()
}
