package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/api"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/auth"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/detection"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/media"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/notify"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/services"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/videoio"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "msdash.yaml", "Path to the YAML configuration file")
		addrF   = flag.String("addr", "", "HTTP listen address (overrides http_addr)")
		dbgF    = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "msdash: %v\n", err)
		os.Exit(1)
	}
	if *addrF != "" {
		cfg.HTTPAddr = *addrF
	}

	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	logger := logging.Component("main")

	if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.RecordDir).Msg("failed to create recording directory")
	}

	// Database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Authentication
	expiry, _ := time.ParseDuration(cfg.Auth.JWTExpiry)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set, tokens will not survive a restart")
	}
	authenticator := auth.NewAuthenticator(db, auth.NewJWTManager(cfg.Auth.JWTSecret, expiry))
	if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
		created, err := authenticator.EnsureAdmin(context.Background(), cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create admin user")
		}
		if created {
			logger.Info().Str("username", cfg.Auth.AdminUsername).Msg("admin user created")
		}
	}

	// Detection engine
	engine, err := newEngine(cfg.Detection)
	if err != nil {
		if cfg.Detection.Required {
			logger.Fatal().Err(err).Msg("failed to create detection engine")
		}
		logger.Warn().Err(err).Msg("detection disabled, frames are streamed without inference")
	}
	resolver := detection.NewResolver(engine, cfg.Detection.Required)

	// Recording and event fan-out
	pool := recorder.NewPool(cfg.Recording.WriterWorkers)
	bus := pipeline.NewEventBus()
	encoder := recorder.NewEncoder(videoio.WriterFactory{}, db, nil, cfg.Recording.JPEGQuality)

	streams := services.NewStreamService(services.StreamDeps{
		Opener:   videoio.NewOpener(int(cfg.Recording.LiveFPS)),
		Resolver: resolver,
		Cameras:  db,
		Settings: db,
		Library:  media.NewLibrary(cfg.TestVideoDir),
		Recorder: recorder.Deps{
			Store:    db,
			Encoder:  encoder,
			Pool:     pool,
			Notifier: bus,
		},
		Clock: clock.New(),
	}, cfg)

	hub := ws.NewHub()
	bus.Subscribe("websocket", hub, 64)

	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	notifiers := notify.Connect(notifyCtx, cfg)
	notifyCancel()
	for _, n := range notifiers {
		bus.Subscribe(n.Name(), n, 32)
	}

	apiDeps := api.Deps{
		Login:        authenticator,
		Events:       db,
		Settings:     db,
		DB:           db,
		Sessions:     streams.Registry(),
		Library:      media.NewLibrary(cfg.TestVideoDir),
		ModelsDir:    cfg.ModelsDir,
		DefaultModel: cfg.Detection.DefaultModel,
		RequireToken: cfg.Auth.RequireToken,
	}
	if engine != nil {
		apiDeps.Engine = engine
	}
	restServer := api.NewServer(apiDeps)
	wsHandler := ws.NewHandler(hub, streams, authenticator, cfg.Auth.RequireToken)

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	handleHTTPServer(ctx, cfg.HTTPAddr, restServer, wsHandler, &wg, errc, *dbgF)

	// Wait for signal.
	logger.Info().Msgf("exiting (%v)", <-errc)

	grace := config.Seconds(cfg.Recording.ShutdownGraceS)
	if !streams.Registry().Shutdown(grace) {
		logger.Warn().Dur("grace", grace).Msg("some sessions did not stop in time")
	}
	if !pool.Shutdown(grace) {
		logger.Warn().Dur("grace", grace).Msg("abandoning unfinished recordings")
	}
	bus.Close()
	for _, n := range notifiers {
		if err := n.Close(); err != nil {
			logger.Warn().Err(err).Str("sink", n.Name()).Msg("failed to close notifier")
		}
	}
	hub.CloseAll()

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()
	if engine != nil {
		engine.Close()
	}
	logger.Info().Msg("exited")
}

// newEngine connects the configured transport. An empty endpoint disables detection.
func newEngine(cfg config.DetectionConfig) (detection.Engine, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no detection endpoint configured")
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond

	switch strings.ToLower(cfg.Transport) {
	case "http":
		return detection.NewHTTPEngine(cfg.Endpoint, timeout), nil
	default:
		e, err := detection.NewGRPCEngine(cfg.Endpoint, timeout)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}
