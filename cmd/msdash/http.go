package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/api"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// handleHTTPServer starts the REST and websocket server on addr and shuts
// it down once ctx is cancelled.
func handleHTTPServer(ctx context.Context, addr string, restServer *api.Server, wsHandler http.Handler, wg *sync.WaitGroup, errc chan error, debug bool) {
	logger := logging.Component("http")

	// Setup goa log adapter.
	var (
		adapter middleware.Logger
	)
	{
		adapter = logging.NewGoaLogger(logger)
	}

	// Build the service HTTP request multiplexer and mount the handlers.
	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}
	restServer.Mount(mux)
	mux.Handle(http.MethodGet, "/ws", wsHandler.ServeHTTP)

	// Wrap the multiplexer with additional middlewares. Middlewares mounted
	// here apply to all the service endpoints.
	var handler http.Handler = mux
	{
		if debug {
			handler = httpmdlwr.Debug(mux, os.Stdout)(handler)
		}
		handler = httpmdlwr.Log(adapter)(handler)
		handler = httpmdlwr.RequestID()(handler)
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 60}

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			logger.Info().Str("addr", addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		<-ctx.Done()
		logger.Info().Str("addr", addr).Msg("shutting down HTTP server")

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown")
		}
	}()
}
