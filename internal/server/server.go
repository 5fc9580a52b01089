// Package server provides HTTP server initialization and lifecycle management
// for the Atelier resolution API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/atelier/internal/config"
	"github.com/scrypster/atelier/internal/logger"
	"github.com/scrypster/atelier/web/handlers"
)

// NewHandler builds the routed, middleware-wrapped HTTP handler.
func NewHandler(cfg *config.Config, resolver handlers.Resolver, cache handlers.CacheInvalidator, hub *handlers.WebSocketHub, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	resolveHandlers := handlers.NewResolveHandlers(resolver, cache, hub, log)

	// API routes (require auth when a token is configured)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/styles/{styleID}/resolve/{kind}", resolveHandlers.Resolve)
	apiMux.HandleFunc("/api/cache/invalidate", resolveHandlers.InvalidateCache)
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// Health endpoint, no auth required
	mux.HandleFunc("/api/health", handlers.Health)

	// WebSocket endpoint (origin validation handles browser access)
	if hub != nil {
		mux.Handle("/ws", hub)
	}

	// Wrap entire server with rate limiting, then security headers
	rateLimiter := handlers.NewRateLimiter(cfg.Server.RequestsPerSec, cfg.Server.Burst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return handlers.SecurityHeaders(handler)
}

// Start initializes and starts the HTTP server. It returns the address being
// listened on (useful with port 0) and the hub that streams progress. The
// server shuts down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, resolver handlers.Resolver, cache handlers.CacheInvalidator, log *logger.Logger) (string, *handlers.WebSocketHub, error) {
	if log == nil {
		log = logger.Nop()
	}

	wsHub := handlers.NewWebSocketHub(log,
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	)
	go wsHub.Run()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg, resolver, cache, wsHub, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Batches with image generation can take minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		wsHub.Stop()
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()
	log.Info("http server listening", "addr", actualAddr)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown error", "error", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub, nil
}
