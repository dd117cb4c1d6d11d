// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api serves the webhook, health, and metrics endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end for release notifications.
type Server struct {
	host        string
	port        int
	webhookPath string

	dispatcher Dispatcher
	registry   *prometheus.Registry
}

// NewServer builds the HTTP server. registry may be nil when metrics are
// disabled.
func NewServer(host string, port int, webhookPath string, dispatcher Dispatcher, registry *prometheus.Registry) *Server {
	return &Server{
		host:        host,
		port:        port,
		webhookPath: webhookPath,
		dispatcher:  dispatcher,
		registry:    registry,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post(s.webhookPath, NewWebhookHandler(s.dispatcher).Handle)
	r.Get("/health", NewHealthHandler(s.dispatcher).Handle)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Serve binds the listener and runs until ctx is cancelled, then shuts down
// gracefully. A bind failure is returned immediately.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not bind webhook server on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Str("webhookPath", s.webhookPath).Msg("webhook server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("webhook server shutdown was not clean")
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
