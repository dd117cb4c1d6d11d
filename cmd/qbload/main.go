// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/qbload/internal/api"
	"github.com/autobrr/qbload/internal/balancer"
	"github.com/autobrr/qbload/internal/buildinfo"
	"github.com/autobrr/qbload/internal/config"
	"github.com/autobrr/qbload/internal/logger"
	"github.com/autobrr/qbload/internal/metrics"
	"github.com/autobrr/qbload/internal/qbittorrent"
	"github.com/autobrr/qbload/internal/watcher"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qbload",
		Short: "qBittorrent load balancer",
		Long:  "Distributes incoming torrents across multiple qBittorrent instances by live load metrics.",
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the load balancer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to config file")
	return cmd
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(buildinfo.String())
		},
	}
}

func runServe(configPath string) error {
	appCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := appCfg.Config

	logger.Setup(cfg.LogDir, cfg.LogLevel)

	log.Info().
		Str("version", buildinfo.Version).
		Int("instances", len(cfg.Instances)).
		Str("sortKey", appCfg.SortKey.String()).
		Msg("starting qbload")

	dialer := clientDialer{qbittorrent.Dialer{ConnectionTimeout: cfg.ConnectionTimeout}}
	b := balancer.New(cfg, appCfg.SortKey, dialer)

	var registry *prometheus.Registry
	if cfg.MetricsEnabled {
		registry = metrics.NewManager(b).GetRegistry()
	}

	srv := api.NewServer(cfg.WebhookHost, cfg.WebhookPort, cfg.WebhookPath, b, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx) })

	if cfg.WatchDir != "" {
		w, err := watcher.New(cfg.WatchDir, cfg.TorrentMaxAgeMinutes, b)
		if err != nil {
			log.Error().Err(err).Msg("could not start torrent file watcher")
		} else {
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info().Msg("qbload stopped")
	return nil
}

// clientDialer adapts the concrete qBittorrent dialer to the balancer's
// Dialer interface.
type clientDialer struct {
	d qbittorrent.Dialer
}

func (cd clientDialer) Dial(ctx context.Context, name, host, username, password string) (balancer.Client, error) {
	return cd.d.Dial(ctx, name, host, username, password)
}
