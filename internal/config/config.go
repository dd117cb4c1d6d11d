// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/qbload/internal/domain"
)

const (
	defaultFastAnnounceInterval = 3
	defaultMaxAnnounceRetries   = 12
	defaultReconnectInterval    = 180
	defaultMaxReconnectAttempts = 1
	defaultConnectionTimeout    = 10
	defaultWebhookPort          = 5000
	defaultWebhookPath          = "/webhook"
	defaultTorrentMaxAgeMinutes = 60
)

// AppConfig wraps the parsed configuration together with the resolved sort key.
type AppConfig struct {
	Config  *domain.Config
	SortKey domain.SortKey
}

// Load reads the JSON config file at path, applies defaults and validation,
// and returns the effective configuration. Any error here is fatal for the
// caller: the balancer cannot run without instances.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("QBLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "could not read config %q", path)
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal config")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	sortKey, err := domain.ParseSortKey(cfg.PrimarySortKey)
	if err != nil {
		log.Warn().Str("primarySortKey", cfg.PrimarySortKey).Msg("unsupported sort key, falling back to upload_speed")
	}
	cfg.PrimarySortKey = sortKey.String()

	clampFastAnnounceInterval(cfg)

	return &AppConfig{Config: cfg, SortKey: sortKey}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("primary_sort_key", "upload_speed")
	v.SetDefault("fast_announce_interval", defaultFastAnnounceInterval)
	v.SetDefault("max_announce_retries", defaultMaxAnnounceRetries)
	v.SetDefault("reconnect_interval", defaultReconnectInterval)
	v.SetDefault("max_reconnect_attempts", defaultMaxReconnectAttempts)
	v.SetDefault("connection_timeout", defaultConnectionTimeout)
	v.SetDefault("debug_add_stopped", false)
	v.SetDefault("webhook_host", "0.0.0.0")
	v.SetDefault("webhook_port", defaultWebhookPort)
	v.SetDefault("webhook_path", defaultWebhookPath)
	v.SetDefault("torrent_max_age_minutes", defaultTorrentMaxAgeMinutes)
	v.SetDefault("log_level", "debug")
	v.SetDefault("metrics_enabled", true)
}

func validate(cfg *domain.Config) error {
	if len(cfg.Instances) == 0 {
		return errors.New("qbittorrent_instances must not be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Instances))
	for _, ic := range cfg.Instances {
		if ic.Name == "" || ic.URL == "" {
			return errors.Errorf("instance entries require name and url, got name=%q url=%q", ic.Name, ic.URL)
		}
		if _, dup := seen[ic.Name]; dup {
			return errors.Errorf("duplicate instance name %q", ic.Name)
		}
		seen[ic.Name] = struct{}{}
	}
	if cfg.MaxNewTasksPerInstance <= 0 {
		return errors.New("max_new_tasks_per_instance is required and must be positive")
	}
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		cfg.WebhookPath = "/" + cfg.WebhookPath
	}
	return nil
}

// clampFastAnnounceInterval keeps the announce cadence inside [2,10] seconds.
func clampFastAnnounceInterval(cfg *domain.Config) {
	if cfg.FastAnnounceInterval < 2 || cfg.FastAnnounceInterval > 10 {
		log.Warn().
			Float64("fastAnnounceInterval", cfg.FastAnnounceInterval).
			Msg("fast_announce_interval outside [2,10] seconds, using default")
		cfg.FastAnnounceInterval = defaultFastAnnounceInterval
	}
}
