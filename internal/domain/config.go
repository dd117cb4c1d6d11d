// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "fmt"

const (
	mib = 1024 * 1024

	// DefaultReservedSpaceMiB keeps roughly 21 GiB free on every instance
	// unless the config overrides it.
	DefaultReservedSpaceMiB = 21 * 1024
)

// Config represents the application configuration.
type Config struct {
	Instances []InstanceConfig `mapstructure:"qbittorrent_instances"`

	MaxNewTasksPerInstance int     `mapstructure:"max_new_tasks_per_instance"`
	PrimarySortKey         string  `mapstructure:"primary_sort_key"`
	FastAnnounceInterval   float64 `mapstructure:"fast_announce_interval"`
	MaxAnnounceRetries     int     `mapstructure:"max_announce_retries"`
	ReconnectInterval      int     `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts   int     `mapstructure:"max_reconnect_attempts"`
	ConnectionTimeout      int     `mapstructure:"connection_timeout"`
	DebugAddStopped        bool    `mapstructure:"debug_add_stopped"`

	WebhookHost string `mapstructure:"webhook_host"`
	WebhookPort int    `mapstructure:"webhook_port"`
	WebhookPath string `mapstructure:"webhook_path"`

	WatchDir              string `mapstructure:"watch_dir"`
	TorrentMaxAgeMinutes  int    `mapstructure:"torrent_max_age_minutes"`

	LogDir   string `mapstructure:"log_dir"`
	LogLevel string `mapstructure:"log_level"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// InstanceConfig describes a single qBittorrent daemon.
// TrafficLimit and ReservedSpace are configured in MiB.
type InstanceConfig struct {
	Name            string  `mapstructure:"name"`
	URL             string  `mapstructure:"url"`
	Username        string  `mapstructure:"username"`
	Password        string  `mapstructure:"password"`
	TrafficCheckURL string  `mapstructure:"traffic_check_url"`
	TrafficLimit    float64 `mapstructure:"traffic_limit"`
	ReservedSpace   float64 `mapstructure:"reserved_space"`
}

// TrafficLimitBytes converts the configured MiB limit to bytes. Zero means unlimited.
func (ic InstanceConfig) TrafficLimitBytes() int64 {
	if ic.TrafficLimit <= 0 {
		return 0
	}
	return int64(ic.TrafficLimit * mib)
}

// ReservedSpaceBytes converts the configured MiB floor to bytes, defaulting to 21 GiB.
func (ic InstanceConfig) ReservedSpaceBytes() int64 {
	if ic.ReservedSpace <= 0 {
		return int64(DefaultReservedSpaceMiB) * mib
	}
	return int64(ic.ReservedSpace * mib)
}

// SortKey selects the primary ordering metric for instance selection.
// All keys are smallest-wins.
type SortKey int

const (
	SortKeyUploadSpeed SortKey = iota
	SortKeyDownloadSpeed
	SortKeyActiveDownloads
)

func (k SortKey) String() string {
	switch k {
	case SortKeyDownloadSpeed:
		return "download_speed"
	case SortKeyActiveDownloads:
		return "active_downloads"
	default:
		return "upload_speed"
	}
}

// ParseSortKey maps a config string to a SortKey. Unknown values return an
// error so the caller can fall back to upload_speed with a warning.
func ParseSortKey(s string) (SortKey, error) {
	switch s {
	case "", "upload_speed":
		return SortKeyUploadSpeed, nil
	case "download_speed":
		return SortKeyDownloadSpeed, nil
	case "active_downloads":
		return SortKeyActiveDownloads, nil
	}
	return SortKeyUploadSpeed, fmt.Errorf("unsupported primary_sort_key %q", s)
}
