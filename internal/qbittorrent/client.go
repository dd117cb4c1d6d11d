// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"
)

// Client wraps the go-qbittorrent client for a single instance.
type Client struct {
	*qbt.Client
	instanceName    string
	webAPIVersion   string
	supportsStopped bool
}

// Dialer builds authenticated clients for configured instances.
type Dialer struct {
	// ConnectionTimeout bounds login and subsequent requests, in seconds.
	ConnectionTimeout int
}

// Dial connects and logs in to a qBittorrent instance. The returned client is
// ready for API calls; a login failure is returned as-is so callers can count
// reconnect attempts.
func (d Dialer) Dial(ctx context.Context, name, host, username, password string) (*Client, error) {
	timeout := d.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10
	}

	qbtClient := qbt.NewClient(qbt.Config{
		Host:     host,
		Username: username,
		Password: password,
		Timeout:  timeout,
	})

	loginCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	if err := qbtClient.LoginCtx(loginCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent instance %s: %w", name, err)
	}

	webAPIVersion, err := qbtClient.GetWebAPIVersionCtx(loginCtx)
	if err != nil {
		webAPIVersion = ""
	}

	client := &Client{
		Client:          qbtClient,
		instanceName:    name,
		webAPIVersion:   webAPIVersion,
		supportsStopped: supportsStoppedParam(webAPIVersion),
	}

	log.Debug().
		Str("instance", name).
		Str("host", host).
		Str("webAPIVersion", webAPIVersion).
		Msg("qBittorrent client created successfully")

	return client, nil
}

// supportsStoppedParam reports whether the instance accepts the "stopped"
// add parameter, which replaced "paused" in Web API 2.11.0 (qBittorrent 5.0).
func supportsStoppedParam(webAPIVersion string) bool {
	if webAPIVersion == "" {
		return false
	}
	v, err := semver.NewVersion(webAPIVersion)
	if err != nil {
		return false
	}
	return !v.LessThan(semver.MustParse("2.11.0"))
}

func (c *Client) InstanceName() string {
	return c.instanceName
}

func (c *Client) WebAPIVersion() string {
	return c.webAPIVersion
}

// AddOptions carries the per-torrent parameters of a dispatch handoff.
// Speed limits are KiB/s; zero values are omitted from the request.
type AddOptions struct {
	Category string
	SavePath string
	DlLimit  int64
	UpLimit  int64
	Stopped  bool
}

// AddTorrentURL submits a torrent URL (or local path) to the instance.
// The stopped flag maps to the add parameter matching the instance's Web API
// version.
func (c *Client) AddTorrentURL(ctx context.Context, downloadURL string, opts AddOptions) error {
	qopts := qbt.TorrentAddOptions{
		Category:           opts.Category,
		SavePath:           opts.SavePath,
		LimitDownloadSpeed: opts.DlLimit,
		LimitUploadSpeed:   opts.UpLimit,
	}
	if opts.Stopped {
		if c.supportsStopped {
			qopts.Stopped = true
		} else {
			qopts.Paused = true
		}
	}
	return c.AddTorrentFromUrlCtx(ctx, downloadURL, qopts.Prepare())
}
