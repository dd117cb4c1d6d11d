// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/autobrr/qbload/internal/domain"
	"github.com/autobrr/qbload/internal/qbittorrent"
)

// Client is the subset of the qBittorrent API the balancer drives.
type Client interface {
	SyncMainDataCtx(ctx context.Context, rid int64) (*qbt.MainData, error)
	GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbt.TorrentTracker, error)
	ReAnnounceTorrentsCtx(ctx context.Context, hashes []string) error
	AddTorrentURL(ctx context.Context, downloadURL string, opts qbittorrent.AddOptions) error
}

// Dialer connects and authenticates against a single instance.
type Dialer interface {
	Dial(ctx context.Context, name, host, username, password string) (Client, error)
}

// Instance is the mutable per-daemon record owned by the Registry. All fields
// below the config block are guarded by the Registry mutex.
type Instance struct {
	Name            string
	URL             string
	Username        string
	Password        string
	TrafficCheckURL string
	TrafficLimit    int64 // bytes, 0 = unlimited
	ReservedSpace   int64 // bytes

	client Client

	Connected    bool
	Reconnecting bool

	UploadKBps      float64
	DownloadKBps    float64
	ActiveDownloads int
	FreeSpace       int64 // bytes
	TrafficOut      int64 // bytes

	NewTasksThisRound   int
	TotalAddedTasks     int64
	SuccessMetricsCount int64

	LastUpdate time.Time
}

// newInstance builds the process-lifetime record from config. The record is
// created disconnected; ConnectAll and the reconnect scheduler own the
// transition to connected.
func newInstance(ic domain.InstanceConfig) *Instance {
	return &Instance{
		Name:            ic.Name,
		URL:             ic.URL,
		Username:        ic.Username,
		Password:        ic.Password,
		TrafficCheckURL: ic.TrafficCheckURL,
		TrafficLimit:    ic.TrafficLimitBytes(),
		ReservedSpace:   ic.ReservedSpaceBytes(),
		LastUpdate:      time.Now(),
	}
}

// InstanceView is a read-only copy of an Instance for consumers outside the
// Registry mutex (health endpoint, metrics collector, tests).
type InstanceView struct {
	Name            string
	Connected       bool
	Reconnecting    bool
	UploadKBps      float64
	DownloadKBps    float64
	ActiveDownloads int
	FreeSpace       int64
	ReservedSpace   int64
	TrafficOut      int64
	TrafficLimit    int64
	NewTasksThisRound int
	TotalAddedTasks int64
	LastUpdate      time.Time
}

func (i *Instance) view() InstanceView {
	return InstanceView{
		Name:              i.Name,
		Connected:         i.Connected,
		Reconnecting:      i.Reconnecting,
		UploadKBps:        i.UploadKBps,
		DownloadKBps:      i.DownloadKBps,
		ActiveDownloads:   i.ActiveDownloads,
		FreeSpace:         i.FreeSpace,
		ReservedSpace:     i.ReservedSpace,
		TrafficOut:        i.TrafficOut,
		TrafficLimit:      i.TrafficLimit,
		NewTasksThisRound: i.NewTasksThisRound,
		TotalAddedTasks:   i.TotalAddedTasks,
		LastUpdate:        i.LastUpdate,
	}
}

// primarySortValue returns the configured smallest-wins selection metric.
func (i *Instance) primarySortValue(key domain.SortKey) float64 {
	switch key {
	case domain.SortKeyDownloadSpeed:
		return i.DownloadKBps
	case domain.SortKeyActiveDownloads:
		return float64(i.ActiveDownloads)
	default:
		return i.UploadKBps
	}
}

// trafficWithinLimit reports whether the instance may accept new tasks given
// its outbound traffic budget. Zero traffic means unknown or unchecked and is
// treated as allowed; zero limit means unlimited.
func (i *Instance) trafficWithinLimit() bool {
	if i.TrafficOut == 0 || i.TrafficLimit == 0 {
		return true
	}
	return i.TrafficOut < i.TrafficLimit
}
