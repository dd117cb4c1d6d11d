// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"strings"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/qbload/internal/domain"
)

const (
	// snapshotRetryPause separates the two maindata attempts of a status tick.
	snapshotRetryPause = 5 * time.Second

	// trafficProbeEvery triggers the out-of-band probe on every Nth
	// successful snapshot per instance.
	trafficProbeEvery = 30

	reconnectAttemptPause = 2 * time.Second
)

// SnapshotObserver receives each successful maindata snapshot. The announce
// supervisor hangs off this hook.
type SnapshotObserver func(ctx context.Context, instanceName string, client Client, md *qbt.MainData)

// Registry owns the ordered set of Instance records and their health.
type Registry struct {
	mu        sync.Mutex
	instances []*Instance

	dialer               Dialer
	probe                *TrafficProbe
	reconnectInterval    time.Duration
	maxReconnectAttempts int

	onSnapshot SnapshotObserver

	now   func() time.Time
	sleep func(time.Duration)
}

// NewRegistry builds the registry from config. Instances are created once and
// live for the whole process.
func NewRegistry(cfg *domain.Config, dialer Dialer) *Registry {
	r := &Registry{
		dialer:               dialer,
		probe:                NewTrafficProbe(),
		reconnectInterval:    time.Duration(cfg.ReconnectInterval) * time.Second,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		now:                  time.Now,
		sleep:                time.Sleep,
	}
	if r.maxReconnectAttempts <= 0 {
		r.maxReconnectAttempts = 1
	}
	for _, ic := range cfg.Instances {
		r.instances = append(r.instances, newInstance(ic))
	}
	return r
}

// SetSnapshotObserver wires the announce supervisor into the status tick.
func (r *Registry) SetSnapshotObserver(fn SnapshotObserver) {
	r.onSnapshot = fn
}

// ConnectAll performs the startup connection attempt for every instance.
// Failures are logged and left for the reconnect scheduler; startup never
// fails because a daemon is down.
func (r *Registry) ConnectAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, inst := range r.instances {
		g.Go(func() error {
			client, err := r.dialer.Dial(ctx, inst.Name, inst.URL, inst.Username, inst.Password)

			r.mu.Lock()
			if err != nil {
				inst.Connected = false
				inst.LastUpdate = r.now()
			} else {
				inst.client = client
				inst.Connected = true
				inst.LastUpdate = r.now()
			}
			r.mu.Unlock()

			if err != nil {
				log.Error().Err(err).Str("instance", inst.Name).Msg("failed to connect to instance")
			} else {
				log.Info().Str("instance", inst.Name).Msg("connected to instance")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Snapshot returns read-only copies of every instance record.
func (r *Registry) Snapshot() []InstanceView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]InstanceView, 0, len(r.instances))
	for _, inst := range r.instances {
		views = append(views, inst.view())
	}
	return views
}

// ConnectedCount reports how many instances currently hold a live client.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inst := range r.instances {
		if inst.Connected {
			n++
		}
	}
	return n
}

type connectedHandle struct {
	inst   *Instance
	client Client
}

// StatusTick refreshes metrics for every connected instance and feeds each
// snapshot to the announce supervisor. I/O happens outside the registry
// mutex; only the status worker writes instance metrics, so the brief
// copy/publish windows are safe.
func (r *Registry) StatusTick(ctx context.Context) {
	r.mu.Lock()
	handles := make([]connectedHandle, 0, len(r.instances))
	for _, inst := range r.instances {
		if inst.Connected && inst.client != nil {
			handles = append(handles, connectedHandle{inst: inst, client: inst.client})
		}
	}
	r.mu.Unlock()

	for _, h := range handles {
		if ctx.Err() != nil {
			return
		}
		r.updateInstance(ctx, h)
	}
}

// updateInstance fetches a maindata snapshot with a single retry. A lone
// transient failure never disconnects the instance; two in a row do.
func (r *Registry) updateInstance(ctx context.Context, h connectedHandle) {
	md, err := h.client.SyncMainDataCtx(ctx, 0)
	if err != nil {
		log.Warn().Err(err).Str("instance", h.inst.Name).Msg("failed to update instance status, retrying in 5s")
		r.sleep(snapshotRetryPause)

		md, err = h.client.SyncMainDataCtx(ctx, 0)
		if err != nil {
			log.Error().Err(err).Str("instance", h.inst.Name).Msg("status update failed after retry, marking disconnected")
			r.mu.Lock()
			h.inst.Connected = false
			h.inst.client = nil
			h.inst.LastUpdate = r.now()
			r.mu.Unlock()
			return
		}
		log.Info().Str("instance", h.inst.Name).Msg("status update retry succeeded")
	}

	shouldProbe := r.publishMetrics(h.inst, md)

	if shouldProbe {
		out := r.probe.Probe(ctx, h.inst.Name, h.inst.TrafficCheckURL)
		r.mu.Lock()
		h.inst.TrafficOut = out
		r.mu.Unlock()
	}

	if r.onSnapshot != nil {
		r.onSnapshot(ctx, h.inst.Name, h.client, md)
	}
}

// publishMetrics writes the derived metrics under the mutex and reports
// whether this success lands on the traffic-probe duty cycle.
func (r *Registry) publishMetrics(inst *Instance, md *qbt.MainData) bool {
	active := 0
	for _, t := range md.Torrents {
		if t.State == qbt.TorrentStateDownloading {
			active++
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst.UploadKBps = float64(md.ServerState.UpInfoSpeed) / 1024
	inst.DownloadKBps = float64(md.ServerState.DlInfoSpeed) / 1024
	inst.FreeSpace = md.ServerState.FreeSpaceOnDisk
	inst.ActiveDownloads = active
	inst.LastUpdate = r.now()
	inst.SuccessMetricsCount++

	log.Debug().
		Str("instance", inst.Name).
		Float64("uploadKBps", inst.UploadKBps).
		Float64("downloadKBps", inst.DownloadKBps).
		Int("activeDownloads", inst.ActiveDownloads).
		Int64("freeSpace", inst.FreeSpace).
		Int64("totalAddedTasks", inst.TotalAddedTasks).
		Msg("instance metrics updated")

	return inst.TrafficCheckURL != "" && inst.SuccessMetricsCount%trafficProbeEvery == 0
}

// CheckAndScheduleReconnects marks due disconnected instances as reconnecting
// and launches one background reconnect task per instance, outside the mutex.
func (r *Registry) CheckAndScheduleReconnects(ctx context.Context) {
	now := r.now()

	var due []*Instance
	r.mu.Lock()
	for _, inst := range r.instances {
		if inst.Connected || inst.Reconnecting {
			continue
		}
		if now.Sub(inst.LastUpdate) >= r.reconnectInterval {
			inst.Reconnecting = true
			inst.LastUpdate = now
			due = append(due, inst)
		}
	}
	r.mu.Unlock()

	for _, inst := range due {
		log.Info().Str("instance", inst.Name).Msg("scheduling reconnect")
		go r.reconnect(ctx, inst)
	}
}

// reconnect runs the bounded login attempts for one instance. On exhaustion
// the instance stays disconnected and becomes eligible for another round no
// earlier than reconnectInterval from now.
func (r *Registry) reconnect(ctx context.Context, inst *Instance) {
	var client Client

	err := retry.Do(
		func() error {
			c, err := r.dialer.Dial(ctx, inst.Name, inst.URL, inst.Username, inst.Password)
			if err != nil {
				return err
			}
			client = c
			return nil
		},
		retry.Attempts(uint(r.maxReconnectAttempts)),
		retry.Delay(reconnectAttemptPause),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	inst.Reconnecting = false
	if err != nil {
		inst.Connected = false
		inst.LastUpdate = r.now()
		log.Error().Err(err).Str("instance", inst.Name).Int("attempts", r.maxReconnectAttempts).Msg("reconnect failed")
		return
	}

	inst.client = client
	inst.Connected = true
	inst.LastUpdate = r.now()
	log.Info().Str("instance", inst.Name).Msg("reconnected to instance")
}

// RecordAdd bumps the per-round and lifetime placement counters after a
// successful torrents/add.
func (r *Registry) RecordAdd(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.Name == name {
			inst.NewTasksThisRound++
			inst.TotalAddedTasks++
			return
		}
	}
}

// ResetRound zeroes every per-round counter after a dispatch pass.
func (r *Registry) ResetRound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		inst.NewTasksThisRound = 0
	}
}

// LogStatusSummary emits the per-tick fleet overview.
func (r *Registry) LogStatusSummary() {
	r.mu.Lock()
	total := len(r.instances)
	connected := 0
	var down []string
	for _, inst := range r.instances {
		if inst.Connected {
			connected++
		} else {
			down = append(down, inst.Name)
		}
	}
	r.mu.Unlock()

	ev := log.Debug().Int("connected", connected).Int("total", total)
	if len(down) > 0 {
		ev = ev.Str("disconnected", strings.Join(down, ", "))
	}
	ev.Msg("instance status")
}
