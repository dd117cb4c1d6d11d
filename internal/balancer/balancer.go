// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package balancer distributes incoming torrents across a fleet of
// qBittorrent instances and keeps fresh torrents announced while trackers
// catch up with new releases.
package balancer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/qbload/internal/domain"
)

const dispatchCadence = time.Second

// Balancer owns the instance registry, the pending queue, the dispatcher and
// the announce supervisor, and runs their workers.
type Balancer struct {
	cfg       *domain.Config
	registry  *Registry
	queue     *Queue
	scheduler *Scheduler
	announcer *Announcer
}

func New(cfg *domain.Config, sortKey domain.SortKey, dialer Dialer) *Balancer {
	registry := NewRegistry(cfg, dialer)
	queue := NewQueue()
	announcer := NewAnnouncer(cfg.FastAnnounceInterval, cfg.MaxAnnounceRetries)

	b := &Balancer{
		cfg:       cfg,
		registry:  registry,
		queue:     queue,
		scheduler: NewScheduler(registry, queue, sortKey, cfg.MaxNewTasksPerInstance, cfg.DebugAddStopped),
		announcer: announcer,
	}

	// Stopped torrents never announce, so supervision is pointless while
	// debug_add_stopped is on.
	if !cfg.DebugAddStopped {
		registry.SetSnapshotObserver(announcer.Observe)
	} else {
		log.Warn().Msg("debug_add_stopped is enabled: torrents are added stopped and announce supervision is off")
	}

	return b
}

// Enqueue adds a pending torrent for the next dispatch pass.
func (b *Balancer) Enqueue(pt PendingTorrent) error {
	return b.queue.Enqueue(pt)
}

// ConnectedCount reports how many instances currently hold a live session.
func (b *Balancer) ConnectedCount() int {
	return b.registry.ConnectedCount()
}

// QueueLen reports the number of torrents waiting for dispatch.
func (b *Balancer) QueueLen() int {
	return b.queue.Len()
}

// AnnounceWatchCount reports the number of torrents under announce
// supervision.
func (b *Balancer) AnnounceWatchCount() int {
	return b.announcer.WatchCount()
}

// Instances returns read-only copies of the instance records.
func (b *Balancer) Instances() []InstanceView {
	return b.registry.Snapshot()
}

// Run connects to the fleet and drives the status and dispatch workers until
// the context is cancelled.
func (b *Balancer) Run(ctx context.Context) error {
	b.registry.ConnectAll(ctx)
	log.Info().
		Int("connected", b.registry.ConnectedCount()).
		Int("total", len(b.cfg.Instances)).
		Msg("balancer started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.statusWorker(ctx) })
	g.Go(func() error { return b.dispatchWorker(ctx) })
	return g.Wait()
}

// statusWorker refreshes instance metrics on a cadence that tightens to the
// fast announce interval while young torrents are under supervision.
func (b *Balancer) statusWorker(ctx context.Context) error {
	fast := time.Duration(b.cfg.FastAnnounceInterval * float64(time.Second))
	slow := 2 * fast

	for {
		b.registry.StatusTick(ctx)
		b.registry.LogStatusSummary()
		b.registry.CheckAndScheduleReconnects(ctx)

		wait := slow
		if b.announcer.Active() {
			wait = fast
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// dispatchWorker drains the queue once per second.
func (b *Balancer) dispatchWorker(ctx context.Context) error {
	ticker := time.NewTicker(dispatchCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.scheduler.DispatchPass(ctx)
		}
	}
}
