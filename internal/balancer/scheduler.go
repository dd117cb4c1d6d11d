// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/qbload/internal/domain"
	"github.com/autobrr/qbload/internal/qbittorrent"
)

// Scheduler drains the pending queue onto the least loaded eligible
// instances.
type Scheduler struct {
	registry *Registry
	queue    *Queue

	sortKey         domain.SortKey
	maxTasksPerPass int
	addStopped      bool
}

func NewScheduler(registry *Registry, queue *Queue, sortKey domain.SortKey, maxTasksPerPass int, addStopped bool) *Scheduler {
	return &Scheduler{
		registry:        registry,
		queue:           queue,
		sortKey:         sortKey,
		maxTasksPerPass: maxTasksPerPass,
		addStopped:      addStopped,
	}
}

// eligible reports whether the instance may take another task this round.
func eligible(inst *Instance, maxTasksPerPass int) bool {
	if !inst.Connected || inst.client == nil {
		return false
	}
	if inst.NewTasksThisRound >= maxTasksPerPass {
		return false
	}
	if inst.FreeSpace <= inst.ReservedSpace {
		return false
	}
	return inst.trafficWithinLimit()
}

// pickEligible returns the least loaded eligible instance. Load order is the
// configured primary metric, then lifetime placements, then most free space;
// smallest wins on the first two, largest on the last.
func (r *Registry) pickEligible(sortKey domain.SortKey, maxTasksPerPass int) (string, Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Instance
	for _, inst := range r.instances {
		if !eligible(inst, maxTasksPerPass) {
			continue
		}
		if best == nil || lessLoaded(inst, best, sortKey) {
			best = inst
		}
	}
	if best == nil {
		return "", nil, false
	}
	return best.Name, best.client, true
}

func lessLoaded(a, b *Instance, sortKey domain.SortKey) bool {
	av, bv := a.primarySortValue(sortKey), b.primarySortValue(sortKey)
	if av != bv {
		return av < bv
	}
	if a.TotalAddedTasks != b.TotalAddedTasks {
		return a.TotalAddedTasks < b.TotalAddedTasks
	}
	return a.FreeSpace > b.FreeSpace
}

// DispatchPass walks the queue in FIFO order and hands each torrent to the
// least loaded eligible instance. The pass stops early when no instance can
// take more tasks; failed adds stay queued for the next pass. Round counters
// reset only after the full pass so the per-instance cap binds within it.
func (s *Scheduler) DispatchPass(ctx context.Context) {
	items := s.queue.Items()
	if len(items) == 0 {
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		name, client, ok := s.registry.pickEligible(s.sortKey, s.maxTasksPerPass)
		if !ok {
			log.Warn().Int("pending", s.queue.Len()).Msg("no eligible instance, leaving torrents queued")
			break
		}

		opts := qbittorrent.AddOptions{
			Category: item.Category,
			SavePath: item.SavePath,
			DlLimit:  item.DlLimit,
			UpLimit:  item.UpLimit,
			Stopped:  s.addStopped,
		}

		if err := client.AddTorrentURL(ctx, item.DownloadURL, opts); err != nil {
			log.Error().Err(err).Str("instance", name).Str("name", item.ReleaseName).Msg("failed to add torrent")
			continue
		}

		s.queue.Remove(item.DownloadURL)
		s.registry.RecordAdd(name)

		log.Info().
			Str("instance", name).
			Str("name", item.ReleaseName).
			Str("category", item.Category).
			Msg("torrent added")
	}

	s.registry.ResetRound()
}
