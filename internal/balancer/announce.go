// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"strings"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"
)

const (
	// Watch window bounds, in seconds since the torrent was added.
	announceWatchUpper     = 130
	announceWatchLower     = 2
	announceCompletedUpper = 60

	// Forced re-announce marks inside the watch window.
	forcedAnnounceFirstAt  = 60
	forcedAnnounceSecondAt = 120
)

// trackerErrorKeywords in a tracker message mean the release is not yet
// registered and a re-announce may pick it up once the tracker catches up.
var trackerErrorKeywords = []string{
	"unregistered",
	"not registered",
	"not found",
	"not exist",
}

// Announcer supervises freshly added torrents and re-announces them while the
// tracker may not yet know the release. Only the status worker calls Observe;
// the mutex covers concurrent Active and WatchCount readers.
type Announcer struct {
	mu     sync.Mutex
	counts map[string]int

	maxRetries int
	interval   float64

	now func() time.Time
}

func NewAnnouncer(interval float64, maxRetries int) *Announcer {
	if interval <= 0 {
		interval = 3
	}
	if maxRetries <= 0 {
		maxRetries = 12
	}
	return &Announcer{
		counts:     make(map[string]int),
		maxRetries: maxRetries,
		interval:   interval,
		now:        time.Now,
	}
}

// Active reports whether any torrent is currently under supervision. The
// status worker speeds up its cadence while this is true.
func (a *Announcer) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.counts) > 0
}

// WatchCount returns the number of supervised torrents.
func (a *Announcer) WatchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.counts)
}

// Observe walks one instance snapshot: torrents inside the watch window get
// their check counter bumped and may be re-announced, torrents outside it are
// evicted. Tracker RPC failures are logged and skipped; the torrent stays
// under supervision for the next pass.
func (a *Announcer) Observe(ctx context.Context, instanceName string, client Client, md *qbt.MainData) {
	if md == nil {
		return
	}
	now := a.now()

	for hash, t := range md.Torrents {
		age := now.Unix() - t.AddedOn
		completed := t.Progress >= 1.0

		if (completed && age > announceCompletedUpper) || age > announceWatchUpper || age < announceWatchLower {
			a.evict(hash)
			continue
		}

		k := a.bump(hash)

		if a.forcedMark(k) {
			if !completed {
				log.Info().
					Str("instance", instanceName).
					Str("name", t.Name).
					Int("checks", k).
					Msg("forcing re-announce for young incomplete torrent")
				if err := client.ReAnnounceTorrentsCtx(ctx, []string{hash}); err != nil {
					log.Warn().Err(err).Str("instance", instanceName).Str("name", t.Name).Msg("forced re-announce failed")
				}
			}
			continue
		}

		if k >= a.maxRetries {
			continue
		}

		a.checkTrackers(ctx, instanceName, client, hash, t)
	}
}

// forcedMark reports whether the k-th check lands on one of the fixed
// re-announce marks for the configured cadence.
func (a *Announcer) forcedMark(k int) bool {
	first := int(forcedAnnounceFirstAt / a.interval)
	second := int(forcedAnnounceSecondAt / a.interval)
	return k == first || k == second
}

// checkTrackers re-announces when the tracker state suggests the swarm has
// not picked the torrent up: every tracker failing, a registration error
// message, or a near-empty peer list on an incomplete download.
func (a *Announcer) checkTrackers(ctx context.Context, instanceName string, client Client, hash string, t qbt.Torrent) {
	trackers, err := client.GetTorrentTrackersCtx(ctx, hash)
	if err != nil {
		log.Warn().Err(err).Str("instance", instanceName).Str("name", t.Name).Msg("could not fetch trackers")
		return
	}

	real := realTrackers(trackers)
	if len(real) == 0 {
		return
	}

	reason := ""
	switch {
	case allTrackersFailing(real):
		reason = "all trackers failing"
	case hasRegistrationError(real):
		reason = "tracker reports unregistered torrent"
	case t.Progress < 0.8 && t.NumLeechs < 3:
		reason = "few peers on incomplete torrent"
	}
	if reason == "" {
		return
	}

	log.Info().
		Str("instance", instanceName).
		Str("name", t.Name).
		Str("reason", reason).
		Msg("re-announcing torrent")

	if err := client.ReAnnounceTorrentsCtx(ctx, []string{hash}); err != nil {
		log.Warn().Err(err).Str("instance", instanceName).Str("name", t.Name).Msg("re-announce failed")
	}
}

func (a *Announcer) bump(hash string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[hash]++
	return a.counts[hash]
}

func (a *Announcer) evict(hash string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, hash)
}

// realTrackers drops the DHT/PeX/LSD pseudo-entries and anything that is not
// an HTTP tracker.
func realTrackers(trackers []qbt.TorrentTracker) []qbt.TorrentTracker {
	out := make([]qbt.TorrentTracker, 0, len(trackers))
	for _, tr := range trackers {
		if !strings.HasPrefix(tr.Url, "http://") && !strings.HasPrefix(tr.Url, "https://") {
			continue
		}
		out = append(out, tr)
	}
	return out
}

// allTrackersFailing is true when no tracker has answered OK: every entry is
// still waiting, updating, or outright not working.
func allTrackersFailing(trackers []qbt.TorrentTracker) bool {
	for _, tr := range trackers {
		switch tr.Status {
		case qbt.TrackerStatusNotContacted, qbt.TrackerStatusUpdating, qbt.TrackerStatusNotWorking:
		default:
			return false
		}
	}
	return true
}

func hasRegistrationError(trackers []qbt.TorrentTracker) bool {
	for _, tr := range trackers {
		msg := strings.ToLower(tr.Message)
		for _, kw := range trackerErrorKeywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}
	return false
}
