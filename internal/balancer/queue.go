// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PendingTorrent is a release waiting for an eligible instance. Speed limits
// are KiB/s; zero values mean unlimited.
type PendingTorrent struct {
	DownloadURL string
	ReleaseName string
	Category    string
	SavePath    string
	DlLimit     int64
	UpLimit     int64
	EnqueuedAt  time.Time
}

// Queue is the FIFO of pending torrents between the webhook/watcher front
// ends and the dispatcher. Duplicate download URLs are rejected so a retried
// notification cannot double-place a release.
type Queue struct {
	mu    sync.Mutex
	items []PendingTorrent
	seen  map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{seen: make(map[string]struct{})}
}

// Enqueue appends a pending torrent. Entries without a download URL or
// release name are rejected.
func (q *Queue) Enqueue(pt PendingTorrent) error {
	if pt.DownloadURL == "" {
		return errors.New("pending torrent requires a download url")
	}
	if pt.ReleaseName == "" {
		return errors.New("pending torrent requires a release name")
	}
	if pt.EnqueuedAt.IsZero() {
		pt.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.seen[pt.DownloadURL]; dup {
		log.Debug().Str("name", pt.ReleaseName).Msg("torrent already queued, skipping duplicate")
		return nil
	}
	q.seen[pt.DownloadURL] = struct{}{}
	q.items = append(q.items, pt)

	log.Info().Str("name", pt.ReleaseName).Str("category", pt.Category).Int("queueDepth", len(q.items)).Msg("torrent queued")
	return nil
}

// Items returns a snapshot of the queue in FIFO order.
func (q *Queue) Items() []PendingTorrent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingTorrent, len(q.items))
	copy(out, q.items)
	return out
}

// Remove drops the entry with the given download URL, typically after a
// successful dispatch.
func (q *Queue) Remove(downloadURL string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.DownloadURL == downloadURL {
			q.items = append(q.items[:i], q.items[i+1:]...)
			delete(q.seen, downloadURL)
			return
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
