// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package watcher feeds .torrent files dropped into a directory to the
// dispatch queue.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qbload/internal/balancer"
)

const processedDirName = "processed"

// settleDelay gives the writer time to finish the file after a create event.
const settleDelay = 500 * time.Millisecond

// Enqueuer is the queue surface the watcher needs.
type Enqueuer interface {
	Enqueue(pt balancer.PendingTorrent) error
}

// Watcher picks up .torrent files from a drop directory. The category comes
// from a leading [name] filename prefix; files older than maxAge are deleted
// instead of enqueued.
type Watcher struct {
	dir      string
	maxAge   time.Duration
	enqueuer Enqueuer

	fsWatcher *fsnotify.Watcher
	now       func() time.Time
}

func New(dir string, maxAgeMinutes int, enqueuer Enqueuer) (*Watcher, error) {
	if maxAgeMinutes <= 0 {
		maxAgeMinutes = 60
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not create fsnotify watcher")
	}

	return &Watcher{
		dir:       dir,
		maxAge:    time.Duration(maxAgeMinutes) * time.Minute,
		enqueuer:  enqueuer,
		fsWatcher: fsWatcher,
		now:       time.Now,
	}, nil
}

// Run scans the directory once, then processes create events until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()

	if err := os.MkdirAll(filepath.Join(w.dir, processedDirName), 0o755); err != nil {
		return errors.Wrap(err, "could not create processed directory")
	}
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return errors.Wrapf(err, "could not watch %s", w.dir)
	}

	log.Info().Str("dir", w.dir).Msg("watching for torrent files")

	w.scan()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) && isTorrentFile(event.Name) {
				time.Sleep(settleDelay)
				w.processFile(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// scan processes torrent files already present at startup.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("could not scan watch directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isTorrentFile(entry.Name()) {
			continue
		}
		w.processFile(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) processFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not stat torrent file")
		return
	}

	if w.now().Sub(info.ModTime()) > w.maxAge {
		log.Info().Str("path", path).Msg("torrent file exceeds max age, deleting")
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not delete stale torrent file")
		}
		return
	}

	category, name := parseFilename(filepath.Base(path))

	// Move first so the queued path stays valid after the drop dir is
	// cleaned up.
	dest := filepath.Join(w.dir, processedDirName, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not move torrent file to processed")
		dest = path
	}

	err = w.enqueuer.Enqueue(balancer.PendingTorrent{
		DownloadURL: dest,
		ReleaseName: name,
		Category:    category,
	})
	if err != nil {
		log.Error().Err(err).Str("path", dest).Msg("could not queue torrent file")
	}
}

// parseFilename splits an optional leading [category] prefix from the
// display name. The .torrent extension is dropped from the name.
func parseFilename(base string) (category, name string) {
	name = strings.TrimSuffix(base, filepath.Ext(base))
	if strings.HasPrefix(name, "[") {
		if end := strings.Index(name, "]"); end > 0 {
			category = name[1:end]
			name = strings.TrimSpace(name[end+1:])
		}
	}
	return category, name
}

func isTorrentFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".torrent")
}
