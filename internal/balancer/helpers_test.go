// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/autobrr/qbload/internal/qbittorrent"
)

type fakeClient struct {
	mu sync.Mutex

	mainData *qbt.MainData
	syncErrs []error

	trackers    map[string][]qbt.TorrentTracker
	trackersErr error
	trackerGets []string

	reannounced [][]string
	reannErr    error

	added  []string
	addErr error
}

func (f *fakeClient) SyncMainDataCtx(ctx context.Context, rid int64) (*qbt.MainData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.syncErrs) > 0 {
		err := f.syncErrs[0]
		f.syncErrs = f.syncErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.mainData == nil {
		return &qbt.MainData{}, nil
	}
	return f.mainData, nil
}

func (f *fakeClient) GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbt.TorrentTracker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackerGets = append(f.trackerGets, hash)
	if f.trackersErr != nil {
		return nil, f.trackersErr
	}
	return f.trackers[hash], nil
}

func (f *fakeClient) ReAnnounceTorrentsCtx(ctx context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reannounced = append(f.reannounced, hashes)
	return f.reannErr
}

func (f *fakeClient) AddTorrentURL(ctx context.Context, downloadURL string, opts qbittorrent.AddOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, downloadURL)
	return nil
}

func (f *fakeClient) reannouncedHashes() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.reannounced))
	copy(out, f.reannounced)
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	errs    map[string]error
	dials   map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		clients: make(map[string]*fakeClient),
		errs:    make(map[string]error),
		dials:   make(map[string]int),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, name, host, username, password string) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[name]++
	if err := d.errs[name]; err != nil {
		return nil, err
	}
	c, ok := d.clients[name]
	if !ok {
		c = &fakeClient{}
		d.clients[name] = c
	}
	return c, nil
}

func (d *fakeDialer) dialCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[name]
}
