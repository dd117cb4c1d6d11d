// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnnouncer() *Announcer {
	a := NewAnnouncer(3, 12)
	a.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return a
}

func youngTorrent(ageSeconds int64, progress float64, leechs int64) qbt.Torrent {
	return qbt.Torrent{
		Name:      "Some.Release",
		AddedOn:   1_700_000_000 - ageSeconds,
		Progress:  progress,
		NumLeechs: leechs,
	}
}

func mainData(hash string, t qbt.Torrent) *qbt.MainData {
	return &qbt.MainData{Torrents: map[string]qbt.Torrent{hash: t}}
}

func okTracker() qbt.TorrentTracker {
	return qbt.TorrentTracker{Url: "https://tracker.example/announce", Status: qbt.TrackerStatusOK}
}

func TestAnnouncer_EvictsTorrentsOutsideWatchWindow(t *testing.T) {
	tests := []struct {
		name    string
		torrent qbt.Torrent
	}{
		{name: "too old", torrent: youngTorrent(200, 0.1, 0)},
		{name: "too young", torrent: youngTorrent(0, 0.0, 0)},
		{name: "completed past grace", torrent: youngTorrent(90, 1.0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testAnnouncer()
			a.counts["h1"] = 5
			client := &fakeClient{}

			a.Observe(context.Background(), "a", client, mainData("h1", tt.torrent))

			assert.Equal(t, 0, a.WatchCount())
			assert.Empty(t, client.reannouncedHashes())
		})
	}
}

func TestAnnouncer_CompletedInsideGraceStaysWatched(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {okTracker()}}}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 1.0, 5)))

	assert.Equal(t, 1, a.WatchCount())
}

func TestAnnouncer_ForcedReannounceMarks(t *testing.T) {
	// interval 3s puts the forced marks at the 20th and 40th checks
	for _, k := range []int{20, 40} {
		a := testAnnouncer()
		a.counts["h1"] = k - 1
		client := &fakeClient{}

		a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(60, 0.3, 10)))

		require.Len(t, client.reannouncedHashes(), 1)
		assert.Equal(t, []string{"h1"}, client.reannouncedHashes()[0])
		assert.Empty(t, client.trackerGets, "forced mark skips the tracker check")
	}
}

func TestAnnouncer_ForcedMarkSkipsCompletedTorrent(t *testing.T) {
	a := testAnnouncer()
	a.counts["h1"] = 19
	client := &fakeClient{}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 1.0, 10)))

	assert.Empty(t, client.reannouncedHashes())
}

func TestAnnouncer_StopsConditionalChecksAtRetryCap(t *testing.T) {
	a := testAnnouncer()
	a.counts["h1"] = 12
	client := &fakeClient{}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(60, 0.1, 0)))

	assert.Empty(t, client.trackerGets)
	assert.Empty(t, client.reannouncedHashes())
	assert.Equal(t, 1, a.WatchCount(), "torrent stays watched until eviction")
}

func TestAnnouncer_ReannouncesWhenAllTrackersFailing(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {
		{Url: "https://tracker.example/announce", Status: qbt.TrackerStatusNotContacted},
		{Url: "https://backup.example/announce", Status: qbt.TrackerStatusNotWorking},
	}}}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.9, 10)))

	require.Len(t, client.reannouncedHashes(), 1)
	assert.Equal(t, []string{"h1"}, client.reannouncedHashes()[0])
}

func TestAnnouncer_ReannouncesOnRegistrationError(t *testing.T) {
	for _, msg := range []string{
		"Torrent is unregistered",
		"torrent Not Registered with this tracker",
		"info hash not found",
		"torrent does not exist",
	} {
		a := testAnnouncer()
		client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {
			{Url: "https://tracker.example/announce", Status: qbt.TrackerStatusOK, Message: msg},
		}}}

		a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.9, 10)))

		require.Len(t, client.reannouncedHashes(), 1, "message %q should trigger a re-announce", msg)
	}
}

func TestAnnouncer_ReannouncesPeerStarvedIncomplete(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {okTracker()}}}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.5, 1)))

	require.Len(t, client.reannouncedHashes(), 1)
}

func TestAnnouncer_HealthyTorrentIsLeftAlone(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {okTracker()}}}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.9, 10)))

	assert.Empty(t, client.reannouncedHashes())
	assert.Equal(t, 1, a.WatchCount())
}

func TestAnnouncer_IgnoresPseudoTrackers(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {
		{Url: "** [DHT] **", Status: qbt.TrackerStatusNotWorking},
		{Url: "** [PeX] **", Status: qbt.TrackerStatusNotWorking},
		{Url: "** [LSD] **", Status: qbt.TrackerStatusNotWorking},
		okTracker(),
	}}}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.9, 10)))

	assert.Empty(t, client.reannouncedHashes(), "only real trackers count toward the all-failing check")
}

func TestAnnouncer_TrackerFetchFailureKeepsWatching(t *testing.T) {
	a := testAnnouncer()
	client := &fakeClient{trackersErr: assert.AnError}

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.5, 0)))

	assert.Empty(t, client.reannouncedHashes())
	assert.Equal(t, 1, a.WatchCount())
}

func TestAnnouncer_ActiveReflectsWatchSet(t *testing.T) {
	a := testAnnouncer()
	assert.False(t, a.Active())

	client := &fakeClient{trackers: map[string][]qbt.TorrentTracker{"h1": {okTracker()}}}
	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(30, 0.9, 10)))
	assert.True(t, a.Active())

	a.Observe(context.Background(), "a", client, mainData("h1", youngTorrent(200, 0.9, 10)))
	assert.False(t, a.Active())
}
