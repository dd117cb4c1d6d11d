// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/qbload/internal/balancer"
)

type fakeDispatcher struct {
	enqueued  []balancer.PendingTorrent
	err       error
	connected int
}

func (f *fakeDispatcher) Enqueue(pt balancer.PendingTorrent) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, pt)
	return nil
}

func (f *fakeDispatcher) ConnectedCount() int {
	return f.connected
}

func newTestServer(d Dispatcher) http.Handler {
	return NewServer("127.0.0.1", 0, "/webhook", d, nil).Handler()
}

func TestWebhook_AcceptsNotification(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d)

	body := `{"release_name": "Some.Release.1080p", "download_url": "https://tracker.example/dl/1", "indexer": "tracker", "category": "movies"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "Torrent processed", resp["message"])

	require.Len(t, d.enqueued, 1)
	assert.Equal(t, "Some.Release.1080p", d.enqueued[0].ReleaseName)
	assert.Equal(t, "movies", d.enqueued[0].Category)
}

func TestWebhook_CategoryFallsBackToIndexer(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d)

	body := `{"release_name": "A", "download_url": "u", "indexer": "tracker"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.enqueued, 1)
	assert.Equal(t, "tracker", d.enqueued[0].Category)
}

func TestWebhook_ExtraFieldsRideAlong(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d)

	tests := []struct {
		name string
		body string
	}{
		{name: "snake_case", body: `{"release_name": "A", "download_url": "u1", "dl_limit": 1024, "up_limit": 2048, "savepath": "/data"}`},
		{name: "camelCase aliases", body: `{"release_name": "B", "download_url": "u2", "dlLimit": 1024, "upLimit": 2048, "savePath": "/data"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)

			got := d.enqueued[len(d.enqueued)-1]
			assert.Equal(t, int64(1024), got.DlLimit)
			assert.Equal(t, int64(2048), got.UpLimit)
			assert.Equal(t, "/data", got.SavePath)
		})
	}
}

func TestWebhook_RejectsMissingJSON(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No JSON data", resp.Error)
	assert.Empty(t, d.enqueued)
}

func TestWebhook_RejectsMissingRequiredFields(t *testing.T) {
	d := &fakeDispatcher{}
	srv := newTestServer(d)

	for _, body := range []string{
		`{"download_url": "u"}`,
		`{"release_name": "A"}`,
		`{}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Empty(t, d.enqueued)
}

func TestWebhook_EnqueueFailureIsInternalError(t *testing.T) {
	d := &fakeDispatcher{err: assert.AnError}
	srv := newTestServer(d)

	body := `{"release_name": "A", "download_url": "u"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
}

func TestHealth_ReportsConnectedInstances(t *testing.T) {
	d := &fakeDispatcher{connected: 3}
	srv := newTestServer(d)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(3), resp["instances_connected"])
	assert.NotEmpty(t, resp["timestamp"])
}

func TestWebhook_CustomPath(t *testing.T) {
	d := &fakeDispatcher{}
	srv := NewServer("127.0.0.1", 0, "/hooks/secret-path", d, nil).Handler()

	body := `{"release_name": "A", "download_url": "u"}`
	req := httptest.NewRequest(http.MethodPost, "/hooks/secret-path", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
