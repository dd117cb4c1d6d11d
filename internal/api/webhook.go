// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/qbload/internal/balancer"
)

// Dispatcher is the balancer surface the HTTP layer needs.
type Dispatcher interface {
	Enqueue(pt balancer.PendingTorrent) error
	ConnectedCount() int
}

// webhookPayload is the autobrr notification body. dl_limit/up_limit are
// KiB/s; the camelCase aliases match older autobrr filter actions.
type webhookPayload struct {
	ReleaseName string `json:"release_name"`
	DownloadURL string `json:"download_url"`
	Indexer     string `json:"indexer"`
	Category    string `json:"category"`

	DlLimit      int64  `json:"dl_limit"`
	DlLimitAlias int64  `json:"dlLimit"`
	UpLimit      int64  `json:"up_limit"`
	UpLimitAlias int64  `json:"upLimit"`
	SavePath     string `json:"savepath"`
	SavePathAlt  string `json:"savePath"`
}

func (p *webhookPayload) dlLimit() int64 {
	if p.DlLimit != 0 {
		return p.DlLimit
	}
	return p.DlLimitAlias
}

func (p *webhookPayload) upLimit() int64 {
	if p.UpLimit != 0 {
		return p.UpLimit
	}
	return p.UpLimitAlias
}

func (p *webhookPayload) savePath() string {
	if p.SavePath != "" {
		return p.SavePath
	}
	return p.SavePathAlt
}

// WebhookHandler accepts release notifications and feeds the dispatch queue.
type WebhookHandler struct {
	dispatcher Dispatcher
}

func NewWebhookHandler(dispatcher Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Error().Err(err).Msg("webhook request has no usable JSON body")
		RespondError(w, http.StatusBadRequest, "No JSON data")
		return
	}

	if payload.ReleaseName == "" || payload.DownloadURL == "" {
		log.Error().
			Str("release_name", payload.ReleaseName).
			Str("download_url", payload.DownloadURL).
			Msg("webhook payload missing required fields")
		RespondError(w, http.StatusBadRequest, "release_name and download_url are required")
		return
	}

	category := payload.Category
	if category == "" {
		category = payload.Indexer
	}

	log.Info().
		Str("name", payload.ReleaseName).
		Str("indexer", payload.Indexer).
		Str("category", category).
		Msg("received webhook notification")

	err := h.dispatcher.Enqueue(balancer.PendingTorrent{
		DownloadURL: payload.DownloadURL,
		ReleaseName: payload.ReleaseName,
		Category:    category,
		SavePath:    payload.savePath(),
		DlLimit:     payload.dlLimit(),
		UpLimit:     payload.upLimit(),
	})
	if err != nil {
		log.Error().Err(err).Str("name", payload.ReleaseName).Msg("failed to queue torrent")
		RespondJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Failed to process torrent",
		})
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Torrent processed",
	})
}

// HealthHandler reports liveness plus the connected instance count.
type HealthHandler struct {
	dispatcher Dispatcher
}

func NewHealthHandler(dispatcher Dispatcher) *HealthHandler {
	return &HealthHandler{dispatcher: dispatcher}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"timestamp":           time.Now().Format(time.RFC3339),
		"instances_connected": h.dispatcher.ConnectedCount(),
	})
}
