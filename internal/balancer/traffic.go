// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package balancer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// trafficThrottledSentinel stands in for "over any finite limit" when the
// gateway reports active throttling.
const trafficThrottledSentinel int64 = 999999999

const trafficProbeTimeout = 5 * time.Second

// trafficReport is the gateway response shape. Out is cumulative outbound
// traffic in MiB for the current billing window.
type trafficReport struct {
	Out              float64 `json:"out"`
	TrafficThrottled bool    `json:"trafficThrottled"`
}

// TrafficProbe queries per-instance traffic gateways. Probe failures are soft:
// an instance with an unreachable gateway keeps accepting tasks.
type TrafficProbe struct {
	httpClient *http.Client
}

func NewTrafficProbe() *TrafficProbe {
	return &TrafficProbe{
		httpClient: &http.Client{Timeout: trafficProbeTimeout},
	}
}

// Probe fetches the outbound traffic counter for one instance, in bytes.
// Returns 0 (treated as unchecked) on any transport or decode failure, and
// the throttled sentinel when the gateway reports throttling.
func (p *TrafficProbe) Probe(ctx context.Context, instanceName, checkURL string) int64 {
	if checkURL == "" {
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		log.Warn().Err(err).Str("instance", instanceName).Msg("invalid traffic check url")
		return 0
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("instance", instanceName).Msg("traffic check request failed")
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("instance", instanceName).Msg("traffic check returned non-200")
		return 0
	}

	var report trafficReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		log.Warn().Err(err).Str("instance", instanceName).Msg("could not decode traffic check response")
		return 0
	}

	if report.TrafficThrottled {
		log.Warn().Str("instance", instanceName).Msg("instance traffic is throttled")
		return trafficThrottledSentinel
	}

	out := int64(report.Out * 1024 * 1024)
	log.Debug().Str("instance", instanceName).Int64("trafficOut", out).Msg("traffic check succeeded")
	return out
}
