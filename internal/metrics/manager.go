// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qbload/internal/balancer"
)

type Manager struct {
	registry          *prometheus.Registry
	balancerCollector *BalancerCollector
}

func NewManager(b *balancer.Balancer) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	balancerCollector := NewBalancerCollector(b)
	registry.MustRegister(balancerCollector)

	log.Info().Msg("Metrics manager initialized with balancer collector")

	return &Manager{
		registry:          registry,
		balancerCollector: balancerCollector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
