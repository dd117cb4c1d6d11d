// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/qbload/internal/balancer"
)

// BalancerCollector exposes per-instance load metrics plus the dispatch queue
// and announce supervision gauges.
type BalancerCollector struct {
	balancer *balancer.Balancer

	connectionStatusDesc *prometheus.Desc
	uploadSpeedDesc      *prometheus.Desc
	downloadSpeedDesc    *prometheus.Desc
	activeDownloadsDesc  *prometheus.Desc
	freeSpaceDesc        *prometheus.Desc
	trafficOutDesc       *prometheus.Desc
	addedTasksDesc       *prometheus.Desc
	queueDepthDesc       *prometheus.Desc
	announceWatchDesc    *prometheus.Desc
}

func NewBalancerCollector(b *balancer.Balancer) *BalancerCollector {
	return &BalancerCollector{
		balancer: b,

		connectionStatusDesc: prometheus.NewDesc(
			"qbload_instance_connection_status",
			"Connection status of qBittorrent instance (1=connected, 0=disconnected)",
			[]string{"instance_name"},
			nil,
		),
		uploadSpeedDesc: prometheus.NewDesc(
			"qbload_instance_upload_speed_kbps",
			"Current upload speed in KiB/s by instance",
			[]string{"instance_name"},
			nil,
		),
		downloadSpeedDesc: prometheus.NewDesc(
			"qbload_instance_download_speed_kbps",
			"Current download speed in KiB/s by instance",
			[]string{"instance_name"},
			nil,
		),
		activeDownloadsDesc: prometheus.NewDesc(
			"qbload_instance_active_downloads",
			"Number of torrents in downloading state by instance",
			[]string{"instance_name"},
			nil,
		),
		freeSpaceDesc: prometheus.NewDesc(
			"qbload_instance_free_space_bytes",
			"Free disk space reported by instance",
			[]string{"instance_name"},
			nil,
		),
		trafficOutDesc: prometheus.NewDesc(
			"qbload_instance_traffic_out_bytes",
			"Outbound traffic reported by the instance traffic gateway",
			[]string{"instance_name"},
			nil,
		),
		addedTasksDesc: prometheus.NewDesc(
			"qbload_instance_added_tasks_total",
			"Torrents placed on the instance since startup",
			[]string{"instance_name"},
			nil,
		),
		queueDepthDesc: prometheus.NewDesc(
			"qbload_queue_depth",
			"Torrents waiting for dispatch",
			nil,
			nil,
		),
		announceWatchDesc: prometheus.NewDesc(
			"qbload_announce_watch_count",
			"Torrents currently under announce supervision",
			nil,
			nil,
		),
	}
}

func (c *BalancerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connectionStatusDesc
	ch <- c.uploadSpeedDesc
	ch <- c.downloadSpeedDesc
	ch <- c.activeDownloadsDesc
	ch <- c.freeSpaceDesc
	ch <- c.trafficOutDesc
	ch <- c.addedTasksDesc
	ch <- c.queueDepthDesc
	ch <- c.announceWatchDesc
}

func (c *BalancerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, inst := range c.balancer.Instances() {
		connected := 0.0
		if inst.Connected {
			connected = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.connectionStatusDesc, prometheus.GaugeValue, connected, inst.Name)
		ch <- prometheus.MustNewConstMetric(c.uploadSpeedDesc, prometheus.GaugeValue, inst.UploadKBps, inst.Name)
		ch <- prometheus.MustNewConstMetric(c.downloadSpeedDesc, prometheus.GaugeValue, inst.DownloadKBps, inst.Name)
		ch <- prometheus.MustNewConstMetric(c.activeDownloadsDesc, prometheus.GaugeValue, float64(inst.ActiveDownloads), inst.Name)
		ch <- prometheus.MustNewConstMetric(c.freeSpaceDesc, prometheus.GaugeValue, float64(inst.FreeSpace), inst.Name)
		ch <- prometheus.MustNewConstMetric(c.trafficOutDesc, prometheus.GaugeValue, float64(inst.TrafficOut), inst.Name)
		ch <- prometheus.MustNewConstMetric(c.addedTasksDesc, prometheus.CounterValue, float64(inst.TotalAddedTasks), inst.Name)
	}

	ch <- prometheus.MustNewConstMetric(c.queueDepthDesc, prometheus.GaugeValue, float64(c.balancer.QueueLen()))
	ch <- prometheus.MustNewConstMetric(c.announceWatchDesc, prometheus.GaugeValue, float64(c.balancer.AnnounceWatchCount()))
}
