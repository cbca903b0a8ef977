// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "holoenv"

// Collector records holoenv metrics into its own registry.
type Collector struct {
	processSpawns       *prometheus.CounterVec
	processTerminations *prometheus.CounterVec
	readinessDuration   *prometheus.HistogramVec
	rpcRequests         *prometheus.CounterVec
	rpcDuration         *prometheus.HistogramVec
	channelsOpen        *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Collector with all metrics registered.
func New() *Collector {
	collector := &Collector{registry: prometheus.NewRegistry()}

	collector.processSpawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_spawns_total",
			Help:      "Process spawn attempts by process name and outcome",
		},
		[]string{"process", "status"},
	)

	collector.processTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_terminations_total",
			Help:      "Termination signals sent by process name",
		},
		[]string{"process"},
	)

	collector.readinessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_duration_seconds",
			Help:      "Time spent waiting for a readiness marker",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"process", "probe", "status"},
	)

	collector.rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Request/response round-trips by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	collector.rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Request/response round-trip latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	collector.channelsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_open",
			Help:      "Currently open websocket channels",
		},
		[]string{"channel"},
	)

	collector.registry.MustRegister(
		collector.processSpawns,
		collector.processTerminations,
		collector.readinessDuration,
		collector.rpcRequests,
		collector.rpcDuration,
		collector.channelsOpen,
	)
	return collector
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ProcessSpawned records a spawn attempt.
func (c *Collector) ProcessSpawned(process string, err error) {
	if c == nil {
		return
	}
	c.processSpawns.WithLabelValues(process, status(err)).Inc()
}

// ProcessTerminated records a termination signal.
func (c *Collector) ProcessTerminated(process string) {
	if c == nil {
		return
	}
	c.processTerminations.WithLabelValues(process).Inc()
}

// ReadinessWait records how long a readiness probe took. probe is
// "log" or "stream".
func (c *Collector) ReadinessWait(process, probe string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.readinessDuration.WithLabelValues(process, probe, status(err)).Observe(elapsed.Seconds())
}

// RPCRequest records one request/response round-trip.
func (c *Collector) RPCRequest(channel string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.rpcRequests.WithLabelValues(channel, status(err)).Inc()
	c.rpcDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
}

// ChannelOpened increments the open-channel gauge.
func (c *Collector) ChannelOpened(channel string) {
	if c == nil {
		return
	}
	c.channelsOpen.WithLabelValues(channel).Inc()
}

// ChannelClosed decrements the open-channel gauge.
func (c *Collector) ChannelClosed(channel string) {
	if c == nil {
		return
	}
	c.channelsOpen.WithLabelValues(channel).Dec()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
