// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package qmetrics provides opt-in Prometheus instrumentation for a running
// qdisc: packets enqueued/dequeued/dropped, current backlog, and active flow
// counts. Disabled by default so a unit test or a library embedder never
// pays for an HTTP listener it didn't ask for.
package qmetrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether instrumentation is active and where it is served.
type Config struct {
	Enabled bool
	// MetricsAddr, when non-empty, starts a dedicated HTTP server serving
	// /metrics. Leave empty to register promhttp against an existing mux.
	MetricsAddr string
}

var modEnabled atomic.Bool

var (
	packetsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqsim_packets_enqueued_total",
		Help: "Total packets accepted into a qdisc, by discipline",
	}, []string{"discipline"})
	packetsDequeuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqsim_packets_dequeued_total",
		Help: "Total packets successfully dequeued, by discipline",
	}, []string{"discipline"})
	packetsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fqsim_packets_dropped_total",
		Help: "Total packets dropped, by discipline and reason (tail, aqm)",
	}, []string{"discipline", "reason"})
	backlogBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqsim_backlog_bytes",
		Help: "Current queued bytes across all flows, by discipline",
	}, []string{"discipline"})
	activeFlows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fqsim_active_flows",
		Help: "Current number of active (non-empty) flow buckets, by discipline",
	}, []string{"discipline"})
	dequeueLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fqsim_dequeue_seconds",
		Help:    "Wall-clock time spent inside a single Dequeue call",
		Buckets: prometheus.DefBuckets,
	}, []string{"discipline"})
)

func init() {
	prometheus.MustRegister(packetsEnqueuedTotal, packetsDequeuedTotal, packetsDroppedTotal, backlogBytes, activeFlows, dequeueLatency)
}

// Enable turns instrumentation on and, if MetricsAddr is set, starts a
// dedicated /metrics server. Safe to call multiple times.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether instrumentation is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveEnqueue records one packet accepted (or rejected) into a discipline.
func ObserveEnqueue(discipline string, accepted bool) {
	if !modEnabled.Load() {
		return
	}
	if accepted {
		packetsEnqueuedTotal.WithLabelValues(discipline).Inc()
	} else {
		packetsDroppedTotal.WithLabelValues(discipline, "tail").Inc()
	}
}

// ObserveDequeue records one successful dequeue and the time it took.
func ObserveDequeue(discipline string, took time.Duration) {
	if !modEnabled.Load() {
		return
	}
	packetsDequeuedTotal.WithLabelValues(discipline).Inc()
	dequeueLatency.WithLabelValues(discipline).Observe(took.Seconds())
}

// ObserveAQMDrop records a packet dropped by an inner AQM (e.g. CoDel),
// as opposed to a tail drop on a full queue.
func ObserveAQMDrop(discipline string, count uint64) {
	if !modEnabled.Load() || count == 0 {
		return
	}
	packetsDroppedTotal.WithLabelValues(discipline, "aqm").Add(float64(count))
}

// SetGauges refreshes the point-in-time backlog and active-flow gauges for a
// discipline. Intended to be called periodically by internal/maintenance,
// not on every packet.
func SetGauges(discipline string, backlogTotal uint64, activeCount int) {
	if !modEnabled.Load() {
		return
	}
	backlogBytes.WithLabelValues(discipline).Set(float64(backlogTotal))
	activeFlows.WithLabelValues(discipline).Set(float64(activeCount))
}

// startMetricsEndpoint exposes /metrics on addr in a background goroutine.
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// Shutdown is a placeholder hook for callers that want to tie instrumentation
// lifetime to a context; qmetrics itself holds no per-call state needing
// cleanup beyond the metrics server, which is best-effort.
func Shutdown(_ context.Context) {}
