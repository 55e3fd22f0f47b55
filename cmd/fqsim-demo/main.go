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

// Package main provides the entry point for the fqsim demo application.
//
// This application is a concrete, runnable demonstration of the two
// fair-queueing packet schedulers in pkg/qdisc: SFQ (pkg/qdisc/sfq) and
// FQ-CoDel (pkg/qdisc/fqcodel). It feeds both a synthetic multi-flow packet
// stream, drains them on a fixed service rate, and exposes their live state
// over HTTP for inspection.
//
// This file orchestrates the whole demo:
//  1. Building both schedulers and a synthetic traffic generator.
//  2. Starting the background maintenance worker that periodically snapshots
//     bucket statistics to a persistence adapter.
//  3. Starting the read-only introspection HTTP server.
//  4. Managing graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fqsim/internal/api"
	"fqsim/internal/maintenance"
	"fqsim/internal/persistence"
	"fqsim/internal/telemetry/qmetrics"
	"fqsim/pkg/qdisc/fqcodel"
	"fqsim/pkg/qdisc/packet"
	"fqsim/pkg/qdisc/rng"
	"fqsim/pkg/qdisc/sfq"
)

func main() {
	// --- What this is ---
	// This demo runs two fair-queueing packet schedulers side by side against
	// the same synthetic multi-flow traffic: SFQ (stochastic fair queueing,
	// hashed buckets + deficit round robin over a single active-flow list) and
	// FQ-CoDel (the same hashed-bucket DRR scheme, but with a CoDel AQM behind
	// each bucket and a two-list new/old flow split that favors short flows).
	//
	// A synthetic generator produces packets across a configurable number of
	// flows at a configurable rate; a drainer dequeues at a configurable
	// service rate, simulating a shared downstream link. Bucket backlog and
	// drop counts are periodically snapshotted to a persistence adapter (see
	// internal/persistence), and /status and /buckets expose live state.
	//
	// Try it:
	//   curl "http://localhost:8080/status"
	//   curl "http://localhost:8080/buckets?discipline=sfq"

	numFlows := flag.Int("flows", 32, "Number of synthetic flows to generate traffic for")
	arrivalRate := flag.Duration("arrival_interval", 2*time.Millisecond, "Fixed interval between synthetic packet arrivals")
	serviceRate := flag.Duration("service_interval", 3*time.Millisecond, "Interval between dequeue attempts (models a shared downstream link)")
	sfqQuantum := flag.Int("sfq_quantum", 4500, "SFQ deficit round robin quantum, in bytes")
	fqcodelQuantum := flag.Int("fqcodel_quantum", 1514, "FQ-CoDel deficit round robin quantum, in bytes")
	peturbInterval := flag.Int("peturb_interval", 500, "Packets between perturbation word refreshes")
	snapshotInterval := flag.Duration("snapshot_interval", time.Second, "How often bucket statistics are snapshotted to the persistence adapter")
	pruneInterval := flag.Duration("prune_interval", 10*time.Second, "How often idle buckets are reclaimed")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the introspection server")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	metricsEnabled := flag.Bool("metrics", false, "Enable in-process Prometheus instrumentation (opt-in)")
	persistAdapter := flag.String("persist_adapter", "mock", "Bucket snapshot persistence adapter: mock, redis, kafka")
	redisAddr := flag.String("redis_addr", "", "Redis address for the redis persistence adapter (empty uses a logging stand-in)")
	kafkaTopic := flag.String("kafka_topic", "", "Kafka topic for the kafka persistence adapter")
	seed := flag.Int64("seed", 0, "Perturbation RNG seed; 0 seeds from the clock")
	flag.Parse()

	qmetrics.Enable(qmetrics.Config{Enabled: *metricsEnabled, MetricsAddr: *metricsAddr})

	var rngSource *rng.Source
	if *seed != 0 {
		rngSource = rng.NewSeeded(uint64(*seed))
	} else {
		rngSource = rng.New()
	}

	sfqSched := sfq.New(sfq.Config{
		Quantum:        uint32(*sfqQuantum),
		PeturbInterval: uint32(*peturbInterval),
		RNG:            rngSource,
	})
	fqcSched := fqcodel.New(fqcodel.Config{
		Quantum:        uint32(*fqcodelQuantum),
		PeturbInterval: uint32(*peturbInterval),
		RNG:            rngSource,
	})

	persister, err := persistence.BuildPersister(*persistAdapter, persistence.DemoOptions{
		RedisAddr:  *redisAddr,
		KafkaTopic: *kafkaTopic,
	})
	if err != nil {
		log.Fatalf("could not build persistence adapter: %v", err)
	}

	worker := maintenance.NewWorker(
		[]maintenance.BucketSource{
			sfqBucketSource(sfqSched),
			fqcodelBucketSource(fqcSched),
		},
		persister,
		*snapshotInterval,
		*pruneInterval,
	)
	worker.Start()

	apiServer := api.NewServer(sfqInspector{sfqSched}, fqcodelInspector{fqcSched})
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}

	go func() {
		fmt.Printf("fqsim introspection server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v", *httpAddr, err)
		}
	}()

	genDone := make(chan struct{})
	drainDone := make(chan struct{})
	go runGenerator(sfqSched, fqcSched, *numFlows, *arrivalRate, genDone)
	go runDrainer(sfqSched, fqcSched, *serviceRate, drainDone)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nShutting down...")
	close(genDone)
	close(drainDone)
	worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	fmt.Println("fqsim demo stopped.")
}

// runGenerator produces synthetic IPv4 packets across numFlows distinct
// 3-tuples, enqueueing an identical copy of each packet into both schedulers
// so both see the same flow mix.
func runGenerator(s *sfq.Scheduler, f *fqcodel.Scheduler, numFlows int, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r := rand.New(rand.NewSource(1))
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			flow := uint32(r.Intn(numFlows))
			src := 0x0a000000 + flow
			dst := 0x0a010000 + flow
			size := 64 + r.Intn(1400)
			p1 := packet.NewIPv4(src, dst, 6, size)
			p2 := packet.NewIPv4(src, dst, 6, size)
			accepted := s.Enqueue(p1)
			qmetrics.ObserveEnqueue("sfq", accepted)
			accepted = f.Enqueue(p2)
			qmetrics.ObserveEnqueue("fqcodel", accepted)
		}
	}
}

// runDrainer dequeues one packet from each scheduler per tick, modeling a
// downstream link served at a fixed rate.
func runDrainer(s *sfq.Scheduler, f *fqcodel.Scheduler, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			start := time.Now()
			if _, ok := s.Dequeue(); ok {
				qmetrics.ObserveDequeue("sfq", time.Since(start))
			}
			start = time.Now()
			if _, ok := f.Dequeue(); ok {
				qmetrics.ObserveDequeue("fqcodel", time.Since(start))
			}
		}
	}
}

type sfqInspector struct{ s *sfq.Scheduler }

func (i sfqInspector) Discipline() string { return "sfq" }
func (i sfqInspector) Backlog() uint64    { return i.s.Backlog() }
func (i sfqInspector) BucketStats() []api.BucketStat {
	stats := i.s.Stats()
	out := make([]api.BucketStat, len(stats))
	for n, st := range stats {
		out[n] = api.BucketStat{Bucket: st.Bucket, BacklogBytes: st.Backlog, Active: st.Active}
	}
	return out
}

type fqcodelInspector struct{ s *fqcodel.Scheduler }

func (i fqcodelInspector) Discipline() string { return "fqcodel" }
func (i fqcodelInspector) Backlog() uint64    { return i.s.Backlog() }
func (i fqcodelInspector) BucketStats() []api.BucketStat {
	stats := i.s.Stats()
	out := make([]api.BucketStat, len(stats))
	for n, st := range stats {
		out[n] = api.BucketStat{
			Bucket:         st.Bucket,
			BacklogBytes:   st.Backlog,
			DroppedPackets: st.DroppedPacket,
			Active:         st.InNewFlows || st.InOldFlows,
		}
	}
	return out
}

func sfqBucketSource(s *sfq.Scheduler) maintenance.BucketSource {
	return maintenance.BucketSource{
		Discipline: "sfq",
		Collect: func() []persistence.BucketSnapshot {
			stats := s.Stats()
			out := make([]persistence.BucketSnapshot, len(stats))
			for i, st := range stats {
				out[i] = persistence.BucketSnapshot{Discipline: "sfq", Bucket: st.Bucket, BacklogBytes: st.Backlog}
			}
			qmetrics.SetGauges("sfq", s.Backlog(), countActiveSFQ(stats))
			return out
		},
		Prune: s.PruneEmpty,
	}
}

func fqcodelBucketSource(f *fqcodel.Scheduler) maintenance.BucketSource {
	lastDropped := make(map[uint32]uint64)
	return maintenance.BucketSource{
		Discipline: "fqcodel",
		Collect: func() []persistence.BucketSnapshot {
			stats := f.Stats()
			out := make([]persistence.BucketSnapshot, len(stats))
			active := 0
			for i, st := range stats {
				out[i] = persistence.BucketSnapshot{
					Discipline:     "fqcodel",
					Bucket:         st.Bucket,
					BacklogBytes:   st.Backlog,
					DroppedPackets: st.DroppedPacket,
				}
				if st.InNewFlows || st.InOldFlows {
					active++
				}
				if delta := st.DroppedPacket - lastDropped[st.Bucket]; delta > 0 {
					qmetrics.ObserveAQMDrop("fqcodel", delta)
					lastDropped[st.Bucket] = st.DroppedPacket
				}
			}
			qmetrics.SetGauges("fqcodel", f.Backlog(), active)
			return out
		},
		Prune: f.PruneEmpty,
	}
}

func countActiveSFQ(stats []sfq.BucketStat) int {
	n := 0
	for _, st := range stats {
		if st.Active {
			n++
		}
	}
	return n
}
