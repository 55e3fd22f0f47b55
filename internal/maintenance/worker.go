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

// Package maintenance runs the background tasks a live qdisc needs but that
// have no place on the hot Enqueue/Dequeue path: periodically snapshotting
// every bucket's statistics out to a persistence adapter, and periodically
// reclaiming buckets that have gone idle. This mirrors the rate limiter's
// commit/eviction worker, retargeted at scheduler bucket lifecycle instead
// of per-key VSA lifecycle.
package maintenance

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fqsim/internal/persistence"
)

// BucketSource is what a scheduler (pkg/qdisc/sfq.Scheduler or
// pkg/qdisc/fqcodel.Scheduler) exposes for the worker to snapshot and
// reclaim. Both schedulers' Stats()/PruneEmpty() shapes are adapted to this
// interface by a small collector closure at wiring time (see
// cmd/fqsim-demo), since their BucketStat types carry discipline-specific
// fields neither worker nor persister need to know about.
type BucketSource struct {
	Discipline string
	Collect    func() []persistence.BucketSnapshot
	Prune      func() int
}

// Worker periodically snapshots one or more bucket sources to a persister
// and prunes idle buckets.
type Worker struct {
	sources          []BucketSource
	persister        persistence.Persister
	snapshotInterval time.Duration
	pruneInterval    time.Duration
	stopChan         chan struct{}
	wg               sync.WaitGroup
	stopped          uint32
}

// NewWorker creates and configures a new background worker.
//
// snapshotInterval: how often every source is collected and committed.
// pruneInterval: how often idle buckets are reclaimed from each source.
func NewWorker(sources []BucketSource, persister persistence.Persister, snapshotInterval, pruneInterval time.Duration) *Worker {
	return &Worker{
		sources:          sources,
		persister:        persister,
		snapshotInterval: snapshotInterval,
		pruneInterval:    pruneInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start launches the background goroutines for the worker.
func (w *Worker) Start() {
	fmt.Println("Starting qdisc maintenance worker...")
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.snapshotLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.pruneLoop()
	}()
}

// Stop gracefully stops the background worker.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	fmt.Println("Stopping qdisc maintenance worker...")
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) snapshotLoop() {
	ticker := time.NewTicker(w.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.runSnapshotCycle()
		case <-w.stopChan:
			w.runSnapshotCycle()
			return
		}
	}
}

func (w *Worker) runSnapshotCycle() {
	var batch []persistence.BucketSnapshot
	for _, src := range w.sources {
		batch = append(batch, src.Collect()...)
	}
	if len(batch) == 0 {
		return
	}
	if err := w.persister.CommitBatch(batch); err != nil {
		fmt.Printf("ERROR: failed to commit bucket snapshot batch: %v\n", err)
	}
}

func (w *Worker) pruneLoop() {
	ticker := time.NewTicker(w.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.runPruneCycle()
		case <-w.stopChan:
			return
		}
	}
}

func (w *Worker) runPruneCycle() {
	for _, src := range w.sources {
		if n := src.Prune(); n > 0 {
			fmt.Printf("pruned %d idle %s buckets\n", n, src.Discipline)
		}
	}
}
