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

// Package sfq implements Stochastic Fair Queueing: packets are hashed to one
// of 768 buckets, each bucket gets its own inner FIFO and a deficit-round-
// robin allotment, and a single active-flow list is served head to tail.
// Grounded on original_source/src/internet/model/sfq-queue.{h,cc}, adapted
// from an intrusive map+list to a handle-list (container/list of *Slot), per
// spec.md §9's implementer guidance.
package sfq

import (
	"container/list"
	"sync"

	"fqsim/pkg/qdisc/flowkey"
	"fqsim/pkg/qdisc/hash"
	"fqsim/pkg/qdisc/innerqueue"
	"fqsim/pkg/qdisc/packet"
	"fqsim/pkg/qdisc/rng"
)

// Slot is the per-bucket state: an inner FIFO, a deficit ("allot") counter,
// a backlog byte count, and this slot's position in the active list (nil
// when unlinked).
type Slot struct {
	Bucket  uint32
	inner   innerqueue.Queue
	allot   int64
	backlog uint64
	active  bool
	elem    *list.Element
}

// BucketStat is a point-in-time snapshot of one slot, for introspection.
type BucketStat struct {
	Bucket  uint32
	Backlog uint64
	Active  bool
}

// Config configures a Scheduler. All fields are immutable after
// construction, per spec.md §6.
type Config struct {
	// Quantum is the per-round deficit increment, in bytes. Defaults to
	// 4500 (spec.md §6's SFQ default) if zero.
	Quantum uint32
	// PeturbInterval is the number of dequeued packets between
	// perturbation refreshes. Defaults to 500 if zero.
	PeturbInterval uint32
	// HeadMode places newly active flows at the head of the active list
	// rather than the tail.
	HeadMode bool
	// HashVariant selects the flow-hash input arity; defaults to
	// hash.ThreeTuple (the canonical choice, see spec.md §9).
	HashVariant hash.Variant
	// InnerCapacity bounds each slot's FIFO in packets; defaults to 128.
	InnerCapacity int
	// RNG supplies perturbation samples. A fresh clock-seeded source is
	// used if nil; tests should pass rng.NewSeeded for reproducibility.
	RNG *rng.Source
}

func (c *Config) setDefaults() {
	if c.Quantum == 0 {
		c.Quantum = 4500
	}
	if c.PeturbInterval == 0 {
		c.PeturbInterval = 500
	}
	if c.InnerCapacity == 0 {
		c.InnerCapacity = 128
	}
	if c.RNG == nil {
		c.RNG = rng.New()
	}
}

// Scheduler is an SFQ queueing discipline. The scheduling algorithm itself
// is single-threaded and cooperative (spec.md §5); mu only guards against a
// caller wiring Enqueue/Dequeue/Stats/PruneEmpty to more than one goroutine,
// which spec.md explicitly does not require the caller to avoid.
type Scheduler struct {
	mu      sync.Mutex
	cfg     Config
	hasher  *hash.Hasher
	buckets map[uint32]*Slot
	active  *list.List

	backlog       uint64
	peturb        uint32
	peturbCounter uint32
}

// New constructs a Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		cfg:     cfg,
		hasher:  hash.New(cfg.HashVariant),
		buckets: make(map[uint32]*Slot),
		active:  list.New(),
		peturb:  cfg.RNG.Uint32(),
	}
}

// currentPeturb returns the active perturbation word, resampling it if the
// dequeue-side counter has exceeded PeturbInterval since the last refresh.
// Resampling never re-hashes packets already enqueued (spec.md §4.6).
func (s *Scheduler) currentPeturb() uint32 {
	if s.peturbCounter > s.cfg.PeturbInterval {
		s.peturb = s.cfg.RNG.Uint32()
		s.peturbCounter = 0
	}
	return s.peturb
}

func (s *Scheduler) slotFor(h uint32) *Slot {
	slot, ok := s.buckets[h]
	if !ok {
		slot = &Slot{Bucket: h, inner: innerqueue.NewFIFO(s.cfg.InnerCapacity)}
		s.buckets[h] = slot
	}
	return slot
}

// Enqueue hashes p to a bucket, activates that bucket's slot if needed, and
// appends p to its inner FIFO. Returns false iff the inner queue dropped it.
func (s *Scheduler) Enqueue(p packet.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := flowkey.Extract(p)
	if !ok {
		key = flowkey.Sentinel
	}
	h := s.hasher.Hash(key, s.currentPeturb())
	slot := s.slotFor(h)

	if !slot.active {
		slot.allot = int64(s.cfg.Quantum)
		if s.cfg.HeadMode {
			slot.elem = s.active.PushFront(slot)
		} else {
			slot.elem = s.active.PushBack(slot)
		}
		slot.active = true
	}

	accepted := slot.inner.Enqueue(p)
	if accepted {
		slot.backlog += uint64(p.Size())
		s.backlog += uint64(p.Size())
	}
	return accepted
}

// Dequeue scans the active list head-first: a slot with an exhausted
// allotment is refilled and rotated to the back; the first slot with a
// positive allotment yields at most one packet. If that slot's inner queue
// is empty, Dequeue returns nothing immediately rather than trying the next
// slot (spec.md §4.4 step 4 — both behaviors are conformant; this is the
// simpler one).
func (s *Scheduler) Dequeue() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		elem := s.active.Front()
		if elem == nil {
			return nil, false
		}
		slot := elem.Value.(*Slot)
		s.active.Remove(elem)

		if slot.allot <= 0 {
			slot.allot += int64(s.cfg.Quantum)
			slot.elem = s.active.PushBack(slot)
			continue
		}

		p, ok := slot.inner.Peek()
		if !ok {
			slot.active = false
			slot.elem = nil
			return nil, false
		}

		p, _ = slot.inner.Dequeue()
		sz := uint64(p.Size())
		slot.backlog -= sz
		s.backlog -= sz
		slot.allot -= int64(p.Size())

		if slot.inner.Size() > 0 {
			slot.elem = s.active.PushBack(slot)
		} else {
			slot.active = false
			slot.elem = nil
		}

		s.peturbCounter++
		return p.(packet.Packet), true
	}
}

// Peek returns the head packet of the slot at the front of the active list,
// without side effects. When that slot's allotment is exhausted, the next
// Dequeue rotates it to the back and serves another slot instead.
func (s *Scheduler) Peek() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem := s.active.Front()
	if elem == nil {
		return nil, false
	}
	slot := elem.Value.(*Slot)
	p, ok := slot.inner.Peek()
	if !ok {
		return nil, false
	}
	return p.(packet.Packet), true
}

// Backlog returns the total bytes currently queued across all slots.
func (s *Scheduler) Backlog() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog
}

// Stats returns a snapshot of every slot currently tracked, in unspecified
// order.
func (s *Scheduler) Stats() []BucketStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BucketStat, 0, len(s.buckets))
	for _, slot := range s.buckets {
		out = append(out, BucketStat{Bucket: slot.Bucket, Backlog: slot.backlog, Active: slot.active})
	}
	return out
}

// PruneEmpty removes slots that are both empty and unlinked from the active
// list, reclaiming their map entry. Retention across empty transitions is
// also permitted (spec.md §3 Lifecycle); this is the opt-in reclaim path,
// meant to be called periodically by a maintenance worker rather than
// inline on every Dequeue.
func (s *Scheduler) PruneEmpty() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for h, slot := range s.buckets {
		if !slot.active && slot.inner.Size() == 0 {
			delete(s.buckets, h)
			pruned++
		}
	}
	return pruned
}
