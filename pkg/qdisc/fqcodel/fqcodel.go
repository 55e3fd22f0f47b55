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

// Package fqcodel implements FQ-CoDel: packets are hashed to one of 768
// buckets exactly as in SFQ, but each bucket runs a CoDel AQM rather than a
// plain FIFO, and scheduling is two-list (new_flows / old_flows) deficit
// round robin rather than SFQ's single active list. A newly active flow
// gets one pass through new_flows before settling into old_flows, which is
// what gives short flows priority over long-running ones (spec.md §4.5).
//
// Grounded on original_source/src/internet/model/fq_codel-queue.{h,cc} for
// the field layout (deficit, backlog, two flow lists) and on spec.md §4.5's
// pseudocode for the canonical dequeue semantics — the retrieved .cc uses a
// simplified single-splice model that spec.md §9 flags as non-canonical, so
// it is not what is implemented here (see DESIGN.md).
package fqcodel

import (
	"container/list"
	"sync"
	"time"

	"fqsim/pkg/qdisc/flowkey"
	"fqsim/pkg/qdisc/hash"
	"fqsim/pkg/qdisc/innerqueue"
	"fqsim/pkg/qdisc/packet"
	"fqsim/pkg/qdisc/rng"
)

type listKind int

const (
	notLinked listKind = iota
	inNewFlows
	inOldFlows
)

// Slot is the per-bucket state: a CoDel sub-queue, a deficit counter, a
// backlog byte count, and which of the two lists (if any) this slot
// currently belongs to.
type Slot struct {
	Bucket  uint32
	inner   *innerqueue.CoDel
	deficit int64
	backlog uint64
	kind    listKind
	elem    *list.Element
}

// BucketStat is a point-in-time snapshot of one slot, for introspection.
type BucketStat struct {
	Bucket        uint32
	Backlog       uint64
	InNewFlows    bool
	InOldFlows    bool
	DroppedPacket uint64
	DroppedBytes  uint64
}

// Config configures a Scheduler. All fields are immutable after
// construction, per spec.md §6.
type Config struct {
	// Quantum is the per-round deficit increment, in bytes. Defaults to
	// 1514 (roughly one Ethernet MTU, spec.md §6's FQ-CoDel default).
	Quantum uint32
	// PeturbInterval is the number of enqueued packets between
	// perturbation refreshes (enqueue-side for FQ-CoDel, per spec.md §9).
	PeturbInterval uint32
	// HeadMode places a newly activated flow at the head of new_flows
	// rather than the tail.
	HeadMode bool
	// HashVariant selects the flow-hash input arity; defaults to
	// hash.ThreeTuple.
	HashVariant hash.Variant
	// InnerCapacity bounds each slot's CoDel queue in packets; defaults
	// to 128.
	InnerCapacity int
	// Target and Interval configure every slot's CoDel AQM; zero values
	// fall back to innerqueue.DefaultTarget / DefaultInterval.
	Target   time.Duration
	Interval time.Duration
	// Clock overrides time.Now for every slot's CoDel AQM; used for
	// deterministic tests.
	Clock func() time.Time
	// RNG supplies perturbation samples.
	RNG *rng.Source
}

func (c *Config) setDefaults() {
	if c.Quantum == 0 {
		c.Quantum = 1514
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

// Scheduler is an FQ-CoDel queueing discipline. The scheduling algorithm
// itself is single-threaded and cooperative (spec.md §5); mu only guards
// against a caller wiring Enqueue/Dequeue/Stats/PruneEmpty to more than one
// goroutine, which spec.md explicitly does not require the caller to avoid.
type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	hasher *hash.Hasher

	buckets  map[uint32]*Slot
	newFlows *list.List
	oldFlows *list.List

	backlog       uint64
	peturb        uint32
	peturbCounter uint32
}

// New constructs a Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		cfg:      cfg,
		hasher:   hash.New(cfg.HashVariant),
		buckets:  make(map[uint32]*Slot),
		newFlows: list.New(),
		oldFlows: list.New(),
		peturb:   cfg.RNG.Uint32(),
	}
}

// currentPeturb resamples the perturbation word on the enqueue side, per
// spec.md §9 (FQ-CoDel's reference implementation increments its counter on
// enqueue, unlike SFQ's dequeue-side counter).
func (s *Scheduler) currentPeturb() uint32 {
	if s.peturbCounter > s.cfg.PeturbInterval {
		s.peturb = s.cfg.RNG.Uint32()
		s.peturbCounter = 0
	}
	return s.peturb
}

func (s *Scheduler) newInner() *innerqueue.CoDel {
	return innerqueue.NewCoDel(innerqueue.CoDelConfig{
		MaxPackets: s.cfg.InnerCapacity,
		Target:     s.cfg.Target,
		Interval:   s.cfg.Interval,
		Clock:      s.cfg.Clock,
	})
}

func (s *Scheduler) slotFor(h uint32) *Slot {
	slot, ok := s.buckets[h]
	if !ok {
		slot = &Slot{Bucket: h, inner: s.newInner()}
		s.buckets[h] = slot
	}
	return slot
}

// Enqueue hashes p to a bucket and appends it to that bucket's CoDel queue.
// A slot not currently on either list joins new_flows with its deficit
// reset to Quantum, per spec.md §4.5's newly-active-flow rule.
func (s *Scheduler) Enqueue(p packet.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := flowkey.Extract(p)
	if !ok {
		key = flowkey.Sentinel
	}
	h := s.hasher.Hash(key, s.currentPeturb())
	slot := s.slotFor(h)

	if slot.kind == notLinked {
		slot.deficit = int64(s.cfg.Quantum)
		if s.cfg.HeadMode {
			slot.elem = s.newFlows.PushFront(slot)
		} else {
			slot.elem = s.newFlows.PushBack(slot)
		}
		slot.kind = inNewFlows
	}

	accepted := slot.inner.Enqueue(p)
	if accepted {
		sz := uint64(p.Size())
		slot.backlog += sz
		s.backlog += sz
	}
	s.peturbCounter++
	return accepted
}

// Dequeue implements the canonical two-list FQ-CoDel scheduling loop
// (spec.md §4.5): serve new_flows first; a slot there that runs out of
// deficit is demoted to the back of old_flows rather than simply
// refilled-and-requeued, giving every other new flow a chance to drain
// before this one is revisited. old_flows is served only once new_flows is
// empty, and a slot there that exhausts its deficit is refilled and rotated
// to the back of old_flows.
func (s *Scheduler) Dequeue() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		l, fromNew := s.nextList()
		if l == nil {
			return nil, false
		}

		elem := l.Front()
		slot := elem.Value.(*Slot)
		l.Remove(elem)

		if slot.inner.Size() == 0 {
			if fromNew && s.oldFlows.Len() > 0 {
				slot.elem = s.oldFlows.PushBack(slot)
				slot.kind = inOldFlows
			} else {
				slot.kind = notLinked
				slot.elem = nil
			}
			continue
		}

		if slot.deficit <= 0 {
			// Out of deficit on either list: refill and drop to the
			// back of old_flows. A new_flows slot loses its one free
			// pass; an old_flows slot simply rotates.
			slot.deficit += int64(s.cfg.Quantum)
			slot.elem = s.oldFlows.PushBack(slot)
			slot.kind = inOldFlows
			continue
		}

		p, ok := slot.inner.Dequeue()
		if !ok {
			// CoDel dropped every packet it held; the slot is now
			// empty even though Size() was briefly nonzero.
			if fromNew && s.oldFlows.Len() > 0 {
				slot.elem = s.oldFlows.PushBack(slot)
				slot.kind = inOldFlows
			} else {
				slot.kind = notLinked
				slot.elem = nil
			}
			continue
		}

		sz := uint64(p.Size())
		slot.backlog -= sz
		s.backlog -= sz
		slot.deficit -= int64(sz)

		if fromNew {
			slot.elem = s.newFlows.PushFront(slot)
		} else {
			slot.elem = s.oldFlows.PushFront(slot)
		}
		return p.(packet.Packet), true
	}
}

// nextList returns new_flows if it has entries, otherwise old_flows if it
// has entries, otherwise (nil, false).
func (s *Scheduler) nextList() (*list.List, bool) {
	if s.newFlows.Len() > 0 {
		return s.newFlows, true
	}
	if s.oldFlows.Len() > 0 {
		return s.oldFlows, false
	}
	return nil, false
}

// Peek returns the head packet of the first slot on new_flows (or old_flows
// when new_flows is empty), without side effects. This is not always the
// packet the next Dequeue returns: Dequeue may first rotate that slot for an
// exhausted deficit, or CoDel may drop its head packet.
func (s *Scheduler) Peek() (packet.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, _ := s.nextList()
	if l == nil {
		return nil, false
	}
	elem := l.Front()
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
		dp, db := slot.inner.Dropped()
		out = append(out, BucketStat{
			Bucket:        slot.Bucket,
			Backlog:       slot.backlog,
			InNewFlows:    slot.kind == inNewFlows,
			InOldFlows:    slot.kind == inOldFlows,
			DroppedPacket: dp,
			DroppedBytes:  db,
		})
	}
	return out
}

// PruneEmpty removes slots that are unlinked from both lists and carry no
// backlog, reclaiming their map entry.
func (s *Scheduler) PruneEmpty() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for h, slot := range s.buckets {
		if slot.kind == notLinked && slot.inner.Size() == 0 {
			delete(s.buckets, h)
			pruned++
		}
	}
	return pruned
}
