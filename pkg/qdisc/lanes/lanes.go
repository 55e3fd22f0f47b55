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

// Package lanes fans flows out across a set of parallel scheduler instances
// ("lanes") using rendezvous hashing, so that a flow's lane assignment stays
// stable across lane-count changes (a multi-queue NIC's RSS behavior, or a
// simulator wanting to model parallel qdisc instances feeding a shared
// link). This is not part of the original SFQ/FQ-CoDel model; it supplements
// it the way the teacher's own module uses go-rendezvous for stable node
// assignment, now applied to flow keys instead of rate-limiter keys.
package lanes

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"fqsim/pkg/qdisc/flowkey"
	"fqsim/pkg/qdisc/packet"
)

// Scheduler is the subset of pkg/qdisc/sfq.Scheduler and
// pkg/qdisc/fqcodel.Scheduler that a lane needs to expose.
type Scheduler interface {
	Enqueue(p packet.Packet) bool
	Dequeue() (packet.Packet, bool)
	Peek() (packet.Packet, bool)
	Backlog() uint64
}

// nodeHash is the rendezvous.Hasher fqsim uses: xxhash over the raw string,
// the same digest pkg/qdisc/hash uses for flow buckets, kept consistent
// across the two hashing layers this package sits between.
func nodeHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Fanout routes packets to one of a fixed set of named lanes by rendezvous
// hashing the packet's flow key and enqueues them on that lane's own
// Scheduler. Fanout has no Dequeue or Peek of its own; each lane's Scheduler
// is dequeued and peeked directly. Adding or removing a lane only
// reshuffles the flows rendezvous-hashed to the changed lane, not every flow
// (the property that makes this useful for a live lane-count change).
type Fanout struct {
	rv    *rendezvous.Rendezvous
	lanes map[string]Scheduler
	names []string
}

// NewFanout builds a Fanout over the given named lanes. schedulers must
// have exactly one entry per name in names.
func NewFanout(names []string, schedulers map[string]Scheduler) *Fanout {
	cp := make([]string, len(names))
	copy(cp, names)
	return &Fanout{
		rv:    rendezvous.New(cp, nodeHash),
		lanes: schedulers,
		names: cp,
	}
}

// laneKeyString renders a flow key as the string rendezvous hashing keys on.
// strconv avoids pulling in fmt for a hot path.
func laneKeyString(k flowkey.Key) string {
	var b []byte
	b = strconv.AppendUint(b, uint64(k.Src), 16)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(k.Dst), 16)
	b = append(b, ':')
	b = strconv.AppendUint(b, uint64(k.Proto), 16)
	return string(b)
}

// LaneFor returns which lane name a flow key is assigned to.
func (f *Fanout) LaneFor(k flowkey.Key) string {
	return f.rv.Lookup(laneKeyString(k))
}

// Enqueue extracts p's flow key, routes it to the lane that key hashes to,
// and enqueues it there.
func (f *Fanout) Enqueue(p packet.Packet) bool {
	k, ok := flowkey.Extract(p)
	if !ok {
		k = flowkey.Sentinel
	}
	lane := f.lanes[f.LaneFor(k)]
	return lane.Enqueue(p)
}

// AddLane introduces a new lane, reassigning only the flows rendezvous
// hashing now selects it.
func (f *Fanout) AddLane(name string, s Scheduler) {
	f.lanes[name] = s
	f.names = append(f.names, name)
	f.rv.Add(name)
}

// RemoveLane withdraws a lane. Callers are responsible for draining its
// scheduler's remaining backlog before calling this, since Fanout does not
// migrate in-flight packets.
func (f *Fanout) RemoveLane(name string) {
	delete(f.lanes, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i], f.names[i+1:]...)
			break
		}
	}
	f.rv.Remove(name)
}

// TotalBacklog sums backlog bytes across every lane.
func (f *Fanout) TotalBacklog() uint64 {
	var total uint64
	for _, s := range f.lanes {
		total += s.Backlog()
	}
	return total
}
