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

package innerqueue

import (
	"math"
	"time"
)

// CoDel implements the classic CoDel active queue management control law:
// track how long each packet has sojourned in the queue, and once the
// sojourn time has stayed above target for a full interval, start dropping
// packets at an accelerating rate until it falls back below target.
//
// This is the one piece of the qdisc core with no grounding in the
// retrieved corpus: original_source kept fq_codel-queue.h/.cc, which only
// reference ns3::CoDelQueue, never its implementation, and no other pack
// repo implements an AQM. It is built directly from the publicly documented
// CoDel algorithm against the contract spec.md §4.3/§6 describe (see
// DESIGN.md).
type CoDel struct {
	entries    []codelEntry
	maxPackets int
	bytes      uint64

	target   time.Duration
	interval time.Duration
	clock    func() time.Time

	count     int
	lastCount int
	dropping  bool

	firstAboveTime time.Time
	dropNext       time.Time

	droppedPackets uint64
	droppedBytes   uint64
}

type codelEntry struct {
	pkt Packet
	enq time.Time
}

// DefaultTarget and DefaultInterval are the canonical CoDel parameters
// (5ms / 100ms) used when a CoDelConfig leaves them zero.
const (
	DefaultTarget   = 5 * time.Millisecond
	DefaultInterval = 100 * time.Millisecond
)

// CoDelConfig configures a CoDel instance. Zero values fall back to the
// canonical defaults.
type CoDelConfig struct {
	MaxPackets int
	Target     time.Duration
	Interval   time.Duration
	// Clock is overridable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

// NewCoDel returns a CoDel AQM with the given configuration.
func NewCoDel(cfg CoDelConfig) *CoDel {
	if cfg.Target <= 0 {
		cfg.Target = DefaultTarget
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxPackets <= 0 {
		cfg.MaxPackets = 1024
	}
	return &CoDel{
		maxPackets: cfg.MaxPackets,
		target:     cfg.Target,
		interval:   cfg.Interval,
		clock:      cfg.Clock,
	}
}

// Enqueue always accepts unless the hard packet cap is reached, matching the
// InnerQueue contract sketched in spec.md §4.3: CoDel itself never drops on
// enqueue, only on dequeue.
func (c *CoDel) Enqueue(p Packet) bool {
	if len(c.entries) >= c.maxPackets {
		return false
	}
	c.entries = append(c.entries, codelEntry{pkt: p, enq: c.clock()})
	c.bytes += uint64(p.Size())
	return true
}

func (c *CoDel) Peek() (Packet, bool) {
	if len(c.entries) == 0 {
		return nil, false
	}
	return c.entries[0].pkt, true
}

func (c *CoDel) Size() int { return len(c.entries) }

// Bytes returns the total size, in bytes, of currently queued packets.
func (c *CoDel) Bytes() uint64 { return c.bytes }

// Dropped returns the cumulative count and byte total of packets CoDel has
// dropped to control sojourn time.
func (c *CoDel) Dropped() (packets uint64, bytes uint64) {
	return c.droppedPackets, c.droppedBytes
}

func (c *CoDel) pop() (codelEntry, bool) {
	if len(c.entries) == 0 {
		return codelEntry{}, false
	}
	e := c.entries[0]
	c.entries = c.entries[1:]
	c.bytes -= uint64(e.pkt.Size())
	return e, true
}

// Dequeue runs the CoDel control law, dropping packets as needed, until it
// finds one to deliver or the queue drains.
func (c *CoDel) Dequeue() (Packet, bool) {
	for {
		now := c.clock()
		e, ok := c.pop()
		if !ok {
			c.dropping = false
			return nil, false
		}

		sojourn := now.Sub(e.enq)
		okToDrop := sojourn < c.target
		if okToDrop {
			c.firstAboveTime = time.Time{}
		} else if c.firstAboveTime.IsZero() {
			c.firstAboveTime = now.Add(c.interval)
		}

		drop := false
		switch {
		case c.dropping:
			if okToDrop {
				c.dropping = false
			} else if !now.Before(c.dropNext) {
				c.count++
				c.dropNext = c.dropNext.Add(c.interval / time.Duration(isqrt(c.count)))
				drop = true
			}
		case !okToDrop && !c.firstAboveTime.IsZero() && !now.Before(c.firstAboveTime):
			c.dropping = true
			if delta := c.count - c.lastCount; delta > 1 && now.Sub(c.dropNext) < 16*c.interval {
				c.count = delta
			} else {
				c.count = 1
			}
			c.dropNext = now.Add(c.interval / time.Duration(isqrt(c.count)))
			c.lastCount = c.count
			drop = true
		}

		if drop {
			c.droppedPackets++
			c.droppedBytes += uint64(e.pkt.Size())
			continue
		}
		return e.pkt, true
	}
}

func isqrt(n int) int {
	if n < 1 {
		n = 1
	}
	r := int(math.Sqrt(float64(n)))
	if r < 1 {
		r = 1
	}
	return r
}
