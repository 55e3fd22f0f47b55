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

// Package hash maps a flow key and a perturbation word to a scheduler bucket
// index, the way the reference sfq-queue.cc and fq_codel-queue.cc mask a
// string-hash digest of (dest, source, perturbation) to a fixed bucket count.
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"fqsim/pkg/qdisc/flowkey"
)

// Buckets is the fixed bucket count, matching the legacy mask 0x2ff: all
// bucket indices satisfy 0 <= h <= 0x2ff, i.e. 768 buckets.
const Buckets = 0x300

// bucketMask selects the low bits of the digest; preserved verbatim from the
// reference rather than "corrected" to a power of two (see DESIGN.md).
const bucketMask = 0x2ff

// Variant selects which fields feed the digest. The canonical choice for
// both SFQ and FQ-CoDel omits the protocol byte; FourTuple restores the
// historical 4-input variant seen in one of the two retrieved source trees.
// Fixed at Hasher construction time — immutable afterwards, like every other
// scheduler configuration knob.
type Variant int

const (
	// ThreeTuple hashes (dst, src, peturb). Canonical for both schedulers.
	ThreeTuple Variant = iota
	// FourTuple additionally mixes in the flow's protocol byte.
	FourTuple
)

// Hasher computes perturbed bucket indices for a fixed Variant.
type Hasher struct {
	variant Variant
}

// New returns a Hasher using the given variant.
func New(variant Variant) *Hasher {
	return &Hasher{variant: variant}
}

// Hash returns a bucket index in [0, Buckets) for key under the given
// perturbation word. The sentinel key always maps to bucket 0, independent
// of peturb, matching spec.md §3's requirement for unparseable traffic.
func (h *Hasher) Hash(key flowkey.Key, peturb uint32) uint32 {
	if key == flowkey.Sentinel {
		return 0
	}
	var buf [9]byte
	binary.BigEndian.PutUint32(buf[0:4], key.Dst)
	binary.BigEndian.PutUint32(buf[4:8], key.Src)
	n := 8
	if h.variant == FourTuple {
		buf[8] = key.Proto
		n = 9
	}
	var mixed [13]byte
	copy(mixed[:n], buf[:n])
	binary.BigEndian.PutUint32(mixed[n:n+4], peturb)
	sum := xxhash.Sum64(mixed[:n+4])
	return uint32(sum) & bucketMask
}
