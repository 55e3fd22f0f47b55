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

package hash

import (
	"testing"

	"fqsim/pkg/qdisc/flowkey"
)

func TestHashIsWithinBucketRange(t *testing.T) {
	h := New(ThreeTuple)
	key := flowkey.Key{Src: 10, Dst: 20, Proto: 6}
	for peturb := uint32(0); peturb < 1000; peturb++ {
		b := h.Hash(key, peturb)
		if b > bucketMask {
			t.Fatalf("bucket %d exceeds mask %d", b, bucketMask)
		}
	}
}

func TestHashIsDeterministic(t *testing.T) {
	h := New(ThreeTuple)
	key := flowkey.Key{Src: 1, Dst: 2, Proto: 6}
	a := h.Hash(key, 42)
	b := h.Hash(key, 42)
	if a != b {
		t.Fatalf("Hash() not deterministic: %d != %d", a, b)
	}
}

func TestHashChangesWithPeturb(t *testing.T) {
	h := New(ThreeTuple)
	key := flowkey.Key{Src: 1, Dst: 2, Proto: 6}
	seen := map[uint32]bool{}
	for p := uint32(0); p < 20; p++ {
		seen[h.Hash(key, p)] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected varying peturb to produce more than one bucket")
	}
}

func TestSentinelAlwaysHashesToZero(t *testing.T) {
	h := New(ThreeTuple)
	for p := uint32(0); p < 5; p++ {
		if b := h.Hash(flowkey.Sentinel, p); b != 0 {
			t.Fatalf("sentinel hashed to %d, want 0", b)
		}
	}
}

func TestVariantsCanDiffer(t *testing.T) {
	three := New(ThreeTuple)
	four := New(FourTuple)
	key := flowkey.Key{Src: 1, Dst: 2, Proto: 17}
	// Not guaranteed to differ for every key/peturb pair, but across many
	// peturb values the two variants should diverge at least once.
	diverged := false
	for p := uint32(0); p < 50; p++ {
		if three.Hash(key, p) != four.Hash(key, p) {
			diverged = true
			break
		}
	}
	if !diverged {
		t.Fatal("expected ThreeTuple and FourTuple to diverge for some peturb value")
	}
}
