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

package persistence

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// BucketSnapshot is the maintenance-worker-facing shape for one bucket's
// reading, ahead of idempotency-key assignment. internal/maintenance
// collects these from a running scheduler; IdemShim stamps each with a
// fresh SnapshotID before handing it to an IdempotentPersister.
type BucketSnapshot struct {
	Discipline     string
	Bucket         uint32
	BacklogBytes   uint64
	DroppedPackets uint64
}

// Persister is the narrow interface internal/maintenance depends on, kept
// separate from IdempotentPersister so the worker never has to construct
// idempotency keys itself.
type Persister interface {
	CommitBatch(snapshots []BucketSnapshot) error
}

// IdemShim adapts an IdempotentPersister to the maintenance Persister
// interface. It generates a fresh idempotency SnapshotID for each entry.
//
// Note: production callers that need exactly-once semantics across process
// restarts should derive stable ids (e.g. a counter persisted alongside the
// snapshot cadence) rather than random ones; random ids are sufficient here
// because a duplicate commit of a later-superseded snapshot is harmless —
// it is a repeated idempotent write to the same absolute value.
type IdemShim struct {
	impl IdempotentPersister
}

func NewIdemShim(impl IdempotentPersister) *IdemShim { return &IdemShim{impl: impl} }

// CommitBatch maps BucketSnapshot -> SnapshotEntry and forwards to the
// idempotent persister.
func (s *IdemShim) CommitBatch(snapshots []BucketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	entries := make([]SnapshotEntry, len(snapshots))
	for i, snap := range snapshots {
		entries[i] = SnapshotEntry{
			Discipline:     snap.Discipline,
			Bucket:         snap.Bucket,
			BacklogBytes:   snap.BacklogBytes,
			DroppedPackets: snap.DroppedPackets,
			SnapshotID:     randomID(),
		}
	}
	return s.impl.CommitBatch(context.Background(), entries)
}

func randomID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	dst := make([]byte, 32)
	hex.Encode(dst, b[:])
	return string(dst)
}
