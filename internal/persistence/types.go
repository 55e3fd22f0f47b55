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

// Package persistence provides idempotent persistence adapters for Postgres,
// Redis, and Kafka, used to durably snapshot per-bucket qdisc statistics on a
// periodic cadence (see internal/maintenance). A snapshot is a point-in-time
// absolute reading, not a delta, so a retried write is naturally idempotent
// at the value layer; the snapshot-id marker additionally turns a repeated
// write of the same SnapshotID into a no-op. The marker does not stop an
// older snapshot carrying a different SnapshotID from overwriting a newer one.
package persistence

import "context"

// SnapshotEntry is the adapter-facing shape for one bucket's periodic
// statistics snapshot.
//
// Fields:
//   - Discipline: "sfq" or "fqcodel", distinguishing which scheduler the
//     bucket belongs to (a demo may run both side by side).
//   - Bucket: the scheduler's internal bucket index (0..hash.Buckets).
//   - BacklogBytes: bytes currently queued in this bucket at snapshot time.
//   - DroppedPackets: cumulative packets CoDel has dropped from this
//     bucket's inner queue as of snapshot time. Packets rejected at enqueue
//     are not counted, and SFQ buckets report 0.
//   - SnapshotID: globally unique idempotency key for this snapshot.
//     Re-using the same id for a retried write makes the write a no-op.
//   - FencingToken: optional monotonic generation counter. Semantics are
//     adapter-specific and disabled if nil: PostgresPersister keeps the
//     highest token seen in last_token, RedisPersister ignores it, and
//     KafkaPersister forwards it to consumers. No adapter uses it to reject
//     an out-of-order snapshot's backlog and drop values.
type SnapshotEntry struct {
	Discipline     string
	Bucket         uint32
	BacklogBytes   uint64
	DroppedPackets uint64
	SnapshotID     string
	FencingToken   *int64
}

// IdempotentPersister defines the minimal API supported by all adapters.
// Implementations must apply each entry atomically with respect to its
// idempotency key, and the operation must be safe to retry.
//
// The method accepts a context to allow timeouts and cancellation.
// Implementations should strive to batch operations efficiently where
// backends support it. They must ensure that a duplicate SnapshotID for the
// same (Discipline, Bucket) becomes a no-op.
//
// FencingToken handling is adapter-specific (see SnapshotEntry); the
// adapters in this package do not order writes per (Discipline, Bucket) by
// token.
type IdempotentPersister interface {
	CommitBatch(ctx context.Context, entries []SnapshotEntry) error
}
