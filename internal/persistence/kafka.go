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
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KafkaProducer is a minimal abstraction over a Kafka client.
// Implementations should enable idempotent production and, ideally,
// transactions if your topology requires atomic multi-message writes.
//
// Requirements:
//   - Idempotent producer ON (enable.idempotence=true)
//   - KafkaPersister uses SnapshotID as the Kafka message key; since every
//     snapshot carries its own SnapshotID, messages for one bucket do not
//     share a key and their relative order is not preserved
//   - Acks=all is recommended
//
// Note: we intentionally avoid importing a specific Kafka library.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// KafkaPersister publishes snapshots as Kafka messages. Idempotency comes
// from:
//   - Producer retries are deduplicated by the broker when idempotence is
//     enabled
//   - Consumers must track the last-applied SnapshotID per (discipline,
//     bucket) and ignore duplicates, or enforce a monotonic FencingToken
//     when provided
//
// This persister does not apply state locally; it delegates materialization
// to downstream consumers.
type KafkaPersister struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

func NewKafkaPersister(p KafkaProducer, topic string) *KafkaPersister {
	return &KafkaPersister{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

// SnapshotMessage is the serialized payload sent to Kafka.
type SnapshotMessage struct {
	Discipline     string `json:"discipline"`
	Bucket         uint32 `json:"bucket"`
	BacklogBytes   uint64 `json:"backlog_bytes"`
	DroppedPackets uint64 `json:"dropped_packets"`
	SnapshotID     string `json:"snapshot_id"`
	FencingToken   *int64 `json:"fencing_token,omitempty"`
	TsUnixMs       int64  `json:"ts_unix_ms"`
}

func (k *KafkaPersister) CommitBatch(ctx context.Context, entries []SnapshotEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}
	nowMs := time.Now().UnixMilli()
	for _, e := range entries {
		if e.SnapshotID == "" {
			return errors.New("SnapshotEntry.SnapshotID must be set")
		}
		msg := SnapshotMessage{
			Discipline:     e.Discipline,
			Bucket:         e.Bucket,
			BacklogBytes:   e.BacklogBytes,
			DroppedPackets: e.DroppedPackets,
			SnapshotID:     e.SnapshotID,
			FencingToken:   e.FencingToken,
			TsUnixMs:       nowMs,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal kafka message: %w", err)
		}
		headers := map[string]string{"content-type": "application/json"}
		if err := k.producer.Produce(ctx, k.topic, []byte(e.SnapshotID), b, headers); err != nil {
			return fmt.Errorf("kafka produce discipline=%s bucket=%d snapshot=%s: %w", e.Discipline, e.Bucket, e.SnapshotID, err)
		}
	}
	return nil
}
