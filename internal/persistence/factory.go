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
	"errors"
	"fmt"
	"time"
)

// mockPersister prints snapshot batches to the console; used when no
// adapter is selected.
type mockPersister struct{}

func (mockPersister) CommitBatch(snapshots []BucketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	fmt.Printf("[%s] Persisting %d bucket snapshots...\n", time.Now().Format(time.RFC3339), len(snapshots))
	for _, s := range snapshots {
		fmt.Printf("  - %-8s bucket=%-4d backlog_bytes=%-8d dropped=%d\n", s.Discipline, s.Bucket, s.BacklogBytes, s.DroppedPackets)
	}
	return nil
}

// BuildPersister constructs a Persister for the demo based on a
// string selector. Supported adapters:
//   - "mock": in-process logger (default)
//   - "redis": idempotent Redis adapter; uses a real client when RedisAddr
//     is set, otherwise a logging client
//   - "kafka": idempotent Kafka adapter using a logging producer (no broker)
//   - "postgres": not wired for the demo binary (returns an error to avoid
//     hidden nil-DB usage)
func BuildPersister(adapter string, opts DemoOptions) (Persister, error) {
	switch adapter {
	case "", "mock":
		return mockPersister{}, nil
	case "redis":
		ttl := opts.RedisMarkerTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			evaler = LoggingRedisEvaler{}
		}
		r := NewRedisPersister(evaler, ttl)
		return NewIdemShim(r), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "fqsim-bucket-snapshots"
		}
		k := NewKafkaPersister(LoggingKafkaProducer{}, topic)
		return NewIdemShim(k), nil
	case "postgres":
		return nil, errors.New("postgres adapter is not enabled in the demo build; wire a real *sql.DB and create the bucket_stats/applied_snapshots tables")
	default:
		return nil, fmt.Errorf("unknown persistence adapter: %s", adapter)
	}
}
