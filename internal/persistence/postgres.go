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
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS bucket_stats (
//   discipline TEXT NOT NULL,
//   bucket INTEGER NOT NULL,
//   backlog_bytes BIGINT NOT NULL,
//   dropped_packets BIGINT NOT NULL,
//   last_token BIGINT,
//   PRIMARY KEY (discipline, bucket)
// );
//
// CREATE TABLE IF NOT EXISTS applied_snapshots (
//   snapshot_id TEXT PRIMARY KEY,
//   discipline TEXT NOT NULL,
//   bucket INTEGER NOT NULL,
//   ts TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_applied_snapshots_bucket ON applied_snapshots(discipline, bucket);
//
// Idempotent transaction per snapshot entry:
//   INSERT INTO applied_snapshots(snapshot_id, discipline, bucket) VALUES ($1,$2,$3)
//     ON CONFLICT DO NOTHING;
//   -- only when the INSERT above affected a row (snapshot not yet applied):
//   UPDATE bucket_stats
//     SET backlog_bytes = $3, dropped_packets = $4
//     WHERE discipline = $1 AND bucket = $2;

// PostgresPersister applies snapshots idempotently using the safe pattern
// above. It can optionally auto-create missing bucket rows.
type PostgresPersister struct {
	db                *sql.DB
	createMissingRows bool
	defaultTimeout    time.Duration
}

// NewPostgresPersister creates a persister. If createMissingRows is true,
// the persister inserts a zeroed bucket_stats row on first sight of a
// (discipline, bucket) pair.
func NewPostgresPersister(db *sql.DB, createMissingRows bool) *PostgresPersister {
	return &PostgresPersister{db: db, createMissingRows: createMissingRows, defaultTimeout: 10 * time.Second}
}

// CommitBatch applies the provided entries within a single transaction.
// Each entry remains idempotent: if the snapshot_id already exists, its
// effects are skipped.
func (p *PostgresPersister) CommitBatch(ctx context.Context, entries []SnapshotEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaultTimeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if p.createMissingRows {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bucket_stats(discipline, bucket, backlog_bytes, dropped_packets) VALUES ($1, $2, 0, 0) ON CONFLICT DO NOTHING`,
				e.Discipline, e.Bucket); err != nil {
				return fmt.Errorf("insert bucket_stats(%s,%d): %w", e.Discipline, e.Bucket, err)
			}
		}
	}

	for _, e := range entries {
		if e.SnapshotID == "" {
			return errors.New("SnapshotEntry.SnapshotID must be set")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO applied_snapshots(snapshot_id, discipline, bucket) VALUES ($1,$2,$3) ON CONFLICT DO NOTHING`,
			e.SnapshotID, e.Discipline, e.Bucket)
		if err != nil {
			return fmt.Errorf("insert applied_snapshots(%s): %w", e.SnapshotID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue // snapshot already applied
		}
		if e.FencingToken != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bucket_stats SET last_token = GREATEST(COALESCE(last_token, $3), $3)
                  WHERE discipline = $1 AND bucket = $2 AND (last_token IS NULL OR $3 >= last_token)`,
				e.Discipline, e.Bucket, *e.FencingToken); err != nil {
				return fmt.Errorf("update last_token(%s,%d): %w", e.Discipline, e.Bucket, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bucket_stats SET backlog_bytes = $3, dropped_packets = $4
               WHERE discipline = $1 AND bucket = $2`,
			e.Discipline, e.Bucket, e.BacklogBytes, e.DroppedPackets); err != nil {
			return fmt.Errorf("update bucket_stats(%s,%d): %w", e.Discipline, e.Bucket, err)
		}
	}

	return tx.Commit()
}
