package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/chorewheel/pkg/db"
)

// Save inserts a snapshot row. Each write is a new row so the table doubles
// as a short history; Load always returns the newest.
func (d *DB) Save(ctx context.Context, snap *db.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO snapshots (id, taken_at, state)
		VALUES ($1, $2, $3)
	`, snap.ID, snap.TakenAt, payload)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Load retrieves the most recent snapshot. Returns db.ErrNoSnapshot when
// the table is empty.
func (d *DB) Load(ctx context.Context) (*db.Snapshot, error) {
	var payload []byte
	err := d.pool.QueryRow(ctx, `
		SELECT state FROM snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	var snap db.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot payload: %w", err)
	}
	return &snap, nil
}

// PruneSnapshots deletes all but the newest keep rows.
func (d *DB) PruneSnapshots(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := d.pool.Exec(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (
			SELECT id FROM snapshots
			ORDER BY taken_at DESC, id DESC
			LIMIT $1
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}
