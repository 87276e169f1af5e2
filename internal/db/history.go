package db

import (
	"context"
	"fmt"
	"time"
)

// RankSnapshot is one user's position after a rank job run.
type RankSnapshot struct {
	Username   string    `json:"username"`
	Rank       int       `json:"rank"`
	Score      int64     `json:"score"`
	RecordedAt time.Time `json:"recordedAt"`
}

// InsertRankSnapshots writes a whole snapshot in one transaction.
func (d *DB) InsertRankSnapshots(ctx context.Context, snaps []RankSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rank snapshot: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rank_history (username, rank, score, recorded_at) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("rank snapshot: prepare: %w", err)
	}
	defer stmt.Close()

	for _, s := range snaps {
		if _, err := stmt.ExecContext(ctx, s.Username, s.Rank, s.Score, s.RecordedAt); err != nil {
			return fmt.Errorf("rank snapshot %s: %w", s.Username, err)
		}
	}
	return tx.Commit()
}

// RankHistory returns the most recent snapshots for username, newest first.
func (d *DB) RankHistory(ctx context.Context, username string, limit int) ([]RankSnapshot, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT username, rank, score, recorded_at
		FROM rank_history
		WHERE username = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("rank history %s: %w", username, err)
	}
	defer rows.Close()

	var out []RankSnapshot
	for rows.Next() {
		var s RankSnapshot
		if err := rows.Scan(&s.Username, &s.Rank, &s.Score, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("rank history %s: %w", username, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
