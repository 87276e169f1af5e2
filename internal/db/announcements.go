package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Announcement struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AnnouncementPatch updates only the non-nil fields.
type AnnouncementPatch struct {
	Title  *string
	Body   *string
	Active *bool
}

const announcementColumns = `id, title, body, active, created_at, updated_at`

func scanAnnouncement(row rowScanner) (*Announcement, error) {
	var a Announcement
	if err := row.Scan(&a.ID, &a.Title, &a.Body, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) CreateAnnouncement(ctx context.Context, title, body string, active bool) (*Announcement, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("create announcement: %w: empty title", ErrMalformedRecord)
	}
	now := d.now().UTC()
	a := &Announcement{ID: uuid.New(), Title: title, Body: body, Active: active, CreatedAt: now, UpdatedAt: now}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO announcements (`+announcementColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Title, a.Body, a.Active, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}
	return a, nil
}

func (d *DB) UpdateAnnouncement(ctx context.Context, id uuid.UUID, p AnnouncementPatch) (*Announcement, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, fmt.Errorf("update announcement: %w: empty title", ErrMalformedRecord)
	}
	row := d.conn.QueryRowContext(ctx, `
		UPDATE announcements SET
			title = COALESCE($2, title),
			body = COALESCE($3, body),
			active = COALESCE($4, active),
			updated_at = $5
		WHERE id = $1
		RETURNING `+announcementColumns,
		id, p.Title, p.Body, p.Active, d.now().UTC())
	a, err := scanAnnouncement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update announcement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update announcement %s: %w", id, err)
	}
	return a, nil
}

func (d *DB) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete announcement %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete announcement %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListAnnouncements returns announcements newest first.
func (d *DB) ListAnnouncements(ctx context.Context, activeOnly bool) ([]Announcement, error) {
	q := `SELECT ` + announcementColumns + ` FROM announcements`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := d.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	out := []Announcement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("list announcements: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
