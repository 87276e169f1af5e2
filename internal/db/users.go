package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coderats/internal/score"
)

// ── Model types ────────────────────────────────────────────────────────────────

// User is one tracked developer.
type User struct {
	Username    string `json:"username"`
	AvatarURL   string `json:"avatarUrl"`
	DisplayName string `json:"displayName"`
	score.Counters
	Score      int64       `json:"score"`
	UpdatedAt  *time.Time  `json:"updatedAt"`
	RefreshLog []time.Time `json:"refreshLog"`
	IsBanned   bool        `json:"isBanned"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// UserPatch is a partial update. Nil fields are left untouched; on insert they
// take the column defaults. Counters are written as a unit and the score is
// always derived from them.
type UserPatch struct {
	AvatarURL   *string
	DisplayName *string
	Counters    *score.Counters
	UpdatedAt   *time.Time
	RefreshLog  *[]time.Time
	IsBanned    *bool
}

const userColumns = `username, avatar_url, display_name,
	commits, pull_requests, issues, code_reviews, projects, active_days,
	score, updated_at, refresh_log, is_banned, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser decodes one row and validates it. Malformed rows fail rather than
// being defaulted.
func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		updatedAt sql.NullTime
		logJSON   []byte
	)
	err := row.Scan(
		&u.Username, &u.AvatarURL, &u.DisplayName,
		&u.Commits, &u.PullRequests, &u.Issues, &u.CodeReviews, &u.Projects, &u.ActiveDays,
		&u.Score, &updatedAt, &logJSON, &u.IsBanned, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &u.RefreshLog); err != nil {
			return nil, fmt.Errorf("%w: user %q: refresh_log: %v", ErrMalformedRecord, u.Username, err)
		}
	}
	if strings.TrimSpace(u.Username) == "" {
		return nil, fmt.Errorf("%w: empty username", ErrMalformedRecord)
	}
	if !u.Counters.Valid() || u.Score < 0 {
		return nil, fmt.Errorf("%w: user %q: negative counters", ErrMalformedRecord, u.Username)
	}
	return &u, nil
}

// GetUser returns the record for username, or nil when it does not exist.
func (d *DB) GetUser(ctx context.Context, username string) (*User, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return u, nil
}

// ListUsers returns every record in insertion order (created_at, then id).
func (d *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpsertUser merges patch into the record for username, creating it if
// needed. Last writer wins.
func (d *DB) UpsertUser(ctx context.Context, username string, p UserPatch) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("upsert user: %w: empty username", ErrMalformedRecord)
	}

	cols := []string{"username"}
	args := []any{username}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}

	if p.AvatarURL != nil {
		add("avatar_url", *p.AvatarURL)
	}
	if p.DisplayName != nil {
		add("display_name", *p.DisplayName)
	}
	if p.Counters != nil {
		c := *p.Counters
		if !c.Valid() {
			return fmt.Errorf("upsert user %s: %w: negative counters", username, ErrMalformedRecord)
		}
		add("commits", c.Commits)
		add("pull_requests", c.PullRequests)
		add("issues", c.Issues)
		add("code_reviews", c.CodeReviews)
		add("projects", c.Projects)
		add("active_days", c.ActiveDays)
		add("score", score.Compute(c))
	}
	if p.UpdatedAt != nil {
		add("updated_at", *p.UpdatedAt)
	}
	if p.RefreshLog != nil {
		entries := *p.RefreshLog
		if entries == nil {
			entries = []time.Time{}
		}
		b, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("upsert user %s: encode refresh log: %w", username, err)
		}
		add("refresh_log", string(b))
	}
	if p.IsBanned != nil {
		add("is_banned", *p.IsBanned)
	}

	placeholders := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c == "refresh_log" {
			placeholders[i] += "::jsonb"
		}
	}

	var q strings.Builder
	fmt.Fprintf(&q, "INSERT INTO users (%s) VALUES (%s) ON CONFLICT (username) DO ",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(cols) == 1 {
		q.WriteString("NOTHING")
	} else {
		sets := make([]string, 0, len(cols)-1)
		for _, c := range cols[1:] {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
		q.WriteString("UPDATE SET " + strings.Join(sets, ", "))
	}

	if _, err := d.conn.ExecContext(ctx, q.String(), args...); err != nil {
		return fmt.Errorf("upsert user %s: %w", username, err)
	}
	return nil
}

// SetBanned flips the ban flag and returns the updated record.
func (d *DB) SetBanned(ctx context.Context, username string, banned bool) (*User, error) {
	row := d.conn.QueryRowContext(ctx,
		`UPDATE users SET is_banned = $2 WHERE username = $1 RETURNING `+userColumns,
		username, banned)
	return d.returning(row, "set banned", username)
}

// ResetUser zeroes counters, score and refresh metadata but keeps identity
// fields and the ban flag.
func (d *DB) ResetUser(ctx context.Context, username string) (*User, error) {
	row := d.conn.QueryRowContext(ctx, `
		UPDATE users SET
			commits = 0, pull_requests = 0, issues = 0, code_reviews = 0,
			projects = 0, active_days = 0, score = 0,
			updated_at = NULL, refresh_log = '[]'::jsonb
		WHERE username = $1
		RETURNING `+userColumns, username)
	return d.returning(row, "reset user", username)
}

func (d *DB) returning(row *sql.Row, op, username string) (*User, error) {
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", op, username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, username, err)
	}
	return u, nil
}

// CountUsers returns the total and banned record counts.
func (d *DB) CountUsers(ctx context.Context) (total, banned int, err error) {
	err = d.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_banned) FROM users`).Scan(&total, &banned)
	if err != nil {
		return 0, 0, fmt.Errorf("count users: %w", err)
	}
	return total, banned, nil
}
