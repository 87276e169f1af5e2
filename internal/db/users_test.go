package db

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderats/internal/score"
)

var userCols = []string{
	"username", "avatar_url", "display_name",
	"commits", "pull_requests", "issues", "code_reviews", "projects", "active_days",
	"score", "updated_at", "refresh_log", "is_banned", "created_at",
}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	d := NewWithConn(conn)
	d.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return d, mock
}

func userRow(username string, commits int, updated any, refreshLog string, banned bool) []driver.Value {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{username, "https://avatars/" + username, username, commits, 0, 0, 0, 0, 0,
		int64(commits * 4), updated, refreshLog, banned, created}
}

func TestGetUser(t *testing.T) {
	d, mock := newMock(t)
	ctx := context.Background()
	updated := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(userRow("alice", 10, updated, `["2026-10-19T08:00:00Z"]`, false)...))

	u, err := d.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, 10, u.Commits)
	assert.Equal(t, int64(40), u.Score)
	require.NotNil(t, u.UpdatedAt)
	assert.True(t, u.UpdatedAt.Equal(updated))
	require.Len(t, u.RefreshLog, 1)
	assert.Equal(t, 2026, u.RefreshLog[0].Year())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserMissing(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := d.GetUser(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetUserMalformed(t *testing.T) {
	tests := []struct {
		name string
		row  []driver.Value
	}{
		{"negative counters", userRow("bob", -1, nil, `[]`, false)},
		{"bad refresh log", userRow("bob", 1, nil, `{"not":"a list"}`, false)},
		{"empty username", userRow("", 1, nil, `[]`, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mock := newMock(t)
			mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
				WillReturnRows(sqlmock.NewRows(userCols).AddRow(tt.row...))

			_, err := d.GetUser(context.Background(), "bob")
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestListUsers(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users ORDER BY created_at, id")).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(userRow("alice", 3, nil, `[]`, false)...).
			AddRow(userRow("bob", 5, nil, `[]`, true)...))

	users, err := d.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Nil(t, users[0].UpdatedAt)
	assert.True(t, users[1].IsBanned)
}

func TestUpsertUserCountersDeriveScore(t *testing.T) {
	d, mock := newMock(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c := score.Counters{Commits: 100, PullRequests: 20, Issues: 10, CodeReviews: 5, Projects: 3, ActiveDays: 15}

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO users (username, commits, pull_requests, issues, code_reviews, projects, active_days, score, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (username) DO UPDATE SET "+
			"commits = EXCLUDED.commits, pull_requests = EXCLUDED.pull_requests, issues = EXCLUDED.issues, "+
			"code_reviews = EXCLUDED.code_reviews, projects = EXCLUDED.projects, active_days = EXCLUDED.active_days, "+
			"score = EXCLUDED.score, updated_at = EXCLUDED.updated_at")).
		WithArgs("alice", 100, 20, 10, 5, 3, 15, int64(476), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.UpsertUser(context.Background(), "alice", UserPatch{Counters: &c, UpdatedAt: &now})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUserMergesOnlyGivenFields(t *testing.T) {
	d, mock := newMock(t)
	avatar := "https://avatars/alice"
	log := []time.Time{time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO users (username, avatar_url, refresh_log) VALUES ($1, $2, $3::jsonb) "+
			"ON CONFLICT (username) DO UPDATE SET avatar_url = EXCLUDED.avatar_url, refresh_log = EXCLUDED.refresh_log")).
		WithArgs("alice", avatar, `["2026-10-19T08:00:00Z"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.UpsertUser(context.Background(), "alice", UserPatch{AvatarURL: &avatar, RefreshLog: &log})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUserIdentityOnly(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (username) VALUES ($1) ON CONFLICT (username) DO NOTHING")).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, d.UpsertUser(context.Background(), "alice", UserPatch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUserRejectsBadInput(t *testing.T) {
	d, mock := newMock(t)

	err := d.UpsertUser(context.Background(), " ", UserPatch{})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	bad := score.Counters{Commits: -5}
	err = d.UpsertUser(context.Background(), "alice", UserPatch{Counters: &bad})
	assert.ErrorIs(t, err, ErrMalformedRecord)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBanned(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET is_banned = $2 WHERE username = $1")).
		WithArgs("alice", true).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("alice", 2, nil, `[]`, true)...))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET is_banned = $2 WHERE username = $1")).
		WithArgs("ghost", true).
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := d.SetBanned(context.Background(), "alice", true)
	require.NoError(t, err)
	assert.True(t, u.IsBanned)

	_, err = d.SetBanned(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetUser(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("alice", 0, nil, `[]`, false)...))

	u, err := d.ResetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.Counters.IsZero())
	assert.Nil(t, u.UpdatedAt)
	assert.Empty(t, u.RefreshLog)
}

func TestCountUsers(t *testing.T) {
	d, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*), COUNT(*) FILTER (WHERE is_banned) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "banned"}).AddRow(12, 2))

	total, banned, err := d.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, 2, banned)
}

func TestInsertRankSnapshots(t *testing.T) {
	d, mock := newMock(t)
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rank_history"))
	prep.ExpectExec().WithArgs("alice", 1, int64(900), at).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("bob", 2, int64(900), at).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := d.InsertRankSnapshots(context.Background(), []RankSnapshot{
		{Username: "alice", Rank: 1, Score: 900, RecordedAt: at},
		{Username: "bob", Rank: 2, Score: 900, RecordedAt: at},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRankHistory(t *testing.T) {
	d, mock := newMock(t)
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rank_history")).
		WithArgs("alice", 30).
		WillReturnRows(sqlmock.NewRows([]string{"username", "rank", "score", "recorded_at"}).
			AddRow("alice", 2, int64(476), at))

	hist, err := d.RankHistory(context.Background(), "alice", 30)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].Rank)
}

func TestAnnouncements(t *testing.T) {
	d, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO announcements")).
		WithArgs(sqlmock.AnyArg(), "Season 2", "New scoring season", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a, err := d.CreateAnnouncement(ctx, "Season 2", "New scoring season", true)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, a.ID)

	_, err = d.CreateAnnouncement(ctx, "  ", "", true)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM announcements WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, d.DeleteAnnouncement(ctx, id), ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM announcements WHERE active ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "active", "created_at", "updated_at"}).
			AddRow(a.ID.String(), a.Title, a.Body, true, a.CreatedAt, a.UpdatedAt))
	list, err := d.ListAnnouncements(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
