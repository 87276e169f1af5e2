package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coderats/internal/db"
	"coderats/internal/leaderboard"
	"coderats/internal/score"
)

func TestReadUsernames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte("# core team\ntorvalds\n\n  gaearon  # react\n#skip\nsindresorhus\n"), 0o600))

	names, err := readUsernames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"torvalds", "gaearon", "sindresorhus"}, names)

	_, err = readUsernames(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestPrintBoard(t *testing.T) {
	color.NoColor = true
	users := []db.User{
		{Username: "alice", Counters: score.Counters{Commits: 10, ActiveDays: 4}},
		{Username: "bob", Counters: score.Counters{Commits: 20}},
		{Username: "mallory", Counters: score.Counters{Commits: 99}, IsBanned: true},
	}
	entries := leaderboard.Rank(users, true)

	var buf bytes.Buffer
	require.NoError(t, printBoard(&buf, entries, 0))
	out := buf.String()
	assert.Contains(t, out, "mallory (banned)")
	assert.Less(t, strings.Index(out, "mallory"), strings.Index(out, "bob"))
	assert.Less(t, strings.Index(out, "bob"), strings.Index(out, "alice"))

	buf.Reset()
	require.NoError(t, printBoard(&buf, entries, 1))
	assert.Contains(t, buf.String(), "mallory")
	assert.NotContains(t, buf.String(), "alice")
}

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetIn(strings.NewReader("hunter2\n"))
	hashPasswordCmd.SetOut(&out)
	defer hashPasswordCmd.SetOut(nil)

	require.NoError(t, hashPasswordCmd.RunE(hashPasswordCmd, nil))
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))

	hashPasswordCmd.SetIn(strings.NewReader("\n"))
	assert.Error(t, hashPasswordCmd.RunE(hashPasswordCmd, nil))
}
