package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderats/internal/db"
	"coderats/internal/github"
	"coderats/internal/refresh"
	"coderats/internal/worker"
)

func TestWriteEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, ErrForbidden)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
	assert.Equal(t, "not allowed", body.Error.Message)
}

func TestFrom(t *testing.T) {
	tests := []struct {
		err  error
		want *AppError
	}{
		{fmt.Errorf("refresh: %w", refresh.ErrUserNotFound), ErrUserNotFound},
		{fmt.Errorf("delete: %w", db.ErrNotFound), ErrNotFound},
		{worker.ErrJobRunning, ErrJobRunning},
		{fmt.Errorf("fetching alice: %w", github.ErrBadToken), ErrBadGitHubToken},
		{fmt.Errorf("upsert user: %w", db.ErrMalformedRecord), ErrMalformedRecord},
		{BadRequest("title is required"), BadRequest("title is required")},
		{errors.New("pq: connection refused to host=10.0.0.1"), ErrInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, From(tt.err), tt.err.Error())
	}
}

func TestWriteErrHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, errors.New("dial tcp 10.0.0.1:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}
