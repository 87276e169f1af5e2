package apierr

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"coderats/internal/db"
	"coderats/internal/github"
	"coderats/internal/refresh"
	"coderats/internal/worker"
)

type ErrResp struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var (
	ErrUnauthorized     = &AppError{401, "UNAUTHORIZED", "authentication required"}
	ErrBadCredentials   = &AppError{401, "UNAUTHORIZED", "invalid username or password"}
	ErrBadGitHubToken   = &AppError{401, "BAD_GITHUB_TOKEN", "GitHub rejected the access token"}
	ErrForbidden        = &AppError{403, "FORBIDDEN", "not allowed"}
	ErrUserNotFound     = &AppError{404, "NOT_FOUND", "user not found"}
	ErrNotFound         = &AppError{404, "NOT_FOUND", "resource not found"}
	ErrJobRunning       = &AppError{409, "JOB_RUNNING", "rank job already running"}
	ErrAdminDisabled    = &AppError{503, "ADMIN_DISABLED", "admin login is not configured"}
	ErrOAuthUnavailable = &AppError{503, "OAUTH_DISABLED", "GitHub OAuth is not configured"}
	ErrMalformedRecord  = &AppError{500, "MALFORMED_RECORD", "stored record failed validation"}
	ErrInternal         = &AppError{500, "INTERNAL", "internal server error"}
)

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

// BadRequest builds a 400 with a caller-supplied message.
func BadRequest(msg string) *AppError {
	return &AppError{http.StatusBadRequest, "BAD_REQUEST", msg}
}

func JSON(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	e := ErrResp{}
	e.Error.Code = code
	e.Error.Message = msg
	if err := json.NewEncoder(w).Encode(e); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Write(w http.ResponseWriter, e *AppError) {
	JSON(w, e.Status, e.Code, e.Message)
}

// From maps a domain error to its API error. Unknown errors are logged and
// reported as 500 without details.
func From(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, refresh.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, worker.ErrJobRunning):
		return ErrJobRunning
	case errors.Is(err, github.ErrBadToken):
		return ErrBadGitHubToken
	case errors.Is(err, db.ErrMalformedRecord):
		log.Printf("[api] malformed record: %v", err)
		return ErrMalformedRecord
	}
	log.Printf("[api] internal error: %v", err)
	return ErrInternal
}

// WriteErr is Write(w, From(err)).
func WriteErr(w http.ResponseWriter, err error) {
	Write(w, From(err))
}
