package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultAuthBase = "https://github.com"
	defaultAPIBase  = "https://api.github.com"

	oauthStateTTL = 10 * time.Minute
)

// StateStore keeps single-use OAuth state values. rdb.Client satisfies it.
type StateStore interface {
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Take(ctx context.Context, key string) ([]byte, bool)
}

// GenerateOAuthState stores a one-time random state (10-min TTL) and returns
// it for embedding in the OAuth redirect URL.
func GenerateOAuthState(ctx context.Context, store StateStore) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	state := fmt.Sprintf("%x", b)
	store.Set(ctx, "oauth_state:"+state, []byte("1"), oauthStateTTL)
	return state
}

// ValidateOAuthState consumes the state. Returns true only if it existed
// (single-use CSRF token).
func ValidateOAuthState(ctx context.Context, store StateStore, state string) bool {
	if state == "" {
		return false
	}
	_, ok := store.Take(ctx, "oauth_state:"+state)
	return ok
}

// Profile is the signed-in GitHub account.
type Profile struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// OAuth performs the GitHub web application flow.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthBase   string // defaults to https://github.com
	APIBase    string // defaults to https://api.github.com
	HTTPClient *http.Client
}

func (o *OAuth) authBase() string {
	if o.AuthBase != "" {
		return o.AuthBase
	}
	return defaultAuthBase
}

func (o *OAuth) apiBase() string {
	if o.APIBase != "" {
		return o.APIBase
	}
	return defaultAPIBase
}

func (o *OAuth) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

// AuthorizeURL is where the browser is sent to grant access.
func (o *OAuth) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("state", state)
	q.Set("scope", "read:user")
	if o.RedirectURI != "" {
		q.Set("redirect_uri", o.RedirectURI)
	}
	return o.authBase() + "/login/oauth/authorize?" + q.Encode()
}

// ExchangeOAuthCode exchanges a GitHub OAuth code for a user access token.
func (o *OAuth) ExchangeOAuthCode(ctx context.Context, code string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.authBase()+"/login/oauth/access_token", nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("client_id", o.ClientID)
	q.Set("client_secret", o.ClientSecret)
	q.Set("code", code)
	if o.RedirectURI != "" {
		q.Set("redirect_uri", o.RedirectURI)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := o.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var result struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("auth: decoding OAuth response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("oauth error: %s: %s", result.Error, result.ErrorDescription)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("auth: no access_token in OAuth response")
	}
	return result.AccessToken, nil
}

// FetchGitHubProfile returns the account identified by an OAuth access token.
func (o *OAuth) FetchGitHubProfile(ctx context.Context, token string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase()+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := o.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub user lookup: %s", resp.Status)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	if p.Login == "" {
		return nil, fmt.Errorf("auth: empty login in GitHub user response")
	}
	return &p, nil
}
