package github

import "time"

// GHUser is the subset of the REST user object we keep.
type GHUser struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Type        string `json:"type"` // "User" or "Organization"
}

// GHEvent is one entry of the public events feed.
type GHEvent struct {
	Type string `json:"type"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	CreatedAt time.Time `json:"created_at"`
}
