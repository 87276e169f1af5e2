package score

import "math"

// Counters are the raw per-user activity tallies fetched from GitHub.
type Counters struct {
	Commits      int `json:"commits"`
	PullRequests int `json:"pullRequests"`
	Issues       int `json:"issues"`
	CodeReviews  int `json:"codeReviews"`
	Projects     int `json:"projects"`
	ActiveDays   int `json:"activeDays"`
}

// Weight is one term of the score formula.
type Weight struct {
	Field  string  `json:"field"`
	Weight float64 `json:"weight"`
}

// Weights is the published score formula. Anything that explains the score to
// users must render these exact numbers.
var Weights = []Weight{
	{"commits", 4},
	{"pullRequests", 2.5},
	{"issues", 1.5},
	{"codeReviews", 1},
	{"projects", 0.5},
	{"activeDays", 0.3},
}

// Raw returns the unrounded weighted sum.
func Raw(c Counters) float64 {
	return float64(c.Commits)*4 +
		float64(c.PullRequests)*2.5 +
		float64(c.Issues)*1.5 +
		float64(c.CodeReviews)*1 +
		float64(c.Projects)*0.5 +
		float64(c.ActiveDays)*0.3
}

// Compute maps counters to the stored score, rounded to the nearest integer.
func Compute(c Counters) int64 {
	return int64(math.Round(Raw(c)))
}

// IsZero reports whether every counter is zero.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Valid reports whether all counters are non-negative.
func (c Counters) Valid() bool {
	return c.Commits >= 0 && c.PullRequests >= 0 && c.Issues >= 0 &&
		c.CodeReviews >= 0 && c.Projects >= 0 && c.ActiveDays >= 0
}
