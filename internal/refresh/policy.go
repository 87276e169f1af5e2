package refresh

import (
	"fmt"
	"time"
)

const (
	Cooldown         = 24 * time.Hour
	DailyForcedQuota = 3
)

// Decision is the outcome of a refresh policy check. It is never persisted.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ShouldRefresh decides whether a stats refresh may run at now.
//
// A natural refresh needs updatedAt to be unset or at least Cooldown old. A
// forced refresh ignores the cooldown but is allowed only while fewer than
// DailyForcedQuota entries of log fall on today's UTC date.
func ShouldRefresh(now time.Time, updatedAt *time.Time, log []time.Time, forced bool) Decision {
	if forced {
		used := ForcedToday(now, log)
		if used >= DailyForcedQuota {
			return Decision{Reason: fmt.Sprintf("daily forced refresh quota reached (%d/%d)", used, DailyForcedQuota)}
		}
		return Decision{Allowed: true}
	}

	if updatedAt == nil {
		return Decision{Allowed: true}
	}
	age := now.Sub(*updatedAt)
	if age >= Cooldown {
		return Decision{Allowed: true}
	}
	return Decision{Reason: "cooldown: next refresh in " + formatWait(Cooldown-age)}
}

// ForcedToday counts the log entries on now's UTC calendar date.
func ForcedToday(now time.Time, log []time.Time) int {
	return len(todaysEntries(now, log))
}

// NextLog returns the refresh log to store after a forced refresh at now:
// today's entries followed by now. Older days are pruned.
func NextLog(now time.Time, log []time.Time) []time.Time {
	return append(todaysEntries(now, log), now.UTC())
}

func todaysEntries(now time.Time, log []time.Time) []time.Time {
	today := dayKey(now)
	out := make([]time.Time, 0, len(log)+1)
	for _, t := range log {
		if dayKey(t) == today {
			out = append(out, t.UTC())
		}
	}
	return out
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func formatWait(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
