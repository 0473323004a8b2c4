package service

import (
	"time"
)

// QuotaWindow is the stored tap allowance of an account.
type QuotaWindow struct {
	Remaining int64
	StartedAt time.Time
}

// ResolveQuota derives the current window from the stored one. When delay has elapsed
// since StartedAt the window restarts at now with maxQuota taps; otherwise Remaining
// is clamped to [0, maxQuota]. The returned duration is the time left until the next reset.
func ResolveQuota(stored QuotaWindow, maxQuota int64, now time.Time, delay time.Duration) (QuotaWindow, time.Duration, bool) {
	elapsed := now.Sub(stored.StartedAt)
	if elapsed >= delay {
		return QuotaWindow{Remaining: maxQuota, StartedAt: now}, delay, true
	}

	remaining := stored.Remaining
	if remaining < 0 {
		remaining = 0
	}
	if remaining > maxQuota {
		remaining = maxQuota
	}

	resetIn := delay - elapsed
	if resetIn < 0 {
		resetIn = 0
	}
	if resetIn > delay {
		resetIn = delay
	}
	return QuotaWindow{Remaining: remaining, StartedAt: stored.StartedAt}, resetIn, false
}
