package auction

import (
	"fmt"
	"time"

	"ticket-exchange/models"
)

// IsOpen is the single authority for whether a bid may proceed. The stored
// status flips to closed lazily; the deadline is decided at validation time,
// so a bid "in flight" before the deadline is still rejected once now has
// passed endTime.
func IsOpen(state models.AuctionState, now time.Time) bool {
	return state.Status == models.AuctionOpen && now.Before(state.EndTime)
}

// Progress derives the countdown label and the elapsed percentage as a pure
// function of (now, state). Recomputed on every poll, never accumulated, so
// the display cannot drift.
func Progress(state models.AuctionState, now time.Time) (string, int) {
	total := state.EndTime.Sub(state.CreatedAt)
	if total <= 0 {
		return "ended", 100
	}

	elapsed := now.Sub(state.CreatedAt)
	percent := int(elapsed * 100 / total)
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	remaining := state.EndTime.Sub(now)
	if remaining <= 0 || !IsOpen(state, now) {
		return "ended", percent
	}

	return remainingLabel(remaining), percent
}

func remainingLabel(remaining time.Duration) string {
	switch {
	case remaining >= 24*time.Hour:
		days := int(remaining / (24 * time.Hour))
		hours := int(remaining/time.Hour) % 24
		return fmt.Sprintf("%dd %dh", days, hours)
	case remaining >= time.Hour:
		hours := int(remaining / time.Hour)
		minutes := int(remaining/time.Minute) % 60
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	default:
		minutes := int(remaining / time.Minute)
		seconds := int(remaining/time.Second) % 60
		return fmt.Sprintf("%dm %02ds", minutes, seconds)
	}
}
