package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
//
// Ineligible operations (claim before target, second claim same day, grant
// with both ticket slots full) are NOT errors: they resolve as typed
// "not granted" results. These sentinels cover contract violations and
// infrastructure failures only.

var (
	// Contract violations — fail loudly, the caller passed bad input.
	ErrUnknownEventType = errors.New("unknown gameplay event type")
	ErrUnknownQuest     = errors.New("unknown quest id")
	ErrUnknownPeriod    = errors.New("unknown quest period")
	ErrInvalidXPAmount  = errors.New("xp amount must be non-negative")

	// Ranking authority errors.
	ErrWeekUnavailable = errors.New("ranking authority week id unavailable")
	ErrLeagueNotFound  = errors.New("league not found")
	ErrMemberConflict  = errors.New("league membership already exists")
	ErrRewardNotFound  = errors.New("pending reward not found")
)
