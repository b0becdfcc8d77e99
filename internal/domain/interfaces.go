package domain

// ─── External Collaborator Interfaces ───────────────────────────────────────

// KVStore is the local durable store: a string-keyed persistent map with
// read-your-writes consistency. Each engine state bundle is one JSON blob
// under one key.
type KVStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// RankingStore is the remote ranking authority. It owns week identity and
// league membership; the engine never computes week ids locally except as an
// offline fallback.
type RankingStore interface {
	// CurrentWeekID and LastWeekID resolve server-authoritative week ids.
	CurrentWeekID() (string, error)
	LastWeekID() (string, error)

	// ListLeagues returns the leagues of one week+tier, oldest first.
	ListLeagues(weekID string, tier int) ([]LeagueRecord, error)
	// CreateLeague inserts a new league row and returns it.
	CreateLeague(weekID string, tier int) (LeagueRecord, error)
	// GetLeague resolves one league row. ErrLeagueNotFound when absent.
	GetLeague(leagueID string) (LeagueRecord, error)

	// ListMembers returns a league's members ordered by weekly XP
	// descending, insertion order preserved on ties.
	ListMembers(leagueID string) ([]MemberRecord, error)
	// InsertMember adds a membership row. Returns ErrMemberConflict when
	// the user already belongs to a league that week.
	InsertMember(leagueID, userID string) error
	// MembershipFor resolves the user's league for a week; nil when absent.
	MembershipFor(userID, weekID string) (*MemberRecord, error)
	// AddWeeklyXP atomically increments a member's weekly XP.
	AddWeeklyXP(leagueID, userID string, xp int) error
	// UpdateMemberResult stores the settled rank and movement flags.
	UpdateMemberResult(leagueID, userID string, finalRank int, promoted, demoted bool) error

	// TotalXP returns each user's lifetime XP (matchmaking input).
	TotalXP(userIDs []string) (map[string]int, error)
	// SetTotalXP records a user's lifetime XP (sync path).
	SetTotalXP(userID string, xp int) error

	// UpsertPendingReward stores an end-of-week reward, idempotent on
	// (user, week).
	UpsertPendingReward(reward PendingReward) error
	// PendingRewardFor returns the newest unclaimed reward; nil when none.
	PendingRewardFor(userID string) (*PendingReward, error)
	// ClaimPendingReward marks a reward claimed exactly once; returns the
	// claimed reward or ErrRewardNotFound when absent or already claimed.
	ClaimPendingReward(rewardID string) (PendingReward, error)
}

// EventSink receives outbound engine signals (ticket granted, quest claimed,
// streak lost, ...). Implementations may be asynchronous; delivery is
// best-effort and must never affect engine results.
type EventSink interface {
	Emit(name string, attrs map[string]any)
}

// NopSink discards every event.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(string, map[string]any) {}
