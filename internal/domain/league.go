package domain

import (
	"math"
	"sort"
	"time"
)

// ─── League Types ───────────────────────────────────────────────────────────

// Tier bounds. Bronze (0) through Master (5).
const (
	MinTier = 0
	MaxTier = 5
)

// TierInfo names a league tier.
type TierInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LeagueTiers is the fixed tier ladder.
var LeagueTiers = []TierInfo{
	{ID: 0, Name: "Bronze"},
	{ID: 1, Name: "Silver"},
	{ID: 2, Name: "Gold"},
	{ID: 3, Name: "Platinum"},
	{ID: 4, Name: "Diamond"},
	{ID: 5, Name: "Master"},
}

// ClampTier bounds a tier to the ladder.
func ClampTier(tier int) int {
	if tier < MinTier {
		return MinTier
	}
	if tier > MaxTier {
		return MaxTier
	}
	return tier
}

// TierName returns the display name of a tier.
func TierName(tier int) string {
	return LeagueTiers[ClampTier(tier)].Name
}

// LeagueMember is one ranked member of a weekly league cohort.
type LeagueMember struct {
	UserID   string `json:"user_id"`
	WeeklyXP int    `json:"weekly_xp"`
	Rank     int    `json:"rank"`
}

// LeagueInfo is a ranked snapshot of a league for one user.
type LeagueInfo struct {
	LeagueID      string         `json:"league_id"`
	WeekID        string         `json:"week_id"`
	Tier          int            `json:"tier"`
	TierName      string         `json:"tier_name"`
	Members       []LeagueMember `json:"members"`
	MyRank        int            `json:"my_rank"`
	PromotionZone int            `json:"promotion_zone"`
	DemotionZone  int            `json:"demotion_zone"`
}

// LeagueRecord is a league row in the ranking store.
type LeagueRecord struct {
	ID        string    `json:"id"`
	WeekID    string    `json:"week_id"`
	Tier      int       `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberRecord is a membership row in the ranking store.
type MemberRecord struct {
	LeagueID  string    `json:"league_id"`
	UserID    string    `json:"user_id"`
	WeeklyXP  int       `json:"weekly_xp"`
	FinalRank int       `json:"final_rank"`
	Promoted  bool      `json:"promoted"`
	Demoted   bool      `json:"demoted"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingReward is an unclaimed end-of-week reward row.
type PendingReward struct {
	ID      string   `json:"id"`
	UserID  string   `json:"user_id"`
	WeekID  string   `json:"week_id"`
	Gems    int      `json:"gems"`
	Badges  []string `json:"badges"`
	Claimed bool     `json:"claimed"`
}

// PromotionZoneSize returns how many top ranks promote out of n members.
func PromotionZoneSize(n int) int {
	return int(math.Ceil(float64(n) * 0.2))
}

// DemotionZoneStart returns the first rank that demotes: everything at or
// below this rank is in the demotion zone.
func DemotionZoneStart(n int) int {
	return n - int(math.Floor(float64(n)*0.2)) + 1
}

// RankMembers sorts members by weekly XP descending and assigns 1-based
// ranks. The sort is stable so XP ties keep their original order.
func RankMembers(members []LeagueMember) []LeagueMember {
	ranked := make([]LeagueMember, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeeklyXP > ranked[j].WeeklyXP
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// ─── Boundary Status ────────────────────────────────────────────────────────

// BoundaryMode says which edge of the league the user is chasing.
type BoundaryMode string

const (
	BoundaryPromotionChase BoundaryMode = "promotion_chase"
	BoundaryDemotionRisk   BoundaryMode = "demotion_risk"
)

// LeagueBoundaryStatus is the XP gap to the nearest meaningful boundary.
// A nil status means the user is already inside the promotion zone.
type LeagueBoundaryStatus struct {
	Mode  BoundaryMode `json:"mode"`
	XPGap int          `json:"xp_gap"`
}

// ComputeBoundaryStatus returns the gap the user must close. Ties are never
// enough — the gap always demands strictly more XP than the boundary member.
func ComputeBoundaryStatus(league LeagueInfo, userID string) *LeagueBoundaryStatus {
	var me *LeagueMember
	byRank := make(map[int]LeagueMember, len(league.Members))
	for _, m := range league.Members {
		byRank[m.Rank] = m
		if m.UserID == userID {
			self := m
			me = &self
		}
	}
	if me == nil {
		return nil
	}
	if me.Rank <= league.PromotionZone {
		return nil
	}

	if me.Rank >= league.DemotionZone {
		// Safe member just above the demotion zone.
		safe, ok := byRank[league.DemotionZone-1]
		if !ok {
			return nil
		}
		return &LeagueBoundaryStatus{
			Mode:  BoundaryDemotionRisk,
			XPGap: safe.WeeklyXP - me.WeeklyXP + 1,
		}
	}

	boundary, ok := byRank[league.PromotionZone]
	if !ok {
		return nil
	}
	return &LeagueBoundaryStatus{
		Mode:  BoundaryPromotionChase,
		XPGap: boundary.WeeklyXP - me.WeeklyXP + 1,
	}
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// PromotionReward is the gems+badge pair for arriving at a tier.
type PromotionReward struct {
	Gems  int    `json:"gems"`
	Badge string `json:"badge"`
}

// LeagueRewardPolicy is the reward table applied at week settlement.
type LeagueRewardPolicy struct {
	Participation   int                     `json:"participation"`
	FirstPlaceGems  int                     `json:"first_place_gems"`
	FirstPlaceBadge string                  `json:"first_place_badge"`
	Promotion       map[int]PromotionReward `json:"promotion"`
}

// DefaultLeagueRewardPolicy returns the standard reward table.
func DefaultLeagueRewardPolicy() LeagueRewardPolicy {
	return LeagueRewardPolicy{
		Participation:   10,
		FirstPlaceGems:  50,
		FirstPlaceBadge: "league_first_place",
		Promotion: map[int]PromotionReward{
			1: {Gems: 25, Badge: "league_silver"},
			2: {Gems: 50, Badge: "league_gold"},
			3: {Gems: 75, Badge: "league_platinum"},
			4: {Gems: 100, Badge: "league_diamond"},
			5: {Gems: 150, Badge: "league_master"},
		},
	}
}

// MemberOutcome is one member's settled week.
type MemberOutcome struct {
	UserID     string   `json:"user_id"`
	FinalRank  int      `json:"final_rank"`
	Gems       int      `json:"gems"`
	Badges     []string `json:"badges"`
	Promoted   bool     `json:"promoted"`
	Demoted    bool     `json:"demoted"`
	FirstPlace bool     `json:"first_place"`
}

// SettleOutcomes computes every member's end-of-week result for one league.
// Promotion is capped at the top tier and demotion floored at the bottom.
func SettleOutcomes(members []LeagueMember, tier int, policy LeagueRewardPolicy) []MemberOutcome {
	ranked := RankMembers(members)
	n := len(ranked)
	promoCount := PromotionZoneSize(n)
	demoStart := DemotionZoneStart(n)

	outcomes := make([]MemberOutcome, 0, n)
	for _, m := range ranked {
		promoted := m.Rank <= promoCount && tier < MaxTier
		demoted := m.Rank >= demoStart && tier > MinTier
		first := m.Rank == 1

		gems := policy.Participation
		var badges []string
		if promoted {
			if reward, ok := policy.Promotion[tier+1]; ok {
				gems += reward.Gems
				badges = append(badges, reward.Badge)
			}
		}
		if first {
			gems += policy.FirstPlaceGems
			badges = append(badges, policy.FirstPlaceBadge)
		}

		outcomes = append(outcomes, MemberOutcome{
			UserID:     m.UserID,
			FinalRank:  m.Rank,
			Gems:       gems,
			Badges:     badges,
			Promoted:   promoted,
			Demoted:    demoted,
			FirstPlace: first,
		})
	}
	return outcomes
}
