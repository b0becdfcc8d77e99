package domain

import (
	"testing"
	"time"
)

// ─── Cycle Identity ─────────────────────────────────────────────────────────

func TestCycleKeysAt(t *testing.T) {
	// Wednesday mid-month.
	at := time.Date(2026, 3, 11, 23, 30, 0, 0, time.UTC)
	keys := CycleKeysAt(at)
	if keys.Daily != "2026-03-11" {
		t.Errorf("daily = %q", keys.Daily)
	}
	if keys.Weekly != "2026-03-09" {
		t.Errorf("weekly = %q, want the Monday", keys.Weekly)
	}
	if keys.Monthly != "2026-03" {
		t.Errorf("monthly = %q", keys.Monthly)
	}
}

func TestWeekStartKey_SundayBelongsToPriorMonday(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	if got := WeekStartKey(sunday); got != "2026-03-09" {
		t.Errorf("sunday week start = %q", got)
	}

	monday := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if got := WeekStartKey(monday); got != "2026-03-16" {
		t.Errorf("monday week start = %q", got)
	}
}

func TestWeekStartKey_YearBoundary(t *testing.T) {
	// Thursday 2026-01-01 belongs to the week of Monday 2025-12-29.
	newYear := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := WeekStartKey(newYear); got != "2025-12-29" {
		t.Errorf("new year week start = %q", got)
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2026-03-10", "2026-03-10", 0},
		{"2026-03-10", "2026-03-11", 1},
		{"2026-02-28", "2026-03-01", 1},
		{"2025-12-31", "2026-01-01", 1},
		{"2026-03-11", "2026-03-10", -1},
		{"garbage", "2026-03-10", 0},
		{"2026-03-10", "", 0},
	}
	for _, tt := range tests {
		if got := DaysBetween(tt.from, tt.to); got != tt.want {
			t.Errorf("DaysBetween(%q, %q) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestISOWeekID(t *testing.T) {
	// 2026-01-01 is a Thursday, so it falls in ISO week 1 of 2026.
	if got := ISOWeekID(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2026-W01" {
		t.Errorf("id = %q", got)
	}
	// 2023-01-01 is a Sunday belonging to 2022's last ISO week.
	if got := ISOWeekID(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2022-W52" {
		t.Errorf("id = %q", got)
	}
}

// ─── Ticket Expiry ──────────────────────────────────────────────────────────

func TestTicketExpired(t *testing.T) {
	activated := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		ticket XpBoostTicket
		now    time.Time
		want   bool
	}{
		{
			name:   "future valid date",
			ticket: XpBoostTicket{ValidDate: "2026-03-12", DurationMinutes: 15, MaxBonusXP: 120},
			now:    activated,
			want:   false,
		},
		{
			name:   "valid today, never activated",
			ticket: XpBoostTicket{ValidDate: "2026-03-11", DurationMinutes: 15, MaxBonusXP: 120},
			now:    time.Date(2026, 3, 11, 23, 59, 0, 0, time.UTC),
			want:   false,
		},
		{
			name:   "valid date passed",
			ticket: XpBoostTicket{ValidDate: "2026-03-10", DurationMinutes: 15, MaxBonusXP: 120},
			now:    activated,
			want:   true,
		},
		{
			name: "inside activation window",
			ticket: XpBoostTicket{
				ValidDate: "2026-03-11", DurationMinutes: 15, MaxBonusXP: 120,
				ActivatedAt: &activated,
			},
			now:  activated.Add(14 * time.Minute),
			want: false,
		},
		{
			name: "window elapsed",
			ticket: XpBoostTicket{
				ValidDate: "2026-03-11", DurationMinutes: 15, MaxBonusXP: 120,
				ActivatedAt: &activated,
			},
			now:  activated.Add(15 * time.Minute),
			want: true,
		},
		{
			name: "cap consumed",
			ticket: XpBoostTicket{
				ValidDate: "2026-03-11", DurationMinutes: 15, MaxBonusXP: 120,
				ActivatedAt: &activated, ConsumedBonusXP: 120,
			},
			now:  activated.Add(time.Minute),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ticket.Expired(tt.now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ─── League Zones & Ranking ─────────────────────────────────────────────────

func TestZoneSizes(t *testing.T) {
	tests := []struct {
		n, promo, demoStart int
	}{
		{30, 6, 25},
		{10, 2, 9},
		{5, 1, 5},
		{3, 1, 4},
		{1, 1, 2},
	}
	for _, tt := range tests {
		if got := PromotionZoneSize(tt.n); got != tt.promo {
			t.Errorf("PromotionZoneSize(%d) = %d, want %d", tt.n, got, tt.promo)
		}
		if got := DemotionZoneStart(tt.n); got != tt.demoStart {
			t.Errorf("DemotionZoneStart(%d) = %d, want %d", tt.n, got, tt.demoStart)
		}
	}
}

func TestRankMembers_StableOnTies(t *testing.T) {
	members := []LeagueMember{
		{UserID: "a", WeeklyXP: 50},
		{UserID: "b", WeeklyXP: 80},
		{UserID: "c", WeeklyXP: 50},
	}
	ranked := RankMembers(members)
	if ranked[0].UserID != "b" || ranked[0].Rank != 1 {
		t.Errorf("rank 1 = %+v", ranked[0])
	}
	// Tie keeps insertion order: a before c.
	if ranked[1].UserID != "a" || ranked[2].UserID != "c" {
		t.Errorf("tie order = %s, %s", ranked[1].UserID, ranked[2].UserID)
	}
	// Input untouched.
	if members[0].Rank != 0 {
		t.Error("RankMembers mutated its input")
	}
}

func TestSettleOutcomes_SingleMemberLeague(t *testing.T) {
	outcomes := SettleOutcomes([]LeagueMember{{UserID: "solo", WeeklyXP: 10}}, 0, DefaultLeagueRewardPolicy())
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	o := outcomes[0]
	// Rank 1 of 1: promotes and takes first place, cannot demote at Bronze.
	if !o.Promoted || o.Demoted || !o.FirstPlace {
		t.Errorf("solo outcome = %+v", o)
	}
	// Participation 10 + Silver promotion 25 + first place 50.
	if o.Gems != 85 {
		t.Errorf("solo gems = %d, want 85", o.Gems)
	}
}

func TestComputeBoundaryStatus_UnknownUser(t *testing.T) {
	info := LeagueInfo{
		Members:       RankMembers([]LeagueMember{{UserID: "a", WeeklyXP: 10}}),
		PromotionZone: 1,
		DemotionZone:  2,
	}
	if got := ComputeBoundaryStatus(info, "stranger"); got != nil {
		t.Errorf("boundary for non-member = %+v", got)
	}
}

// ═══ Level Ladder ═══════════════════════════════════════════════════════════

func TestXPForLevel_Curve(t *testing.T) {
	if XPForLevel(1) != 0 {
		t.Errorf("level 1 cost = %d", XPForLevel(1))
	}
	if XPForLevel(2) != 120 {
		t.Errorf("level 2 cost = %d, want 120", XPForLevel(2))
	}
	// The curve is strictly increasing.
	for level := 2; level < MaxLevel; level++ {
		if XPForLevel(level+1) <= XPForLevel(level) {
			t.Fatalf("curve not increasing at level %d", level)
		}
	}
}

func TestLevelForXP(t *testing.T) {
	cases := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{119, 1},
		{120, 2},
		{XPForLevel(10), 10},
		{XPForLevel(10) - 1, 9},
		{1 << 62, MaxLevel},
	}
	for _, tc := range cases {
		if got := LevelForXP(tc.xp); got != tc.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestLevelStatusFor(t *testing.T) {
	status := LevelStatusFor(0)
	if status.Level != 1 || status.XPToNext != 120 || status.ProgressPct != 0 {
		t.Errorf("fresh status = %+v", status)
	}

	status = LevelStatusFor(XPForLevel(5))
	if status.Level != 5 || status.ProgressPct != 0 {
		t.Errorf("exact level boundary = %+v", status)
	}

	status = LevelStatusFor(1 << 62)
	if status.Level != MaxLevel || status.ProgressPct != 100 || status.XPToNext != 0 {
		t.Errorf("max level = %+v", status)
	}
}
