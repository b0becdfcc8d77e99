package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/psycle-labs/psycle/internal/api"
	"github.com/psycle-labs/psycle/internal/app/experiment"
	"github.com/psycle-labs/psycle/internal/app/league"
	"github.com/psycle-labs/psycle/internal/app/quest"
	"github.com/psycle-labs/psycle/internal/app/streak"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/psycle-labs/psycle/internal/infra/scheduler"
	"github.com/psycle-labs/psycle/internal/infra/sqlite"
)

// testServer wires a full API server over a temp database with a frozen
// clock.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.SetWeeks("2026-W11", "2026-W10"); err != nil {
		t.Fatalf("seed weeks: %v", err)
	}

	defs := []domain.ExperimentDefinition{{
		ID: "quest_board_layout", Enabled: true, RolloutPercentage: 100,
		Variants: []domain.ExperimentVariant{{ID: "control", Weight: 1}},
	}}

	srv := api.NewServer("alice",
		quest.NewService(db, nil, quest.DefaultBoostConfig()),
		streak.NewService(db, nil, streak.DefaultFreezeConfig()),
		league.NewService(db, nil, league.DefaultMatchConfig()),
		experiment.NewService(db, nil, defs),
	)
	srv.SetClock(func() time.Time {
		return time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	ts := testServer(t)

	var body map[string]string
	resp := getJSON(t, ts, "/health", &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("health = %d %v", resp.StatusCode, body)
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestRecordEvent_FansOut(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/events", map[string]any{
		"type": "lesson_complete",
		"xp":   30,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Streak  *domain.StreakUpdate `json:"streak"`
		TotalXP int                  `json:"total_xp"`
	}
	decode(t, resp, &body)
	if body.Streak == nil || body.Streak.Streak != 1 {
		t.Errorf("streak = %+v", body.Streak)
	}
	if body.TotalXP != 30 {
		t.Errorf("total xp = %d", body.TotalXP)
	}

	// The XP landed in this week's league too.
	var info domain.LeagueInfo
	getJSON(t, ts, "/api/league", &info)
	if info.MyRank != 1 || info.Members[0].WeeklyXP != 30 {
		t.Errorf("league after event = %+v", info)
	}
}

func TestRecordEvent_UnknownType(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/events", map[string]any{"type": "level_up"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// downedRanking delegates to a real store but has lost its week authority,
// rejects membership lookups while down, and records the week id each
// membership lookup resolved against.
type downedRanking struct {
	domain.RankingStore
	down  bool
	weeks []string
}

func (d *downedRanking) CurrentWeekID() (string, error) {
	return "", errors.New("ranking authority unreachable")
}

func (d *downedRanking) MembershipFor(userID, weekID string) (*domain.MemberRecord, error) {
	if d.down {
		return nil, errors.New("ranking authority unreachable")
	}
	d.weeks = append(d.weeks, weekID)
	return d.RankingStore.MembershipFor(userID, weekID)
}

func TestRecordEvent_RetryResolvesWeekAtRunTime(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ranking := &downedRanking{RankingStore: db, down: true}

	srv := api.NewServer("alice",
		quest.NewService(db, nil, quest.DefaultBoostConfig()),
		streak.NewService(db, nil, streak.DefaultFreezeConfig()),
		league.NewService(ranking, nil, league.DefaultMatchConfig()),
		experiment.NewService(db, nil, nil),
	)
	clock := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	srv.SetClock(func() time.Time { return clock })
	rq := scheduler.NewRetryQueue(scheduler.RetryConfig{
		MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second,
	})
	srv.SetRetryQueue(rq)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp := postJSON(t, ts, "/api/events", map[string]any{"type": "lesson_complete", "xp": 30})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if rq.Len() != 1 {
		t.Fatalf("pending retries = %d, want 1", rq.Len())
	}

	// The authority comes back two weeks later. The deferred write must
	// land in the week current at retry time, not the enqueue-time week.
	ranking.down = false
	clock = time.Date(2026, 3, 25, 12, 0, 0, 0, time.UTC)
	rq.Drain(time.Now().Add(time.Minute))

	if rq.Len() != 0 {
		t.Fatalf("pending retries = %d, want 0", rq.Len())
	}
	if len(ranking.weeks) == 0 {
		t.Fatal("ranking write never retried")
	}
	for _, week := range ranking.weeks {
		if week != "2026-W13" {
			t.Errorf("retry resolved week %s, want 2026-W13", week)
		}
	}
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func TestQuestBoardAndClaim(t *testing.T) {
	ts := testServer(t)

	postJSON(t, ts, "/api/events", map[string]any{"type": "lesson_complete", "xp": 10})

	var board domain.QuestBoard
	getJSON(t, ts, "/api/quests/board", &board)
	if len(board.Daily) != 3 || board.Daily[0].Progress != 1 {
		t.Fatalf("board daily = %+v", board.Daily)
	}

	resp := postJSON(t, ts, "/api/quests/daily_lesson_1/claim", nil)
	var claim quest.ClaimResult
	decode(t, resp, &claim)
	if !claim.Claimed || claim.Gems != 5 {
		t.Errorf("claim = %+v", claim)
	}
}

func TestClaimQuest_UnknownIs404(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/quests/nope/claim", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClaimBundle_UnknownPeriodIs404(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/quests/bundles/hourly/claim", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func TestStreakEndpoints(t *testing.T) {
	ts := testServer(t)

	postJSON(t, ts, "/api/events", map[string]any{"type": "lesson_complete"})

	var data domain.StreakData
	getJSON(t, ts, "/api/streak/", &data)
	if data.StudyStreak != 1 {
		t.Errorf("streak = %+v", data)
	}

	var risk domain.StudyRiskStatus
	getJSON(t, ts, "/api/streak/risk", &risk)
	if risk.RiskType != domain.RiskSafeToday {
		t.Errorf("risk = %+v", risk)
	}

	resp := postJSON(t, ts, "/api/streak/freezes", map[string]int{"count": 1})
	var freezes map[string]int
	decode(t, resp, &freezes)
	if freezes["freezes_remaining"] != 3 {
		t.Errorf("freezes = %v", freezes)
	}
}

func TestAddFreezes_RejectsNonPositive(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/streak/freezes", map[string]int{"count": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// ─── Leagues ────────────────────────────────────────────────────────────────

func TestLeague_NotJoinedIs404(t *testing.T) {
	ts := testServer(t)

	resp := getJSON(t, ts, "/api/league", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestLeague_JoinThenFetch(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/league/join", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}

	var info domain.LeagueInfo
	getJSON(t, ts, "/api/league", &info)
	if info.TierName != "Bronze" || info.MyRank != 1 {
		t.Errorf("league = %+v", info)
	}
}

func TestLeague_SettleEndpoint(t *testing.T) {
	ts := testServer(t)

	resp := postJSON(t, ts, "/api/league/settle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle status = %d", resp.StatusCode)
	}
	var summary league.SettlementSummary
	decode(t, resp, &summary)
	if summary.WeekID != "2026-W10" {
		t.Errorf("summary = %+v", summary)
	}
}

// ─── Experiments ────────────────────────────────────────────────────────────

func TestExperimentAssignment(t *testing.T) {
	ts := testServer(t)

	var assignment domain.ExperimentAssignment
	getJSON(t, ts, "/api/experiments/quest_board_layout", &assignment)
	if !assignment.Assigned || assignment.VariantID != "control" {
		t.Errorf("assignment = %+v", assignment)
	}

	var unknown domain.ExperimentAssignment
	getJSON(t, ts, "/api/experiments/missing", &unknown)
	if unknown.Assigned {
		t.Errorf("unknown experiment assigned = %+v", unknown)
	}
}
