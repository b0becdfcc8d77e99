package streak_test

import (
	"errors"
	"testing"
	"time"

	"github.com/psycle-labs/psycle/internal/app/streak"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/psycle-labs/psycle/internal/infra/sqlite"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testService(t *testing.T) *streak.Service {
	t.Helper()
	return streak.NewService(testDB(t), nil, streak.DefaultFreezeConfig())
}

// day returns noon UTC n days after Monday 2026-03-09.
func day(n int) time.Time {
	return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// ═══════════════════════════════════════════════════════════════════════════
// Study Streak
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordStudy_FirstDay(t *testing.T) {
	svc := testService(t)

	update, err := svc.RecordStudy(day(0))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if update.Streak != 1 || !update.Extended {
		t.Errorf("first study = %+v", update)
	}
}

func TestRecordStudy_SameDayCountsOnce(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	update, _ := svc.RecordStudy(day(0).Add(2 * time.Hour))
	if !update.AlreadyCounted || update.Streak != 1 {
		t.Errorf("same-day study = %+v", update)
	}

	// Both lessons still land in the history.
	data, _ := svc.Status(day(0))
	if got := data.StudyHistory["2026-03-09"].LessonsCompleted; got != 2 {
		t.Errorf("history lessons = %d, want 2", got)
	}
}

func TestRecordStudy_ConsecutiveDaysExtend(t *testing.T) {
	svc := testService(t)

	for n := 0; n < 4; n++ {
		update, err := svc.RecordStudy(day(n))
		if err != nil {
			t.Fatalf("day %d: %v", n, err)
		}
		if update.Streak != n+1 || !update.Extended {
			t.Errorf("day %d = %+v", n, update)
		}
	}
}

func TestRecordStudy_FreezeBridgesGap(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	svc.RecordStudy(day(1))

	// Skip day 2; the weekly refill left 2 freezes, one covers the gap.
	update, _ := svc.RecordStudy(day(3))
	if update.Streak != 3 || !update.Extended || update.FreezesConsumed != 1 {
		t.Errorf("bridged = %+v", update)
	}

	data, _ := svc.Status(day(3))
	if data.FreezesRemaining != 1 {
		t.Errorf("freezes = %d, want 1", data.FreezesRemaining)
	}
}

func TestRecordStudy_TooManyMissedDaysResets(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	svc.RecordStudy(day(1))

	// Three missed days with only 2 freezes: reset.
	update, _ := svc.RecordStudy(day(5))
	if !update.Reset || update.Streak != 1 || update.PreviousStreak != 2 {
		t.Errorf("reset = %+v", update)
	}
	if update.FreezesConsumed != 0 {
		t.Errorf("freezes consumed on reset = %d", update.FreezesConsumed)
	}
}

func TestRecordStudy_NoFreezeSpendOnDeadStreak(t *testing.T) {
	db := testDB(t)
	db.Set("streaks", `{"study_streak":0,"last_study_date":"2026-03-07","freezes_remaining":2,"freeze_week_start":"2026-03-09"}`)
	svc := streak.NewService(db, nil, streak.DefaultFreezeConfig())

	update, _ := svc.RecordStudy(day(0))
	if !update.Reset || update.Streak != 1 || update.FreezesConsumed != 0 {
		t.Errorf("dead streak restart = %+v", update)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Action Streak
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordAction_IndependentOfStudy(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	update, _ := svc.RecordAction(day(0))
	if update.Streak != 1 {
		t.Errorf("action streak = %+v", update)
	}

	svc.RecordAction(day(1))
	data, _ := svc.Status(day(1))
	if data.ActionStreak != 2 || data.StudyStreak != 1 {
		t.Errorf("streaks = study %d action %d", data.StudyStreak, data.ActionStreak)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Freezes
// ═══════════════════════════════════════════════════════════════════════════

func TestFreezes_WeeklyRefillKeepsSurplus(t *testing.T) {
	db := testDB(t)
	// Last week ended with 4 freezes (purchases) and week start stamped.
	db.Set("streaks", `{"freezes_remaining":4,"freeze_week_start":"2026-03-02"}`)
	svc := streak.NewService(db, nil, streak.DefaultFreezeConfig())

	data, err := svc.Status(day(0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if data.FreezesRemaining != 4 {
		t.Errorf("freezes after refill = %d, want surplus kept at 4", data.FreezesRemaining)
	}
	if data.FreezeWeekStart != "2026-03-09" {
		t.Errorf("week start = %q", data.FreezeWeekStart)
	}
}

func TestFreezes_WeeklyRefillTopsUp(t *testing.T) {
	db := testDB(t)
	db.Set("streaks", `{"freezes_remaining":0,"freeze_week_start":"2026-03-02"}`)
	svc := streak.NewService(db, nil, streak.DefaultFreezeConfig())

	data, _ := svc.Status(day(0))
	if data.FreezesRemaining != 2 {
		t.Errorf("freezes after refill = %d, want 2", data.FreezesRemaining)
	}
}

func TestAddFreezes_ClampsToCap(t *testing.T) {
	svc := testService(t)

	balance, err := svc.AddFreezes(10, day(0))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if balance != 5 {
		t.Errorf("balance = %d, want capped at 5", balance)
	}
}

func TestUseFreeze_SpendsUntilEmpty(t *testing.T) {
	svc := testService(t)

	// Weekly refill seeds 2 freezes.
	for want := 1; want >= 0; want-- {
		used, balance, err := svc.UseFreeze(day(0))
		if err != nil {
			t.Fatalf("use: %v", err)
		}
		if !used || balance != want {
			t.Errorf("use = %v balance %d, want true %d", used, balance, want)
		}
	}

	used, balance, err := svc.UseFreeze(day(0))
	if err != nil {
		t.Fatalf("use on empty: %v", err)
	}
	if used || balance != 0 {
		t.Errorf("use on empty = %v balance %d", used, balance)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Counters
// ═══════════════════════════════════════════════════════════════════════════

func TestAddXP_Accumulates(t *testing.T) {
	svc := testService(t)

	svc.AddXP(30, day(0))
	data, err := svc.AddXP(20, day(0))
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if data.TotalXP != 50 || data.TodayXP != 50 {
		t.Errorf("xp = total %d today %d", data.TotalXP, data.TodayXP)
	}
	if data.StudyHistory["2026-03-09"].XP != 50 {
		t.Errorf("history xp = %d", data.StudyHistory["2026-03-09"].XP)
	}
}

func TestAddXP_TodayResetsAtMidnight(t *testing.T) {
	svc := testService(t)

	svc.AddXP(30, day(0))
	data, _ := svc.AddXP(20, day(1))
	if data.TotalXP != 50 {
		t.Errorf("total = %d, want 50", data.TotalXP)
	}
	if data.TodayXP != 20 {
		t.Errorf("today = %d, want 20", data.TodayXP)
	}
}

func TestAddXP_NegativeRejected(t *testing.T) {
	svc := testService(t)

	if _, err := svc.AddXP(-1, day(0)); !errors.Is(err, domain.ErrInvalidXPAmount) {
		t.Errorf("error = %v, want ErrInvalidXPAmount", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Study Risk
// ═══════════════════════════════════════════════════════════════════════════

func TestStudyRisk_States(t *testing.T) {
	svc := testService(t)

	risk, _ := svc.StudyRisk(day(0))
	if risk.RiskType != domain.RiskInactive {
		t.Errorf("no history risk = %q", risk.RiskType)
	}

	svc.RecordStudy(day(0))
	risk, _ = svc.StudyRisk(day(0))
	if risk.RiskType != domain.RiskSafeToday || !risk.TodayStudied {
		t.Errorf("same-day risk = %+v", risk)
	}

	risk, _ = svc.StudyRisk(day(1))
	if risk.RiskType != domain.RiskAtRisk || risk.DaysSinceStudy != 1 {
		t.Errorf("next-day risk = %+v", risk)
	}

	risk, _ = svc.StudyRisk(day(3))
	if risk.RiskType != domain.RiskInactive {
		t.Errorf("lapsed risk = %+v", risk)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Recovery Mission
// ═══════════════════════════════════════════════════════════════════════════

func TestRecoveryMission_EligibleAfterGap(t *testing.T) {
	svc := testService(t)

	svc.RecordAction(day(0))

	status, _ := svc.RecoveryMission(day(1))
	if status.Eligible {
		t.Errorf("one-day-later offer = %+v, want ineligible (no missed day)", status)
	}

	status, _ = svc.RecoveryMission(day(3))
	if !status.Eligible || status.MissedDays != 2 {
		t.Errorf("lapsed offer = %+v", status)
	}
}

func TestClaimRecovery_RestoresStreak(t *testing.T) {
	svc := testService(t)

	svc.RecordAction(day(0))
	svc.RecordAction(day(1))

	// Three missed days exceed the freeze balance: the streak resets.
	update, _ := svc.RecordAction(day(5))
	if !update.Reset || update.PreviousStreak != 2 {
		t.Fatalf("reset = %+v", update)
	}

	result, err := svc.ClaimRecovery("2026-03-10", update.PreviousStreak, day(5))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !result.Claimed || result.Streak != 3 {
		t.Errorf("claim = %+v", result)
	}

	// Second claim the same day does nothing.
	result, _ = svc.ClaimRecovery("2026-03-10", update.PreviousStreak, day(5))
	if result.Claimed {
		t.Errorf("second claim = %+v", result)
	}
}

func TestClaimRecovery_RequiresTodayAction(t *testing.T) {
	svc := testService(t)

	svc.RecordAction(day(0))

	// No action today: the claim must not land.
	result, _ := svc.ClaimRecovery("2026-03-09", 1, day(3))
	if result.Claimed {
		t.Errorf("claim without today's action = %+v", result)
	}
}

func TestClaimRecovery_RejectsFakeGap(t *testing.T) {
	svc := testService(t)

	svc.RecordAction(day(0))
	svc.RecordAction(day(1))

	// Consecutive days, no real gap to recover.
	result, _ := svc.ClaimRecovery("2026-03-09", 1, day(1))
	if result.Claimed {
		t.Errorf("claim without gap = %+v", result)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Guard
// ═══════════════════════════════════════════════════════════════════════════

func TestStreakGuard_EligibleOnlyDayAfter(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	svc.RecordStudy(day(1))

	status, _ := svc.StreakGuard(day(1))
	if status.Eligible {
		t.Errorf("same-day guard = %+v", status)
	}

	status, _ = svc.StreakGuard(day(2))
	if !status.Eligible || status.Streak != 2 {
		t.Errorf("next-day guard = %+v", status)
	}

	status, _ = svc.StreakGuard(day(3))
	if status.Eligible {
		t.Errorf("two-days-later guard = %+v", status)
	}
}

func TestStreakGuard_RequiresStreakOfTwo(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))

	status, _ := svc.StreakGuard(day(1))
	if status.Eligible {
		t.Errorf("single-day streak guard = %+v", status)
	}
}

func TestSaveGuard_SpendsFreezeAndStampsToday(t *testing.T) {
	svc := testService(t)

	svc.RecordStudy(day(0))
	svc.RecordStudy(day(1))

	result, err := svc.SaveGuard(day(2))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !result.Saved || result.FreezesRemaining != 1 {
		t.Errorf("save = %+v", result)
	}

	// The streak survives: next-day study extends to 3.
	update, _ := svc.RecordStudy(day(3))
	if update.Streak != 3 || !update.Extended || update.FreezesConsumed != 0 {
		t.Errorf("post-guard study = %+v", update)
	}

	// One save per day.
	result, _ = svc.SaveGuard(day(2))
	if result.Saved {
		t.Errorf("second save = %+v", result)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Store Resilience
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_MalformedPayloadResets(t *testing.T) {
	db := testDB(t)
	db.Set("streaks", `не json`)
	svc := streak.NewService(db, nil, streak.DefaultFreezeConfig())

	data, err := svc.Status(day(0))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if data.StudyStreak != 0 || data.FreezesRemaining != 2 {
		t.Errorf("reset state = %+v", data)
	}
}

func TestStore_NegativeCountersClamped(t *testing.T) {
	db := testDB(t)
	db.Set("streaks", `{"study_streak":-3,"total_xp":-100,"freezes_remaining":-1,"freeze_week_start":"2026-03-09"}`)
	svc := streak.NewService(db, nil, streak.DefaultFreezeConfig())

	data, _ := svc.Status(day(0))
	if data.StudyStreak != 0 || data.TotalXP != 0 {
		t.Errorf("clamped state = %+v", data)
	}
}
