// Package streak implements the streak state machine: the study and action
// streaks, freeze inventory, the recovery mission and the streak guard.
package streak

import (
	"encoding/json"
	"time"

	"github.com/psycle-labs/psycle/internal/domain"
)

// storeKey is the local KV key holding the streak bundle.
const storeKey = "streaks"

// historyRetentionDays bounds the study history map. Entries older than a
// year are pruned on write.
const historyRetentionDays = 366

// FreezeConfig sets the streak freeze economy.
type FreezeConfig struct {
	WeeklyRefill int
	MaxCap       int
}

// DefaultFreezeConfig returns the standard freeze economy: refill to 2 each
// week, hold at most 5.
func DefaultFreezeConfig() FreezeConfig {
	return FreezeConfig{WeeklyRefill: 2, MaxCap: 5}
}

// Service manages streak state. One KV blob, read-modify-write.
type Service struct {
	kv     domain.KVStore
	sink   domain.EventSink
	freeze FreezeConfig
}

// NewService creates a streak service.
func NewService(kv domain.KVStore, sink domain.EventSink, freeze FreezeConfig) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Service{kv: kv, sink: sink, freeze: freeze}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (s *Service) load() (domain.StreakData, error) {
	raw, err := s.kv.Get(storeKey)
	if err != nil {
		return domain.StreakData{}, err
	}
	if raw == "" {
		return freshState(), nil
	}
	var data domain.StreakData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return freshState(), nil
	}
	return sanitize(data), nil
}

func (s *Service) save(data domain.StreakData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.kv.Set(storeKey, string(raw))
}

func freshState() domain.StreakData {
	return domain.StreakData{StudyHistory: make(map[string]domain.StudyDayRecord)}
}

// sanitize clamps malformed persisted values back to defaults.
func sanitize(data domain.StreakData) domain.StreakData {
	if data.StudyHistory == nil {
		data.StudyHistory = make(map[string]domain.StudyDayRecord)
	}
	if data.StudyStreak < 0 {
		data.StudyStreak = 0
	}
	if data.ActionStreak < 0 {
		data.ActionStreak = 0
	}
	if data.FreezesRemaining < 0 {
		data.FreezesRemaining = 0
	}
	if data.TotalXP < 0 {
		data.TotalXP = 0
	}
	if data.TodayXP < 0 {
		data.TodayXP = 0
	}
	return data
}

// normalize applies the time-driven resets: the weekly freeze refill and
// the daily XP counter rollover.
func (s *Service) normalize(data domain.StreakData, now time.Time) domain.StreakData {
	weekStart := domain.WeekStartKey(now)
	if data.FreezeWeekStart != weekStart {
		// Refill never takes freezes away: purchased ones carry over.
		if data.FreezesRemaining < s.freeze.WeeklyRefill {
			data.FreezesRemaining = s.freeze.WeeklyRefill
		}
		if data.FreezesRemaining > s.freeze.MaxCap {
			data.FreezesRemaining = s.freeze.MaxCap
		}
		data.FreezeWeekStart = weekStart
	}

	today := domain.DateKey(now)
	if data.XPDate != today {
		data.TodayXP = 0
		data.XPDate = today
	}
	return data
}

// ─── Streak Advancement ─────────────────────────────────────────────────────

// advance runs the shared day-to-day streak transition. Freezes bridge
// missed days only while a streak is alive.
func advance(streak int, lastDate string, freezes int, today string) (domain.StreakUpdate, int) {
	update := domain.StreakUpdate{PreviousStreak: streak}

	switch {
	case lastDate == today:
		update.Streak = streak
		update.AlreadyCounted = true
		return update, freezes

	case lastDate == "":
		update.Streak = 1
		update.Extended = true
		return update, freezes
	}

	missed := domain.DaysBetween(lastDate, today) - 1
	if missed <= 0 {
		update.Streak = streak + 1
		update.Extended = true
		return update, freezes
	}

	if freezes >= missed && streak > 0 {
		update.Streak = streak + 1
		update.Extended = true
		update.FreezesConsumed = missed
		return update, freezes - missed
	}

	update.Streak = 1
	update.Reset = true
	return update, freezes
}

// RecordStudy counts a lesson completion: advances the study streak at most
// once per day and logs the lesson into the study history.
func (s *Service) RecordStudy(now time.Time) (domain.StreakUpdate, error) {
	data, err := s.load()
	if err != nil {
		return domain.StreakUpdate{}, err
	}
	data = s.normalize(data, now)
	today := domain.DateKey(now)

	update, freezes := advance(data.StudyStreak, data.LastStudyDate, data.FreezesRemaining, today)
	data.StudyStreak = update.Streak
	data.LastStudyDate = today
	data.FreezesRemaining = freezes

	record := data.StudyHistory[today]
	record.LessonsCompleted++
	data.StudyHistory[today] = record
	data.StudyHistory = pruneHistory(data.StudyHistory, today)

	s.emitUpdate("study", update)
	if err := s.save(data); err != nil {
		return domain.StreakUpdate{}, err
	}
	return update, nil
}

// RecordAction counts a journal action: advances the action streak at most
// once per day.
func (s *Service) RecordAction(now time.Time) (domain.StreakUpdate, error) {
	data, err := s.load()
	if err != nil {
		return domain.StreakUpdate{}, err
	}
	data = s.normalize(data, now)
	today := domain.DateKey(now)

	update, freezes := advance(data.ActionStreak, data.LastActionDate, data.FreezesRemaining, today)
	data.ActionStreak = update.Streak
	data.LastActionDate = today
	data.FreezesRemaining = freezes

	s.emitUpdate("action", update)
	if err := s.save(data); err != nil {
		return domain.StreakUpdate{}, err
	}
	return update, nil
}

func (s *Service) emitUpdate(kind string, update domain.StreakUpdate) {
	switch {
	case update.Reset:
		s.sink.Emit("streak_reset", map[string]any{"kind": kind, "previous": update.PreviousStreak})
	case update.FreezesConsumed > 0:
		s.sink.Emit("freeze_consumed", map[string]any{"kind": kind, "count": update.FreezesConsumed})
	}
}

func pruneHistory(history map[string]domain.StudyDayRecord, today string) map[string]domain.StudyDayRecord {
	for date := range history {
		if domain.DaysBetween(date, today) > historyRetentionDays {
			delete(history, date)
		}
	}
	return history
}

// ─── XP ─────────────────────────────────────────────────────────────────────

// AddXP credits earned XP to the lifetime and daily counters and the study
// history. Negative amounts are a contract violation.
func (s *Service) AddXP(amount int, now time.Time) (domain.StreakData, error) {
	if amount < 0 {
		return domain.StreakData{}, domain.ErrInvalidXPAmount
	}

	data, err := s.load()
	if err != nil {
		return domain.StreakData{}, err
	}
	data = s.normalize(data, now)

	today := domain.DateKey(now)
	data.TotalXP += amount
	data.TodayXP += amount
	record := data.StudyHistory[today]
	record.XP += amount
	data.StudyHistory[today] = record

	if err := s.save(data); err != nil {
		return domain.StreakData{}, err
	}
	return data, nil
}

// ─── Freezes ────────────────────────────────────────────────────────────────

// AddFreezes credits purchased or awarded freezes, clamped to the cap.
// Returns the new balance.
func (s *Service) AddFreezes(count int, now time.Time) (int, error) {
	data, err := s.load()
	if err != nil {
		return 0, err
	}
	data = s.normalize(data, now)

	data.FreezesRemaining += count
	if data.FreezesRemaining > s.freeze.MaxCap {
		data.FreezesRemaining = s.freeze.MaxCap
	}

	if err := s.save(data); err != nil {
		return 0, err
	}
	return data.FreezesRemaining, nil
}

// UseFreeze spends one freeze explicitly, outside the automatic gap
// bridging. Used=false with a zero balance is not an error.
func (s *Service) UseFreeze(now time.Time) (used bool, balance int, err error) {
	data, err := s.load()
	if err != nil {
		return false, 0, err
	}
	data = s.normalize(data, now)

	if data.FreezesRemaining < 1 {
		return false, 0, s.save(data)
	}
	data.FreezesRemaining--

	if err := s.save(data); err != nil {
		return false, 0, err
	}
	s.sink.Emit("freeze_consumed", map[string]any{"kind": "manual", "count": 1})
	return true, data.FreezesRemaining, nil
}

// ─── Status ─────────────────────────────────────────────────────────────────

// Status returns the normalized streak bundle at now.
func (s *Service) Status(now time.Time) (domain.StreakData, error) {
	data, err := s.load()
	if err != nil {
		return domain.StreakData{}, err
	}
	data = s.normalize(data, now)
	if err := s.save(data); err != nil {
		return domain.StreakData{}, err
	}
	return data, nil
}

// StudyRisk classifies today's streak exposure: studied already, streak on
// the line, or no live streak at all.
func (s *Service) StudyRisk(now time.Time) (domain.StudyRiskStatus, error) {
	data, err := s.load()
	if err != nil {
		return domain.StudyRiskStatus{}, err
	}

	today := domain.DateKey(now)
	status := domain.StudyRiskStatus{
		StudyStreak:   data.StudyStreak,
		LastStudyDate: data.LastStudyDate,
	}
	if data.LastStudyDate == "" {
		status.RiskType = domain.RiskInactive
		return status, nil
	}

	status.DaysSinceStudy = domain.DaysBetween(data.LastStudyDate, today)
	switch {
	case status.DaysSinceStudy == 0:
		status.RiskType = domain.RiskSafeToday
		status.TodayStudied = true
	case status.DaysSinceStudy == 1 && data.StudyStreak > 0:
		status.RiskType = domain.RiskAtRisk
	default:
		status.RiskType = domain.RiskInactive
	}
	return status, nil
}

// ─── Recovery Mission ───────────────────────────────────────────────────────

// RecoveryClaimResult is the outcome of a recovery mission claim.
type RecoveryClaimResult struct {
	Claimed bool `json:"claimed"`
	Streak  int  `json:"streak"`
}

// RecoveryMission reports whether the recovery offer applies: the action
// streak lapsed at least one full day and today's offer is unclaimed.
func (s *Service) RecoveryMission(now time.Time) (domain.RecoveryMissionStatus, error) {
	data, err := s.load()
	if err != nil {
		return domain.RecoveryMissionStatus{}, err
	}

	today := domain.DateKey(now)
	status := domain.RecoveryMissionStatus{
		ClaimedToday: data.RecoveryLastClaimedDate == today,
	}
	if data.LastActionDate == "" || status.ClaimedToday {
		return status, nil
	}

	missed := domain.DaysBetween(data.LastActionDate, today) - 1
	if missed >= 1 {
		status.Eligible = true
		status.MissedDays = missed
	}
	return status, nil
}

// ClaimRecovery restores a reset action streak after the recovery mission
// completes. The caller passes the pre-reset state it observed; the claim
// only lands when today's action already happened and the gap it bridges
// was real.
func (s *Service) ClaimRecovery(prevLastActionDate string, prevStreak int, now time.Time) (RecoveryClaimResult, error) {
	data, err := s.load()
	if err != nil {
		return RecoveryClaimResult{}, err
	}
	data = s.normalize(data, now)
	today := domain.DateKey(now)

	result := RecoveryClaimResult{Streak: data.ActionStreak}
	if data.RecoveryLastClaimedDate == today {
		return result, nil
	}
	if prevLastActionDate == "" || data.LastActionDate != today {
		return result, nil
	}
	if domain.DaysBetween(prevLastActionDate, today)-1 < 1 {
		return result, nil
	}

	data.ActionStreak = prevStreak + 1
	data.RecoveryLastClaimedDate = today
	result.Claimed = true
	result.Streak = data.ActionStreak
	s.sink.Emit("recovery_claimed", map[string]any{"streak": data.ActionStreak})

	if err := s.save(data); err != nil {
		return RecoveryClaimResult{}, err
	}
	return result, nil
}

// MarkRecoveryShown records that today's recovery offer was surfaced.
func (s *Service) MarkRecoveryShown(now time.Time) error {
	data, err := s.load()
	if err != nil {
		return err
	}
	data.RecoveryLastShownDate = domain.DateKey(now)
	return s.save(data)
}

// ─── Streak Guard ───────────────────────────────────────────────────────────

// GuardSaveResult is the outcome of a streak guard save.
type GuardSaveResult struct {
	Saved            bool `json:"saved"`
	FreezesRemaining int  `json:"freezes_remaining"`
}

// StreakGuard reports whether the same-day save offer applies: the study
// streak is worth protecting (two days or more) and dies tonight without a
// study session.
func (s *Service) StreakGuard(now time.Time) (domain.StreakGuardStatus, error) {
	data, err := s.load()
	if err != nil {
		return domain.StreakGuardStatus{}, err
	}

	today := domain.DateKey(now)
	status := domain.StreakGuardStatus{
		Streak:     data.StudyStreak,
		SavedToday: data.GuardLastSavedDate == today,
	}
	if data.LastStudyDate == "" || status.SavedToday {
		return status, nil
	}
	if domain.DaysBetween(data.LastStudyDate, today) == 1 && data.StudyStreak >= 2 {
		status.Eligible = true
	}
	return status, nil
}

// SaveGuard spends one freeze to stamp today as studied without a session,
// keeping the streak alive. At most one save per day.
func (s *Service) SaveGuard(now time.Time) (GuardSaveResult, error) {
	data, err := s.load()
	if err != nil {
		return GuardSaveResult{}, err
	}
	data = s.normalize(data, now)
	today := domain.DateKey(now)

	result := GuardSaveResult{FreezesRemaining: data.FreezesRemaining}
	if data.GuardLastSavedDate == today {
		return result, nil
	}
	if data.LastStudyDate == "" || domain.DaysBetween(data.LastStudyDate, today) != 1 {
		return result, nil
	}
	if data.StudyStreak < 2 || data.FreezesRemaining < 1 {
		return result, nil
	}

	data.FreezesRemaining--
	data.LastStudyDate = today
	data.GuardLastSavedDate = today
	result.Saved = true
	result.FreezesRemaining = data.FreezesRemaining
	s.sink.Emit("guard_saved", map[string]any{"streak": data.StudyStreak})

	if err := s.save(data); err != nil {
		return GuardSaveResult{}, err
	}
	return result, nil
}

// MarkGuardShown records that today's guard offer was surfaced.
func (s *Service) MarkGuardShown(now time.Time) error {
	data, err := s.load()
	if err != nil {
		return err
	}
	data.GuardLastShownDate = domain.DateKey(now)
	return s.save(data)
}
