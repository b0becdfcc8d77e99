package domain

// ─── Streak Types ───────────────────────────────────────────────────────────

// StudyDayRecord is one day of study history.
type StudyDayRecord struct {
	LessonsCompleted int `json:"lessons_completed"`
	XP               int `json:"xp"`
}

// StreakData is the full per-device streak state, persisted as one blob.
// Two streaks run in parallel: the study streak (lesson completions) and the
// action streak (journal actions executed).
type StreakData struct {
	StudyStreak   int                       `json:"study_streak"`
	LastStudyDate string                    `json:"last_study_date,omitempty"`
	StudyHistory  map[string]StudyDayRecord `json:"study_history"`

	ActionStreak   int    `json:"action_streak"`
	LastActionDate string `json:"last_action_date,omitempty"`

	RecoveryLastShownDate   string `json:"recovery_last_shown_date,omitempty"`
	RecoveryLastClaimedDate string `json:"recovery_last_claimed_date,omitempty"`

	GuardLastShownDate string `json:"guard_last_shown_date,omitempty"`
	GuardLastSavedDate string `json:"guard_last_saved_date,omitempty"`

	FreezesRemaining int    `json:"freezes_remaining"`
	FreezeWeekStart  string `json:"freeze_week_start,omitempty"`

	TotalXP int    `json:"total_xp"`
	TodayXP int    `json:"today_xp"`
	XPDate  string `json:"xp_date,omitempty"`
}

// StudyRiskType classifies today's streak exposure.
type StudyRiskType string

const (
	RiskSafeToday StudyRiskType = "safe_today"
	RiskAtRisk    StudyRiskType = "at_risk"
	RiskInactive  StudyRiskType = "inactive"
)

// StudyRiskStatus is the streak exposure snapshot for one instant.
type StudyRiskStatus struct {
	RiskType       StudyRiskType `json:"risk_type"`
	TodayStudied   bool          `json:"today_studied"`
	StudyStreak    int           `json:"study_streak"`
	LastStudyDate  string        `json:"last_study_date,omitempty"`
	DaysSinceStudy int           `json:"days_since_study"`
}

// StreakUpdate is the outcome of feeding one qualifying event into a streak.
type StreakUpdate struct {
	Streak          int  `json:"streak"`
	Extended        bool `json:"extended"`
	AlreadyCounted  bool `json:"already_counted"`
	FreezesConsumed int  `json:"freezes_consumed"`
	Reset           bool `json:"reset"`
	PreviousStreak  int  `json:"previous_streak"`
}

// RecoveryMissionStatus is the one-shot-per-day recovery offer state.
type RecoveryMissionStatus struct {
	Eligible     bool `json:"eligible"`
	MissedDays   int  `json:"missed_days"`
	ClaimedToday bool `json:"claimed_today"`
}

// StreakGuardStatus is the pre-emptive same-day save offer state.
type StreakGuardStatus struct {
	Eligible   bool `json:"eligible"`
	SavedToday bool `json:"saved_today"`
	Streak     int  `json:"streak"`
}
