package domain

import "time"

// ─── Quest Catalog ──────────────────────────────────────────────────────────

// QuestPeriod is the accounting period a quest resets on.
type QuestPeriod string

const (
	PeriodDaily   QuestPeriod = "daily"
	PeriodWeekly  QuestPeriod = "weekly"
	PeriodMonthly QuestPeriod = "monthly"
)

// QuestMetric is the gameplay statistic a quest counts.
type QuestMetric string

const (
	MetricLessonComplete QuestMetric = "lesson_complete"
	MetricStudyDay       QuestMetric = "study_day"
	MetricJournalSubmit  QuestMetric = "journal_submit"
)

// QuestEventType is an inbound gameplay event consumed by the engine.
type QuestEventType string

const (
	EventLessonComplete   QuestEventType = "lesson_complete"
	EventJournalSubmit    QuestEventType = "journal_submit"
	EventQuestionAnswered QuestEventType = "question_answered"
)

// QuestEvent is a single gameplay event.
type QuestEvent struct {
	Type      QuestEventType `json:"type"`
	LessonID  string         `json:"lesson_id,omitempty"`
	GenreID   string         `json:"genre_id,omitempty"`
	IsCorrect bool           `json:"is_correct,omitempty"`
}

// QuestDefinition is one entry of the immutable quest catalog.
type QuestDefinition struct {
	ID         string      `json:"id"`
	Period     QuestPeriod `json:"period"`
	Metric     QuestMetric `json:"metric"`
	Target     int         `json:"target"`
	RewardGems int         `json:"reward_gems"`
}

// QuestCatalog is the static quest set. Progress state is keyed by these ids;
// changing an id abandons any in-flight progress under the old one.
var QuestCatalog = []QuestDefinition{
	{ID: "daily_lesson_1", Period: PeriodDaily, Metric: MetricLessonComplete, Target: 1, RewardGems: 5},
	{ID: "daily_lesson_3", Period: PeriodDaily, Metric: MetricLessonComplete, Target: 3, RewardGems: 5},
	{ID: "daily_journal_1", Period: PeriodDaily, Metric: MetricJournalSubmit, Target: 1, RewardGems: 5},

	{ID: "weekly_study_days_5", Period: PeriodWeekly, Metric: MetricStudyDay, Target: 5, RewardGems: 15},
	{ID: "weekly_lessons_15", Period: PeriodWeekly, Metric: MetricLessonComplete, Target: 15, RewardGems: 15},
	{ID: "weekly_journal_3", Period: PeriodWeekly, Metric: MetricJournalSubmit, Target: 3, RewardGems: 15},

	{ID: "monthly_study_days_20", Period: PeriodMonthly, Metric: MetricStudyDay, Target: 20, RewardGems: 40},
	{ID: "monthly_lessons_60", Period: PeriodMonthly, Metric: MetricLessonComplete, Target: 60, RewardGems: 40},
}

// QuestsForPeriod returns the catalog entries for one period, in catalog order.
func QuestsForPeriod(period QuestPeriod) []QuestDefinition {
	var defs []QuestDefinition
	for _, d := range QuestCatalog {
		if d.Period == period {
			defs = append(defs, d)
		}
	}
	return defs
}

// QuestByID looks up a catalog entry. Returns nil for unknown ids.
func QuestByID(id string) *QuestDefinition {
	for i := range QuestCatalog {
		if QuestCatalog[i].ID == id {
			return &QuestCatalog[i]
		}
	}
	return nil
}

// MonthlyBundleBadgeID is the fixed badge granted for a full monthly cycle.
const MonthlyBundleBadgeID = "monthly_consistency_v1"

// ─── XP Boost Tickets ───────────────────────────────────────────────────────

// XpBoostTicket is a time-boxed XP multiplier valid on a single calendar day.
// It activates on the first XP application during its valid date and dies
// when the duration window elapses or the bonus cap is fully consumed.
type XpBoostTicket struct {
	ValidDate       string     `json:"valid_date"`
	DurationMinutes int        `json:"duration_minutes"`
	Multiplier      int        `json:"multiplier"`
	MaxBonusXP      int        `json:"max_bonus_xp"`
	ActivatedAt     *time.Time `json:"activated_at"`
	ConsumedBonusXP int        `json:"consumed_bonus_xp"`
}

// QueuedXpBoostTicket is a granted-but-not-yet-active ticket waiting for the
// active slot to free up. No activation fields — it has never been usable.
type QueuedXpBoostTicket struct {
	ValidDate       string `json:"valid_date"`
	DurationMinutes int    `json:"duration_minutes"`
	Multiplier      int    `json:"multiplier"`
	MaxBonusXP      int    `json:"max_bonus_xp"`
}

// Expired reports whether the ticket must be discarded at now: its valid
// date has passed, its duration window has elapsed after activation, or its
// bonus cap is fully consumed.
func (t XpBoostTicket) Expired(now time.Time) bool {
	today := DateKey(now)
	if t.ValidDate < today {
		return true
	}
	if t.ValidDate > today {
		return false
	}
	if t.ActivatedAt == nil {
		return false
	}
	end := t.ActivatedAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
	return !now.Before(end) || t.ConsumedBonusXP >= t.MaxBonusXP
}

// Promote converts a queued ticket into a fresh active one.
func (q QueuedXpBoostTicket) Promote() XpBoostTicket {
	return XpBoostTicket{
		ValidDate:       q.ValidDate,
		DurationMinutes: q.DurationMinutes,
		Multiplier:      q.Multiplier,
		MaxBonusXP:      q.MaxBonusXP,
	}
}

// ─── Board Snapshots ────────────────────────────────────────────────────────

// QuestBoardItem is one quest's definition plus live cycle progress.
type QuestBoardItem struct {
	QuestDefinition
	CycleID   string `json:"cycle_id"`
	Progress  int    `json:"progress"`
	Claimed   bool   `json:"claimed"`
	Completed bool   `json:"completed"`
}

// QuestBundleStatus summarizes one period's bundle.
type QuestBundleStatus struct {
	CycleID       string `json:"cycle_id"`
	ClaimedCount  int    `json:"claimed_count"`
	TotalCount    int    `json:"total_count"`
	AllClaimed    bool   `json:"all_claimed"`
	RewardClaimed bool   `json:"reward_claimed"`
}

// XpBoostStatus is the ticket view exposed to callers.
type XpBoostStatus struct {
	HasTicket       bool   `json:"has_ticket"`
	ValidDate       string `json:"valid_date,omitempty"`
	QueuedValidDate string `json:"queued_valid_date,omitempty"`
	Active          bool   `json:"active"`
	RemainingMs     int64  `json:"remaining_ms"`
	ConsumedBonusXP int    `json:"consumed_bonus_xp"`
	MaxBonusXP      int    `json:"max_bonus_xp"`
	DurationMinutes int    `json:"duration_minutes"`
	Multiplier      int    `json:"multiplier"`
}

// QuestBoard is the full quest view for one instant.
type QuestBoard struct {
	Daily   []QuestBoardItem `json:"daily"`
	Weekly  []QuestBoardItem `json:"weekly"`
	Monthly []QuestBoardItem `json:"monthly"`

	DailyBundle   QuestBundleStatus `json:"daily_bundle"`
	WeeklyBundle  QuestBundleStatus `json:"weekly_bundle"`
	MonthlyBundle QuestBundleStatus `json:"monthly_bundle"`

	XpBoost XpBoostStatus `json:"xp_boost"`
}
