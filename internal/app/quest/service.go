// Package quest implements the quest progress store, reward claims, bundle
// claims and the XP boost ticket lifecycle.
package quest

import (
	"time"

	"github.com/psycle-labs/psycle/internal/domain"
)

// BoostConfig sets the shape of granted XP boost tickets.
type BoostConfig struct {
	DurationMinutes int
	Multiplier      int
	MaxBonusXP      int
}

// DefaultBoostConfig returns the standard ticket shape: 15 minutes at 2x,
// capped at 120 bonus XP.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{DurationMinutes: 15, Multiplier: 2, MaxBonusXP: 120}
}

// Service manages quest progress, claims and boost tickets. All state lives
// in one KV blob; every operation is a read-modify-write of that blob.
type Service struct {
	kv    domain.KVStore
	sink  domain.EventSink
	boost BoostConfig
}

// NewService creates a quest service.
func NewService(kv domain.KVStore, sink domain.EventSink, boost BoostConfig) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Service{kv: kv, sink: sink, boost: boost}
}

// ─── Event Recording ────────────────────────────────────────────────────────

// QuestUpdate is one quest's state after an event landed.
type QuestUpdate struct {
	QuestID      string `json:"quest_id"`
	Progress     int    `json:"progress"`
	Target       int    `json:"target"`
	CompletedNow bool   `json:"completed_now"`
}

// RecordResult summarizes the effect of one gameplay event.
type RecordResult struct {
	Updated []QuestUpdate `json:"updated"`
}

// metricsFor maps a gameplay event to the quest metrics it advances. Only a
// completed lesson marks a study day; answered questions carry XP through
// the boost path without touching quest progress.
func metricsFor(eventType domain.QuestEventType) ([]domain.QuestMetric, error) {
	switch eventType {
	case domain.EventLessonComplete:
		return []domain.QuestMetric{domain.MetricLessonComplete, domain.MetricStudyDay}, nil
	case domain.EventJournalSubmit:
		return []domain.QuestMetric{domain.MetricJournalSubmit}, nil
	case domain.EventQuestionAnswered:
		return nil, nil
	default:
		return nil, domain.ErrUnknownEventType
	}
}

// RecordEvent advances every catalog quest whose metric matches the event.
// Stale cycle state resets before counting; study-day quests count at most
// once per calendar day. Progress never exceeds the target.
func (s *Service) RecordEvent(event domain.QuestEvent, now time.Time) (RecordResult, error) {
	metrics, err := metricsFor(event.Type)
	if err != nil {
		return RecordResult{}, err
	}

	state, err := loadState(s.kv)
	if err != nil {
		return RecordResult{}, err
	}

	today := domain.DateKey(now)
	var result RecordResult
	for _, def := range domain.QuestCatalog {
		if !matchesAny(def.Metric, metrics) {
			continue
		}

		cycleID := domain.CycleIDFor(def.Period, now)
		p := state.Quests[def.ID]
		if p.CycleID != cycleID {
			p = questProgress{CycleID: cycleID}
		}
		if p.Count >= def.Target {
			continue
		}
		if def.Metric == domain.MetricStudyDay {
			if p.LastCountedDate == today {
				continue
			}
			p.LastCountedDate = today
		}

		p.Count++
		state.Quests[def.ID] = p
		result.Updated = append(result.Updated, QuestUpdate{
			QuestID:      def.ID,
			Progress:     p.Count,
			Target:       def.Target,
			CompletedNow: p.Count == def.Target,
		})
		if p.Count == def.Target {
			s.sink.Emit("quest_completed", map[string]any{"quest_id": def.ID})
		}
	}

	if err := saveState(s.kv, state); err != nil {
		return RecordResult{}, err
	}
	return result, nil
}

func matchesAny(metric domain.QuestMetric, metrics []domain.QuestMetric) bool {
	for _, m := range metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// ─── Quest Reward Claims ────────────────────────────────────────────────────

// ClaimResult is the outcome of one quest reward claim. Ineligible claims
// are typed results, not errors.
type ClaimResult struct {
	QuestID        string `json:"quest_id"`
	Claimed        bool   `json:"claimed"`
	Gems           int    `json:"gems"`
	AlreadyClaimed bool   `json:"already_claimed"`
	Incomplete     bool   `json:"incomplete"`
}

// ClaimQuest awards a completed quest's gems exactly once per cycle.
func (s *Service) ClaimQuest(questID string, now time.Time) (ClaimResult, error) {
	def := domain.QuestByID(questID)
	if def == nil {
		return ClaimResult{}, domain.ErrUnknownQuest
	}

	state, err := loadState(s.kv)
	if err != nil {
		return ClaimResult{}, err
	}

	cycleID := domain.CycleIDFor(def.Period, now)
	p := state.Quests[questID]
	if p.CycleID != cycleID {
		p = questProgress{CycleID: cycleID}
		state.Quests[questID] = p
	}

	result := ClaimResult{QuestID: questID}
	switch {
	case p.Claimed:
		result.AlreadyClaimed = true
	case p.Count < def.Target:
		result.Incomplete = true
	default:
		p.Claimed = true
		state.Quests[questID] = p
		result.Claimed = true
		result.Gems = def.RewardGems
		s.sink.Emit("quest_claimed", map[string]any{"quest_id": questID, "gems": def.RewardGems})
	}

	if err := saveState(s.kv, state); err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

// ─── Bundle Claims ──────────────────────────────────────────────────────────

// GrantOutcome says where a freshly granted ticket landed.
type GrantOutcome string

const (
	GrantGranted GrantOutcome = "granted" // active slot
	GrantQueued  GrantOutcome = "queued"  // queued slot
	GrantBlocked GrantOutcome = "blocked" // both slots full, nothing emitted
)

// BundleClaimResult is the outcome of one bundle claim.
type BundleClaimResult struct {
	Period         domain.QuestPeriod `json:"period"`
	Claimed        bool               `json:"claimed"`
	AlreadyClaimed bool               `json:"already_claimed"`
	Incomplete     bool               `json:"incomplete"`

	// Daily bundles grant a boost ticket.
	TicketOutcome GrantOutcome          `json:"ticket_outcome,omitempty"`
	Ticket        *domain.XpBoostTicket `json:"ticket,omitempty"`
	// Weekly bundles grant a streak freeze; the caller credits it.
	FreezeGranted bool `json:"freeze_granted"`
	// Monthly bundles grant a badge.
	Badge string `json:"badge,omitempty"`
}

// ClaimBundle awards a period's bundle once all its quests are claimed in
// the current cycle. Daily bundles mint an XP boost ticket valid the next
// calendar day; with both ticket slots occupied the bundle still claims but
// no ticket is emitted.
func (s *Service) ClaimBundle(period domain.QuestPeriod, now time.Time) (BundleClaimResult, error) {
	switch period {
	case domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly:
	default:
		return BundleClaimResult{}, domain.ErrUnknownPeriod
	}

	state, err := loadState(s.kv)
	if err != nil {
		return BundleClaimResult{}, err
	}
	state = sweepTickets(state, now, s.sink)

	cycleID := domain.CycleIDFor(period, now)
	result := s.claimBundleLocked(&state, period, cycleID)

	if err := saveState(s.kv, state); err != nil {
		return BundleClaimResult{}, err
	}
	return result, nil
}

// claimBundleLocked applies one bundle claim against an already-loaded
// state. cycleID is the cycle being claimed, which during rollover recovery
// is yesterday's rather than today's.
func (s *Service) claimBundleLocked(state *storeState, period domain.QuestPeriod, cycleID string) BundleClaimResult {
	result := BundleClaimResult{Period: period}

	bundle := state.Bundles[string(period)]
	if bundle.CycleID != cycleID {
		bundle = bundleState{CycleID: cycleID}
	}
	if bundle.Claimed {
		result.AlreadyClaimed = true
		return result
	}

	for _, def := range domain.QuestsForPeriod(period) {
		p := state.Quests[def.ID]
		if p.CycleID != cycleID || !p.Claimed {
			result.Incomplete = true
			return result
		}
	}

	bundle.Claimed = true
	state.Bundles[string(period)] = bundle
	result.Claimed = true
	s.sink.Emit("bundle_claimed", map[string]any{"period": string(period), "cycle_id": cycleID})

	switch period {
	case domain.PeriodDaily:
		outcome, ticket := s.grantTicket(state, cycleID)
		result.TicketOutcome = outcome
		result.Ticket = ticket
	case domain.PeriodWeekly:
		result.FreezeGranted = true
	case domain.PeriodMonthly:
		result.Badge = domain.MonthlyBundleBadgeID
	}
	return result
}

// grantTicket mints a ticket valid the calendar day after the claimed daily
// cycle and places it in the first free slot.
func (s *Service) grantTicket(state *storeState, dailyCycleID string) (GrantOutcome, *domain.XpBoostTicket) {
	validDate := nextDateKey(dailyCycleID)

	if state.Ticket != nil && state.QueuedTicket != nil {
		s.sink.Emit("ticket_blocked", map[string]any{"valid_date": validDate})
		return GrantBlocked, nil
	}

	if state.Ticket != nil {
		queued := domain.QueuedXpBoostTicket{
			ValidDate:       validDate,
			DurationMinutes: s.boost.DurationMinutes,
			Multiplier:      s.boost.Multiplier,
			MaxBonusXP:      s.boost.MaxBonusXP,
		}
		state.QueuedTicket = &queued
		s.sink.Emit("ticket_queued", map[string]any{"valid_date": validDate})
		return GrantQueued, nil
	}

	ticket := domain.XpBoostTicket{
		ValidDate:       validDate,
		DurationMinutes: s.boost.DurationMinutes,
		Multiplier:      s.boost.Multiplier,
		MaxBonusXP:      s.boost.MaxBonusXP,
	}
	state.Ticket = &ticket
	s.sink.Emit("ticket_granted", map[string]any{"valid_date": validDate})
	return GrantGranted, &ticket
}

// nextDateKey returns the date key one calendar day after key. A malformed
// key falls back to itself.
func nextDateKey(key string) string {
	t, err := time.ParseInLocation("2006-01-02", key, time.UTC)
	if err != nil {
		return key
	}
	return domain.DateKey(t.AddDate(0, 0, 1))
}

// ─── Auto Claim ─────────────────────────────────────────────────────────────

// AutoClaimResult is everything a catch-up sweep awarded.
type AutoClaimResult struct {
	Quests  []ClaimResult       `json:"quests"`
	Bundles []BundleClaimResult `json:"bundles"`
	Gems    int                 `json:"gems"`
}

// AutoClaim claims every completed unclaimed quest and every eligible
// bundle. It also recovers yesterday's daily bundle when all of yesterday's
// quests were claimed but the bundle itself was missed before midnight.
func (s *Service) AutoClaim(now time.Time) (AutoClaimResult, error) {
	state, err := loadState(s.kv)
	if err != nil {
		return AutoClaimResult{}, err
	}
	state = sweepTickets(state, now, s.sink)

	var result AutoClaimResult

	// Rollover recovery: yesterday's bundle, exactly one day back. No
	// bundle record exists for an unclaimed bundle, so eligibility rides
	// on the quest states still carrying yesterday's cycle fully claimed;
	// claimBundleLocked rejects anything older or already claimed.
	yesterday := domain.DateKey(now.AddDate(0, 0, -1))
	if recovered := s.claimBundleLocked(&state, domain.PeriodDaily, yesterday); recovered.Claimed {
		result.Bundles = append(result.Bundles, recovered)
	}

	for _, def := range domain.QuestCatalog {
		cycleID := domain.CycleIDFor(def.Period, now)
		p := state.Quests[def.ID]
		if p.CycleID != cycleID || p.Claimed || p.Count < def.Target {
			continue
		}
		p.Claimed = true
		state.Quests[def.ID] = p
		result.Quests = append(result.Quests, ClaimResult{
			QuestID: def.ID,
			Claimed: true,
			Gems:    def.RewardGems,
		})
		result.Gems += def.RewardGems
		s.sink.Emit("quest_claimed", map[string]any{"quest_id": def.ID, "gems": def.RewardGems})
	}

	for _, period := range []domain.QuestPeriod{domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly} {
		claimed := s.claimBundleLocked(&state, period, domain.CycleIDFor(period, now))
		if claimed.Claimed {
			result.Bundles = append(result.Bundles, claimed)
		}
	}

	if err := saveState(s.kv, state); err != nil {
		return AutoClaimResult{}, err
	}
	return result, nil
}

// ─── Boost Application ──────────────────────────────────────────────────────

// BoostResult is the effect of one XP application on the active ticket.
type BoostResult struct {
	Applied  bool `json:"applied"`
	BonusXP  int  `json:"bonus_xp"`
	Consumed int  `json:"consumed"`
	Expired  bool `json:"expired"`
}

// ApplyBoost feeds a base XP amount through the active ticket. The first
// application on the valid date activates the ticket; the bonus is the
// multiplier surplus clamped to the remaining cap. A ticket that hits its
// cap or its window is discarded and any queued ticket promotes.
func (s *Service) ApplyBoost(baseXP int, now time.Time) (BoostResult, error) {
	if baseXP < 0 {
		return BoostResult{}, domain.ErrInvalidXPAmount
	}

	state, err := loadState(s.kv)
	if err != nil {
		return BoostResult{}, err
	}
	state = sweepTickets(state, now, s.sink)

	var result BoostResult
	ticket := state.Ticket
	if ticket != nil && ticket.ValidDate == domain.DateKey(now) {
		if ticket.ActivatedAt == nil {
			activated := now
			ticket.ActivatedAt = &activated
			s.sink.Emit("ticket_activated", map[string]any{"valid_date": ticket.ValidDate})
		}

		bonus := baseXP * (ticket.Multiplier - 1)
		if remaining := ticket.MaxBonusXP - ticket.ConsumedBonusXP; bonus > remaining {
			bonus = remaining
		}
		if bonus > 0 {
			ticket.ConsumedBonusXP += bonus
			result.Applied = true
			result.BonusXP = bonus
			result.Consumed = ticket.ConsumedBonusXP
			s.sink.Emit("boost_applied", map[string]any{"bonus_xp": bonus})
		}

		if ticket.ConsumedBonusXP >= ticket.MaxBonusXP {
			result.Expired = true
			state.Ticket = nil
			s.sink.Emit("ticket_expired", map[string]any{"reason": "cap"})
			promoteQueued(&state, now)
		}
	}

	if err := saveState(s.kv, state); err != nil {
		return BoostResult{}, err
	}
	return result, nil
}

// sweepTickets drops expired tickets and promotes the queued one into a
// freed active slot. Runs at the start of every ticket-touching operation.
func sweepTickets(state storeState, now time.Time, sink domain.EventSink) storeState {
	if state.Ticket != nil && state.Ticket.Expired(now) {
		state.Ticket = nil
		sink.Emit("ticket_expired", map[string]any{"reason": "window"})
	}
	if state.Ticket == nil {
		promoteQueued(&state, now)
	}
	return state
}

func promoteQueued(state *storeState, now time.Time) {
	if state.QueuedTicket == nil {
		return
	}
	if state.QueuedTicket.ValidDate < domain.DateKey(now) {
		state.QueuedTicket = nil
		return
	}
	promoted := state.QueuedTicket.Promote()
	state.Ticket = &promoted
	state.QueuedTicket = nil
}

// ─── Board ──────────────────────────────────────────────────────────────────

// Board builds the full quest view at now. Ticket expiry is applied and
// persisted on the way through; quest progress rollover is computed but
// kept lazy.
func (s *Service) Board(now time.Time) (domain.QuestBoard, error) {
	state, err := loadState(s.kv)
	if err != nil {
		return domain.QuestBoard{}, err
	}
	swept := sweepTickets(state, now, s.sink)
	if err := saveState(s.kv, swept); err != nil {
		return domain.QuestBoard{}, err
	}

	board := domain.QuestBoard{
		Daily:         s.boardItems(swept, domain.PeriodDaily, now),
		Weekly:        s.boardItems(swept, domain.PeriodWeekly, now),
		Monthly:       s.boardItems(swept, domain.PeriodMonthly, now),
		DailyBundle:   s.bundleStatus(swept, domain.PeriodDaily, now),
		WeeklyBundle:  s.bundleStatus(swept, domain.PeriodWeekly, now),
		MonthlyBundle: s.bundleStatus(swept, domain.PeriodMonthly, now),
		XpBoost:       ticketStatus(swept, now),
	}
	return board, nil
}

func (s *Service) boardItems(state storeState, period domain.QuestPeriod, now time.Time) []domain.QuestBoardItem {
	cycleID := domain.CycleIDFor(period, now)
	var items []domain.QuestBoardItem
	for _, def := range domain.QuestsForPeriod(period) {
		item := domain.QuestBoardItem{QuestDefinition: def, CycleID: cycleID}
		if p := state.Quests[def.ID]; p.CycleID == cycleID {
			item.Progress = p.Count
			item.Claimed = p.Claimed
		}
		item.Completed = item.Progress >= def.Target
		items = append(items, item)
	}
	return items
}

func (s *Service) bundleStatus(state storeState, period domain.QuestPeriod, now time.Time) domain.QuestBundleStatus {
	cycleID := domain.CycleIDFor(period, now)
	defs := domain.QuestsForPeriod(period)

	status := domain.QuestBundleStatus{CycleID: cycleID, TotalCount: len(defs)}
	for _, def := range defs {
		if p := state.Quests[def.ID]; p.CycleID == cycleID && p.Claimed {
			status.ClaimedCount++
		}
	}
	status.AllClaimed = status.ClaimedCount == status.TotalCount
	if b := state.Bundles[string(period)]; b.CycleID == cycleID && b.Claimed {
		status.RewardClaimed = true
	}
	return status
}

// ticketStatus renders the post-sweep ticket slots.
func ticketStatus(state storeState, now time.Time) domain.XpBoostStatus {
	status := domain.XpBoostStatus{}
	if q := state.QueuedTicket; q != nil {
		status.QueuedValidDate = q.ValidDate
	}
	t := state.Ticket
	if t == nil {
		return status
	}

	status.HasTicket = true
	status.ValidDate = t.ValidDate
	status.ConsumedBonusXP = t.ConsumedBonusXP
	status.MaxBonusXP = t.MaxBonusXP
	status.DurationMinutes = t.DurationMinutes
	status.Multiplier = t.Multiplier

	if t.ActivatedAt != nil && t.ValidDate == domain.DateKey(now) {
		end := t.ActivatedAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
		if remaining := end.Sub(now); remaining > 0 {
			status.Active = true
			status.RemainingMs = remaining.Milliseconds()
		}
	}
	return status
}
