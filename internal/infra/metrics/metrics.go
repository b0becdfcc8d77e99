// Package metrics provides Prometheus metrics for the engine — counters and
// gauges for gameplay events, claims, tickets, streaks and leagues.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Events & Claims ────────────────────────────────────────────────────────

// EventsRecorded tracks inbound gameplay events by type.
var EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "events_recorded_total",
	Help:      "Total gameplay events recorded.",
}, []string{"type"})

// QuestsClaimed tracks quest reward claims by quest id.
var QuestsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "quests_claimed_total",
	Help:      "Total quest rewards claimed.",
}, []string{"quest"})

// BundlesClaimed tracks bundle claims by period.
var BundlesClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "bundles_claimed_total",
	Help:      "Total period bundles claimed.",
}, []string{"period"})

// GemsAwarded tracks gems paid out across all claim paths.
var GemsAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "gems_awarded_total",
	Help:      "Total gems awarded.",
})

// ─── Boost Tickets ──────────────────────────────────────────────────────────

// TicketGrants tracks ticket grant outcomes: granted, queued, blocked.
var TicketGrants = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "ticket_grants_total",
	Help:      "Total boost ticket grant attempts by outcome.",
}, []string{"outcome"})

// TicketsExpired tracks discarded tickets by reason: window, cap, date.
var TicketsExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "tickets_expired_total",
	Help:      "Total boost tickets discarded by reason.",
}, []string{"reason"})

// BoostBonusXP tracks bonus XP paid out through active tickets.
var BoostBonusXP = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "boost_bonus_xp_total",
	Help:      "Total bonus XP granted by boost tickets.",
})

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakResets tracks streak losses by streak kind.
var StreakResets = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "streak_resets_total",
	Help:      "Total streak resets.",
}, []string{"kind"})

// FreezesConsumed tracks freezes spent bridging missed days.
var FreezesConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "freezes_consumed_total",
	Help:      "Total streak freezes consumed.",
})

// RecoveriesClaimed tracks completed recovery missions.
var RecoveriesClaimed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "recoveries_claimed_total",
	Help:      "Total recovery missions claimed.",
})

// GuardSaves tracks streak guard saves.
var GuardSaves = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "guard_saves_total",
	Help:      "Total streak guard saves.",
})

// ─── Leagues ────────────────────────────────────────────────────────────────

// LeagueJoins tracks league placements by tier.
var LeagueJoins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "league_joins_total",
	Help:      "Total league placements.",
}, []string{"tier"})

// WeeksSettled tracks settlement runs.
var WeeksSettled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "weeks_settled_total",
	Help:      "Total league week settlements.",
})

// SettledMembers tracks members processed in the last settlement.
var SettledMembers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "psycle",
	Name:      "settled_members_last",
	Help:      "Members processed in the most recent settlement.",
})

// ─── API ────────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by route and status class.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "psycle",
	Name:      "http_requests_total",
	Help:      "Total HTTP API requests.",
}, []string{"route", "status"})

// ─── Event Sink ─────────────────────────────────────────────────────────────

// Sink adapts engine events onto the Prometheus counters. It satisfies the
// engine's event sink contract so services stay free of metrics imports.
type Sink struct{}

// Emit maps one engine event onto its counter. Unknown events are dropped.
func (Sink) Emit(name string, attrs map[string]any) {
	switch name {
	case "quest_claimed":
		if id, ok := attrs["quest_id"].(string); ok {
			QuestsClaimed.WithLabelValues(id).Inc()
		}
		if gems, ok := attrs["gems"].(int); ok {
			GemsAwarded.Add(float64(gems))
		}
	case "bundle_claimed":
		if period, ok := attrs["period"].(string); ok {
			BundlesClaimed.WithLabelValues(period).Inc()
		}
	case "ticket_granted":
		TicketGrants.WithLabelValues("granted").Inc()
	case "ticket_queued":
		TicketGrants.WithLabelValues("queued").Inc()
	case "ticket_blocked":
		TicketGrants.WithLabelValues("blocked").Inc()
	case "ticket_expired":
		reason, _ := attrs["reason"].(string)
		TicketsExpired.WithLabelValues(reason).Inc()
	case "boost_applied":
		if bonus, ok := attrs["bonus_xp"].(int); ok {
			BoostBonusXP.Add(float64(bonus))
		}
	case "streak_reset":
		kind, _ := attrs["kind"].(string)
		StreakResets.WithLabelValues(kind).Inc()
	case "freeze_consumed":
		if count, ok := attrs["count"].(int); ok {
			FreezesConsumed.Add(float64(count))
		}
	case "recovery_claimed":
		RecoveriesClaimed.Inc()
	case "guard_saved":
		GuardSaves.Inc()
	case "league_joined":
		if tier, ok := attrs["tier"].(int); ok {
			LeagueJoins.WithLabelValues(tierLabel(tier)).Inc()
		}
	case "week_settled":
		WeeksSettled.Inc()
		if members, ok := attrs["members"].(int); ok {
			SettledMembers.Set(float64(members))
		}
	}
}

func tierLabel(tier int) string {
	labels := []string{"bronze", "silver", "gold", "platinum", "diamond", "master"}
	if tier >= 0 && tier < len(labels) {
		return labels[tier]
	}
	return "unknown"
}
