package quest

import (
	"encoding/json"

	"github.com/psycle-labs/psycle/internal/domain"
)

// storeKey is the local KV key holding the whole quest state bundle.
const storeKey = "quests_v2"

// schemaVersion 2 added the queued ticket slot. Older payloads load fine:
// the missing fields decode to their zero values.
const schemaVersion = 2

// questProgress is one quest's live cycle state.
type questProgress struct {
	CycleID string `json:"cycleId"`
	Count   int    `json:"count"`
	Claimed bool   `json:"claimed"`
	// LastCountedDate dedupes study-day quests to one increment per day.
	LastCountedDate string `json:"lastCountedDate,omitempty"`
}

// bundleState is one period's bundle claim marker.
type bundleState struct {
	CycleID string `json:"cycleId"`
	Claimed bool   `json:"claimed"`
}

// storeState is the persisted quest bundle. One JSON blob, read-modify-write.
type storeState struct {
	SchemaVersion int                         `json:"schemaVersion"`
	Quests        map[string]questProgress    `json:"quests"`
	Bundles       map[string]bundleState      `json:"bundles"`
	Ticket        *domain.XpBoostTicket       `json:"xpBoostTicket"`
	QueuedTicket  *domain.QueuedXpBoostTicket `json:"queuedXpBoostTicket"`
}

func emptyState() storeState {
	return storeState{
		SchemaVersion: schemaVersion,
		Quests:        make(map[string]questProgress),
		Bundles:       make(map[string]bundleState),
	}
}

// loadState reads and sanitizes the persisted quest bundle. Malformed or
// missing payloads reset to a clean default rather than failing.
func loadState(kv domain.KVStore) (storeState, error) {
	raw, err := kv.Get(storeKey)
	if err != nil {
		return storeState{}, err
	}
	if raw == "" {
		return emptyState(), nil
	}

	var state storeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return emptyState(), nil
	}
	return sanitize(state), nil
}

func saveState(kv domain.KVStore, state storeState) error {
	state.SchemaVersion = schemaVersion
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return kv.Set(storeKey, string(raw))
}

// sanitize repairs a decoded state in place of rejecting it: nil maps are
// allocated, unknown quest ids pruned, negative counters clamped, and
// tickets with impossible numbers dropped.
func sanitize(state storeState) storeState {
	if state.Quests == nil {
		state.Quests = make(map[string]questProgress)
	}
	if state.Bundles == nil {
		state.Bundles = make(map[string]bundleState)
	}

	for id, p := range state.Quests {
		if domain.QuestByID(id) == nil {
			delete(state.Quests, id)
			continue
		}
		if p.Count < 0 {
			p.Count = 0
			state.Quests[id] = p
		}
	}

	for period := range state.Bundles {
		switch domain.QuestPeriod(period) {
		case domain.PeriodDaily, domain.PeriodWeekly, domain.PeriodMonthly:
		default:
			delete(state.Bundles, period)
		}
	}

	if t := state.Ticket; t != nil {
		if t.ValidDate == "" || t.DurationMinutes <= 0 || t.Multiplier < 1 || t.MaxBonusXP <= 0 {
			state.Ticket = nil
		} else if t.ConsumedBonusXP < 0 {
			t.ConsumedBonusXP = 0
		}
	}
	if q := state.QueuedTicket; q != nil {
		if q.ValidDate == "" || q.DurationMinutes <= 0 || q.Multiplier < 1 || q.MaxBonusXP <= 0 {
			state.QueuedTicket = nil
		}
	}

	return state
}
