// Package experiment implements deterministic variant assignment: the same
// user always lands on the same variant of an experiment, with no stored
// assignment state.
package experiment

import (
	"encoding/json"
	"time"

	"github.com/psycle-labs/psycle/internal/domain"
)

// fnv1a32 hashes s with 32-bit FNV-1a. Spelled out rather than taken from
// hash/fnv because the exact constants are part of the assignment contract:
// a different hash reshuffles every user's variant.
func fnv1a32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// hashUnit maps a user+experiment pair onto [0, 1).
func hashUnit(userID, experimentID string) float64 {
	h := fnv1a32(userID + ":" + experimentID)
	return float64(h) / float64(1<<32)
}

// InRollout reports whether the user falls inside the experiment's rollout
// percentage. The rollout gate hashes a distinct key so widening the
// rollout never reshuffles variants.
func InRollout(userID string, def domain.ExperimentDefinition) bool {
	if !def.Enabled {
		return false
	}
	if def.RolloutPercentage >= 100 {
		return true
	}
	if def.RolloutPercentage <= 0 {
		return false
	}
	roll := hashUnit(userID, def.ID+":rollout") * 100
	return roll < float64(def.RolloutPercentage)
}

// AssignVariant resolves the user's variant by weighted cumulative walk
// over the hash roll. A zero total weight falls back to the first variant;
// an experiment with no variants assigns nothing.
func AssignVariant(userID string, def domain.ExperimentDefinition) *domain.ExperimentVariant {
	if len(def.Variants) == 0 {
		return nil
	}

	var totalWeight float64
	for _, v := range def.Variants {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		v := def.Variants[0]
		return &v
	}

	roll := hashUnit(userID, def.ID) * totalWeight
	var cursor float64
	for _, v := range def.Variants {
		cursor += v.Weight
		if roll <= cursor {
			variant := v
			return &variant
		}
	}
	last := def.Variants[len(def.Variants)-1]
	return &last
}

// ─── Service ────────────────────────────────────────────────────────────────

// storeKey holds the exposure counters blob.
const storeKey = "experiments"

// exposureState tracks per-experiment exposure counts, reset daily.
type exposureState struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Service resolves experiment assignments for one user and tracks daily
// exposure counts.
type Service struct {
	kv   domain.KVStore
	sink domain.EventSink
	defs map[string]domain.ExperimentDefinition
}

// NewService creates an experiment service over a fixed definition set.
func NewService(kv domain.KVStore, sink domain.EventSink, defs []domain.ExperimentDefinition) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	byID := make(map[string]domain.ExperimentDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}
	return &Service{kv: kv, sink: sink, defs: byID}
}

// Assignment resolves the user's assignment for one experiment. Users
// outside the rollout, disabled experiments and unknown ids all resolve to
// a non-assigned result rather than an error.
func (s *Service) Assignment(userID, experimentID string) domain.ExperimentAssignment {
	assignment := domain.ExperimentAssignment{ExperimentID: experimentID}
	def, ok := s.defs[experimentID]
	if !ok || !InRollout(userID, def) {
		return assignment
	}

	variant := AssignVariant(userID, def)
	if variant == nil {
		return assignment
	}
	assignment.Assigned = true
	assignment.VariantID = variant.ID
	assignment.Payload = variant.Payload
	return assignment
}

// RecordExposure counts one rendered exposure of an experiment today and
// emits the exposure event. Counting failures never block the caller's
// flow; the assignment already happened.
func (s *Service) RecordExposure(userID, experimentID string, now time.Time) domain.ExperimentAssignment {
	assignment := s.Assignment(userID, experimentID)
	if !assignment.Assigned {
		return assignment
	}

	s.sink.Emit("experiment_exposure", map[string]any{
		"experiment_id": experimentID,
		"variant_id":    assignment.VariantID,
	})

	state := s.loadExposures()
	today := domain.DateKey(now)
	if state.Date != today {
		state = exposureState{Date: today, Counts: make(map[string]int)}
	}
	state.Counts[experimentID]++
	if raw, err := json.Marshal(state); err == nil {
		_ = s.kv.Set(storeKey, string(raw))
	}
	return assignment
}

// ExposuresToday returns today's exposure count for one experiment.
func (s *Service) ExposuresToday(experimentID string, now time.Time) int {
	state := s.loadExposures()
	if state.Date != domain.DateKey(now) {
		return 0
	}
	return state.Counts[experimentID]
}

func (s *Service) loadExposures() exposureState {
	state := exposureState{Counts: make(map[string]int)}
	raw, err := s.kv.Get(storeKey)
	if err != nil || raw == "" {
		return state
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil || state.Counts == nil {
		return exposureState{Counts: make(map[string]int)}
	}
	return state
}
