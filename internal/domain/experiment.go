package domain

// ─── Experiment Types ───────────────────────────────────────────────────────

// ExperimentVariant is one weighted arm of an experiment.
type ExperimentVariant struct {
	ID      string         `json:"id"`
	Weight  float64        `json:"weight"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ExperimentDefinition configures one experiment. Assignment is a pure
// function of (userId, experimentId); nothing here is persisted per user.
type ExperimentDefinition struct {
	ID                string              `json:"id"`
	Enabled           bool                `json:"enabled"`
	RolloutPercentage int                 `json:"rollout_percentage"`
	Variants          []ExperimentVariant `json:"variants"`
}

// ExperimentAssignment is the resolved variant for one user. Assigned is
// false for disabled experiments, unknown ids and users outside the rollout.
type ExperimentAssignment struct {
	ExperimentID string         `json:"experiment_id"`
	Assigned     bool           `json:"assigned"`
	VariantID    string         `json:"variant_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}
