package domain

import "math"

// MaxLevel caps the ladder.
const MaxLevel = 100

// XPForLevel returns the cumulative XP required to reach a level. The curve
// is exponential: 100 * 1.2^(level-1) for level >= 2, level 1 is free.
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return int(100 * math.Pow(1.2, float64(level-1)))
}

// LevelForXP returns the level a total XP amount has reached.
func LevelForXP(xp int) int {
	level := 1
	for level < MaxLevel {
		if xp < XPForLevel(level+1) {
			return level
		}
		level++
	}
	return MaxLevel
}

// LevelStatus is the user's position on the XP ladder.
type LevelStatus struct {
	Level       int     `json:"level"`
	TotalXP     int     `json:"total_xp"`
	XPToNext    int     `json:"xp_to_next"`
	ProgressPct float64 `json:"progress_pct"`
}

// LevelStatusFor computes the full ladder position for a total XP amount.
func LevelStatusFor(totalXP int) LevelStatus {
	status := LevelStatus{
		Level:   LevelForXP(totalXP),
		TotalXP: totalXP,
	}
	if status.Level >= MaxLevel {
		status.ProgressPct = 100
		return status
	}

	floor := XPForLevel(status.Level)
	next := XPForLevel(status.Level + 1)
	status.XPToNext = next - totalXP
	if status.XPToNext < 0 {
		status.XPToNext = 0
	}
	if span := next - floor; span > 0 {
		status.ProgressPct = float64(totalXP-floor) / float64(span) * 100
	}
	if status.ProgressPct < 0 {
		status.ProgressPct = 0
	} else if status.ProgressPct > 100 {
		status.ProgressPct = 100
	}
	return status
}
