package cli

import (
	"fmt"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(streakCmd)
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show streaks, freezes and XP",
	RunE:  runStreak,
}

func runStreak(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	now := time.Now()
	data, err := d.Streaks.Status(now)
	if err != nil {
		return err
	}
	risk, err := d.Streaks.StudyRisk(now)
	if err != nil {
		return err
	}

	fmt.Printf("Study streak:  %d days", data.StudyStreak)
	if data.LastStudyDate != "" {
		fmt.Printf(" (last studied %s)", data.LastStudyDate)
	}
	fmt.Println()
	fmt.Printf("Action streak: %d days\n", data.ActionStreak)
	fmt.Printf("Freezes:       %d\n", data.FreezesRemaining)
	fmt.Printf("XP:            %d total, %d today\n", data.TotalXP, data.TodayXP)

	level := domain.LevelStatusFor(data.TotalXP)
	if level.Level >= domain.MaxLevel {
		fmt.Printf("Level:         %d (max)\n", level.Level)
	} else {
		fmt.Printf("Level:         %d (%d XP to next)\n", level.Level, level.XPToNext)
	}

	switch risk.RiskType {
	case domain.RiskAtRisk:
		fmt.Println("Your streak ends tonight unless you study today.")
	case domain.RiskSafeToday:
		if risk.TodayStudied {
			fmt.Println("You already studied today. Streak is safe.")
		}
	}

	guard, err := d.Streaks.StreakGuard(now)
	if err != nil {
		return err
	}
	if guard.Eligible {
		fmt.Println("A streak guard is available: run 'psycle streak-save' to spend a freeze.")
	}
	return nil
}
