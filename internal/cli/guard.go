package cli

import (
	"fmt"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(streakSaveCmd)
}

var streakSaveCmd = &cobra.Command{
	Use:   "streak-save",
	Short: "Spend a freeze to save yesterday's study streak",
	RunE:  runStreakSave,
}

func runStreakSave(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Streaks.SaveGuard(time.Now())
	if err != nil {
		return err
	}
	if !result.Saved {
		fmt.Println("No streak guard available right now.")
		return nil
	}
	fmt.Printf("Streak saved. %d freezes remaining.\n", result.FreezesRemaining)
	return nil
}
