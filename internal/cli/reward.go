package cli

import (
	"fmt"
	"strings"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/spf13/cobra"
)

func init() {
	rewardCmd.Flags().BoolVar(&rewardClaim, "claim", false, "Claim the pending reward")
	rootCmd.AddCommand(rewardCmd)
}

var rewardClaim bool

var rewardCmd = &cobra.Command{
	Use:   "reward",
	Short: "Show or claim last week's league reward",
	RunE:  runReward,
}

func runReward(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	pending, err := d.Leagues.PendingReward(d.Config().Engine.UserID)
	if err != nil {
		return err
	}
	if pending == nil {
		fmt.Println("No pending reward.")
		return nil
	}

	if !rewardClaim {
		fmt.Printf("Pending for %s: %d gems", pending.WeekID, pending.Gems)
		if len(pending.Badges) > 0 {
			fmt.Printf(", badges: %s", strings.Join(pending.Badges, ", "))
		}
		fmt.Println("\nRun 'psycle reward --claim' to collect.")
		return nil
	}

	claimed, err := d.Leagues.ClaimReward(pending.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Claimed %d gems", claimed.Gems)
	if len(claimed.Badges) > 0 {
		fmt.Printf(" and badges: %s", strings.Join(claimed.Badges, ", "))
	}
	fmt.Println()
	return nil
}
