package cli

import (
	"fmt"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(autoclaimCmd)
}

var claimCmd = &cobra.Command{
	Use:   "claim QUEST_ID",
	Short: "Claim a completed quest's gems",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaim,
}

func runClaim(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Quests.ClaimQuest(args[0], time.Now())
	if err != nil {
		return err
	}
	switch {
	case result.Claimed:
		fmt.Printf("Claimed %s: +%d gems\n", result.QuestID, result.Gems)
	case result.AlreadyClaimed:
		fmt.Printf("%s was already claimed this cycle\n", result.QuestID)
	default:
		fmt.Printf("%s is not complete yet\n", result.QuestID)
	}

	return nil
}

var autoclaimCmd = &cobra.Command{
	Use:   "autoclaim",
	Short: "Claim every completed quest and eligible bundle",
	RunE:  runAutoclaim,
}

func runAutoclaim(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Quests.AutoClaim(time.Now())
	if err != nil {
		return err
	}

	for _, bundle := range result.Bundles {
		if bundle.FreezeGranted {
			if _, err := d.Streaks.AddFreezes(1, time.Now()); err != nil {
				return err
			}
		}
	}

	fmt.Printf("Claimed %d quests and %d bundles: +%d gems\n",
		len(result.Quests), len(result.Bundles), result.Gems)
	for _, bundle := range result.Bundles {
		switch {
		case bundle.Period == domain.PeriodDaily && bundle.Ticket != nil:
			fmt.Printf("Daily bundle: XP boost ticket for %s\n", bundle.Ticket.ValidDate)
		case bundle.FreezeGranted:
			fmt.Println("Weekly bundle: +1 streak freeze")
		case bundle.Badge != "":
			fmt.Printf("Monthly bundle: badge %s\n", bundle.Badge)
		}
	}
	return nil
}
