package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(boardCmd)
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the quest board",
	RunE:  runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	board, err := d.Quests.Board(time.Now())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUEST\tPERIOD\tPROGRESS\tGEMS\tSTATUS")
	for _, items := range [][]domain.QuestBoardItem{board.Daily, board.Weekly, board.Monthly} {
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
				item.ID, item.Period, item.Progress, item.Target, item.RewardGems, questStatus(item))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nBundles: daily %d/%d  weekly %d/%d  monthly %d/%d\n",
		board.DailyBundle.ClaimedCount, board.DailyBundle.TotalCount,
		board.WeeklyBundle.ClaimedCount, board.WeeklyBundle.TotalCount,
		board.MonthlyBundle.ClaimedCount, board.MonthlyBundle.TotalCount)

	if board.XpBoost.HasTicket {
		if board.XpBoost.Active {
			fmt.Printf("XP boost: %dx active, %ds left, %d/%d bonus XP used\n",
				board.XpBoost.Multiplier, board.XpBoost.RemainingMs/1000,
				board.XpBoost.ConsumedBonusXP, board.XpBoost.MaxBonusXP)
		} else {
			fmt.Printf("XP boost: %dx ticket for %s\n", board.XpBoost.Multiplier, board.XpBoost.ValidDate)
		}
	}
	return nil
}

func questStatus(item domain.QuestBoardItem) string {
	switch {
	case item.Claimed:
		return "claimed"
	case item.Completed:
		return "claimable"
	default:
		return "in progress"
	}
}
