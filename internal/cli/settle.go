package cli

import (
	"fmt"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(settleCmd)
}

var settleCmd = &cobra.Command{
	Use:   "settle-week",
	Short: "Settle last week's leagues and stage rewards",
	RunE:  runSettle,
}

func runSettle(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	summary, err := d.Leagues.SettleWeek(time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Settled week %s: %d leagues, %d members (%d promoted, %d demoted)\n",
		summary.WeekID, summary.Leagues, summary.Members, summary.Promoted, summary.Demoted)
	return nil
}
