package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/psycle-labs/psycle/internal/daemon"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/spf13/cobra"
)

func init() {
	leagueCmd.AddCommand(leagueJoinCmd)
	leagueCmd.AddCommand(leagueStandingsCmd)
	leagueCmd.AddCommand(leagueBoundaryCmd)
	rootCmd.AddCommand(leagueCmd)
}

var leagueCmd = &cobra.Command{
	Use:   "league",
	Short: "League matchmaking and standings",
}

var leagueJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this week's league",
	RunE:  runLeagueJoin,
}

func runLeagueJoin(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	info, err := d.Leagues.EnsureJoined(d.Config().Engine.UserID, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Joined %s league for %s (%d members)\n",
		info.TierName, info.WeekID, len(info.Members))
	return nil
}

var leagueStandingsCmd = &cobra.Command{
	Use:   "standings",
	Short: "Show this week's league standings",
	RunE:  runLeagueStandings,
}

func runLeagueStandings(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	info, err := d.Leagues.MyLeague(d.Config().Engine.UserID, time.Now())
	if errors.Is(err, domain.ErrLeagueNotFound) {
		fmt.Println("Not in a league yet. Run 'psycle league join' first.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s league, week %s\n\n", info.TierName, info.WeekID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tWEEKLY XP\tZONE")
	for _, m := range info.Members {
		marker := ""
		if m.UserID == d.Config().Engine.UserID {
			marker = " *"
		}
		fmt.Fprintf(w, "%d\t%s%s\t%d\t%s\n", m.Rank, m.UserID, marker, m.WeeklyXP, zoneFor(info, m.Rank))
	}
	return w.Flush()
}

func zoneFor(info domain.LeagueInfo, rank int) string {
	switch {
	case rank <= info.PromotionZone:
		return "promotion"
	case rank >= info.DemotionZone:
		return "demotion"
	default:
		return ""
	}
}

var leagueBoundaryCmd = &cobra.Command{
	Use:   "boundary",
	Short: "Show the XP gap to the nearest zone boundary",
	RunE:  runLeagueBoundary,
}

func runLeagueBoundary(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	status, err := d.Leagues.Boundary(d.Config().Engine.UserID, time.Now())
	if errors.Is(err, domain.ErrLeagueNotFound) {
		fmt.Println("Not in a league yet. Run 'psycle league join' first.")
		return nil
	}
	if err != nil {
		return err
	}
	if status == nil {
		fmt.Println("You are inside the promotion zone. Keep it up.")
		return nil
	}
	switch status.Mode {
	case domain.BoundaryPromotionChase:
		fmt.Printf("%d XP away from the promotion zone\n", status.XPGap)
	case domain.BoundaryDemotionRisk:
		fmt.Printf("Earn %d XP to climb out of the demotion zone\n", status.XPGap)
	}
	return nil
}
