// Package cli implements the psycle command-line interface using Cobra.
// Each subcommand maps to an engine surface (board, streak, league, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "psycle",
	Short: "Psycle — local-first gamification cycle engine",
	Long: `Psycle tracks quests, streaks, XP boosts and league standings for a
learning app, entirely on your machine. League ranking can optionally sync
against a shared Postgres authority.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
