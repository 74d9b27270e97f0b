package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show event statistics for the app namespace",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), getDBPath(), getNS())
	if err != nil {
		exitErr("stats", err)
	}

	if !textFormat() {
		printJSON(cmd.OutOrStdout(), stats)
		return
	}
	fmt.Printf("%s: %d events (%d bytes on disk)\n", stats.NS, stats.TotalEvents, stats.DBSizeBytes)
	for _, k := range stats.Kinds {
		fmt.Printf("  kind  %-14s %d\n", k.Name, k.Count)
	}
	for _, a := range stats.Actors {
		fmt.Printf("  actor %-14s %d\n", a.Name, a.Count)
	}
}
