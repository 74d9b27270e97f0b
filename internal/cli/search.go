package cli

import (
	"strings"

	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search events by keyword",
		Long:  "Search event text, kinds and tags for matching text.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		NS:    getNS(),
		Query: query,
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	writeEvents(cmd.OutOrStdout(), results)
}
