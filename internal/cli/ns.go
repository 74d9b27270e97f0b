package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	nsCmd := &cobra.Command{
		Use:   "ns",
		Short: "App namespace management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all app namespaces",
		Run:   runNSList,
	}

	nsCmd.AddCommand(listCmd)
	RootCmd.AddCommand(nsCmd)
}

func runNSList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rows, err := s.ListNamespaces(cmd.Context())
	if err != nil {
		exitErr("list namespaces", err)
	}

	if !textFormat() {
		printJSON(cmd.OutOrStdout(), rows)
		return
	}
	for _, r := range rows {
		fmt.Printf("%-20s %6d events %4d actors\n", r.NS, r.Count, r.Actors)
	}
}
