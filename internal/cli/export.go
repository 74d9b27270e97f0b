package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as JSON",
		Long:  "Export events as a JSON array, oldest first. Use --app to pick a namespace, or --all for every namespace.",
		Run:   runExport,
	}

	cmd.Flags().Bool("all", false, "Export every namespace")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	ns := getNS()
	if all {
		ns = ""
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	events, err := s.ExportAll(cmd.Context(), ns)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd.OutOrStdout(), events)
}
