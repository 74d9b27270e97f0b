package cli

import (
	"errors"
	"fmt"

	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve one event",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	evt, err := s.Get(cmd.Context(), getNS(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("get", fmt.Errorf("event %s not found in %s", args[0], getNS()))
	}
	if err != nil {
		exitErr("get", err)
	}

	if textFormat() {
		writeEvents(cmd.OutOrStdout(), []model.MeshEvent{*evt})
		return
	}
	printJSON(cmd.OutOrStdout(), evt)
}
