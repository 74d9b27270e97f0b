package cli

import (
	"fmt"

	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the anonymous identity, signing in if needed",
		Run:   runWhoami,
	}

	RootCmd.AddCommand(cmd)
}

func runWhoami(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ids, err := openIdentity(cmd.Context(), s)
	if err != nil {
		exitErr("identity", err)
	}
	uid, err := ids.SignInAnonymously(cmd.Context())
	if err != nil {
		exitErr("sign in", err)
	}

	addr := identity.DisplayAddress(uid)
	if textFormat() {
		fmt.Printf("%s (%s)\n", addr, uid)
		return
	}
	printJSON(cmd.OutOrStdout(), map[string]string{"uid": uid, "address": addr})
}
