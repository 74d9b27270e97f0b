package cli

import (
	"fmt"

	"github.com/rcliao/spawn-mesh/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open reward packs",
		Run:   runOpen,
	}

	cmd.Flags().IntP("count", "c", 1, "Number of packs to open")

	RootCmd.AddCommand(cmd)
}

func runOpen(cmd *cobra.Command, args []string) {
	count, _ := cmd.Flags().GetInt("count")
	if count < 1 {
		exitErr("open", fmt.Errorf("count must be at least 1, got %d", count))
	}

	runAction(cmd, func(sess *session.Session, res *actionResult) error {
		for range count {
			p, err := sess.OpenPack()
			if err != nil {
				return err
			}
			res.Packs = append(res.Packs, p)
			res.Events = append(res.Events, p.Event)
		}
		return nil
	})
}
