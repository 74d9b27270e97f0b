package cli

import (
	"fmt"
	"os"

	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Complete the daily check-in",
		Long:  "Check in once: +1 streak and the daily XP bonus, published to the feed.",
		Run:   runCheckIn,
	}

	RootCmd.AddCommand(cmd)
}

// actionResult is what one-shot commands print after the session closes.
type actionResult struct {
	Wallet      model.Wallet         `json:"wallet"`
	Events      []model.MeshEvent    `json:"events"`
	Packs       []session.PackResult `json:"packs,omitempty"`
	Diagnostics []session.Diagnostic `json:"diagnostics,omitempty"`
}

func runCheckIn(cmd *cobra.Command, args []string) {
	runAction(cmd, func(sess *session.Session, res *actionResult) error {
		r, err := sess.CheckIn()
		if err != nil {
			return err
		}
		res.Events = append(res.Events, r.Event)
		return nil
	})
}

// runAction starts a session, applies fn, waits for its appends and prints
// the outcome.
func runAction(cmd *cobra.Command, fn func(*session.Session, *actionResult) error) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := newSession(cmd.Context(), s, nil)
	if err != nil {
		exitErr("session", err)
	}
	defer sess.Close()

	if err := sess.Start(cmd.Context()); err != nil {
		exitErr("start", err)
	}
	var res actionResult
	if err := fn(sess, &res); err != nil {
		exitErr(cmd.Name(), err)
	}
	sess.Close()

	v := sess.View()
	res.Wallet = v.Wallet
	res.Diagnostics = v.Diagnostics

	if !textFormat() {
		printJSON(cmd.OutOrStdout(), res)
		return
	}
	for _, p := range res.Packs {
		fmt.Printf("pack: %s (+%d XP)\n", p.Tier.Label(), p.XPGain)
	}
	for _, e := range res.Events {
		fmt.Println(formatEvent(e))
	}
	fmt.Println(formatWallet(res.Wallet))
	writeDiagnostics(os.Stderr, res.Diagnostics)
}
