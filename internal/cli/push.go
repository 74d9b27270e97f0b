package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "push [text]",
		Short: "Append an event to the feed",
		Long:  "Append an event. Text can be a positional arg or piped via stdin.",
		Run:   runPush,
	}

	cmd.Flags().String("kind", string(model.KindCustom), "Kind: quest, pack_open, bot_trade, bot_scan, mesh_sync, custom")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	RootCmd.AddCommand(cmd)
}

func runPush(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")

	// Get text: positional arg first, then check stdin
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("push", fmt.Errorf("text is required (positional arg or stdin)"))
	}
	if !model.ValidKinds[model.EventKind(kind)] {
		exitErr("push", fmt.Errorf("unknown kind %q", kind))
	}

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

	evt, err := s.Append(cmd.Context(), store.AppendParams{
		NS:    getNS(),
		Kind:  model.EventKind(kind),
		Text:  strings.TrimSpace(text),
		Tags:  splitTags(tagsStr),
		Actor: identity.DisplayAddress(uid),
	})
	if err != nil {
		exitErr("push", err)
	}

	writeEvents(cmd.OutOrStdout(), []model.MeshEvent{*evt})
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
