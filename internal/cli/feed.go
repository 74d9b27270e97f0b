package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List recent feed events",
		Long:  "List recent events, newest first. With --follow, keep printing the feed each time it changes.",
		Run:   runFeed,
	}

	cmd.Flags().String("kind", "", "Filter by kind")
	cmd.Flags().StringP("tags", "t", "", "Filter by tags (comma-separated)")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: $SPAWN_MESH_FEED_LIMIT)")
	cmd.Flags().Bool("follow", false, "Subscribe and print every new batch until interrupted")

	RootCmd.AddCommand(cmd)
}

func runFeed(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	limit, _ := cmd.Flags().GetInt("limit")
	follow, _ := cmd.Flags().GetBool("follow")
	if limit <= 0 {
		limit = cfg.FeedLimit
	}
	tags := splitTags(tagsStr)

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if !follow {
		events, err := s.List(cmd.Context(), store.ListParams{
			NS:    getNS(),
			Kind:  model.EventKind(kind),
			Tags:  tags,
			Limit: limit,
		})
		if err != nil {
			exitErr("feed", err)
		}
		writeEvents(cmd.OutOrStdout(), events)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	failed := make(chan error, 1)
	sub, err := s.SubscribeRecent(ctx, store.SubscribeParams{NS: getNS(), Limit: limit}, store.Listener{
		OnBatch: func(batch []model.MeshEvent) {
			writeEvents(cmd.OutOrStdout(), filterEvents(batch, model.EventKind(kind), tags))
			if textFormat() {
				fmt.Println("--")
			}
		},
		OnError: func(err error) { failed <- err },
	})
	if err != nil {
		exitErr("subscribe", err)
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
	case err := <-failed:
		exitErr("follow", err)
	}
}

// filterEvents applies the list filters to a pushed batch.
func filterEvents(events []model.MeshEvent, kind model.EventKind, tags []string) []model.MeshEvent {
	var out []model.MeshEvent
	for _, e := range events {
		if kind != "" && e.Kind != kind {
			continue
		}
		match := true
		for _, t := range tags {
			if !e.HasTag(t) {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}
