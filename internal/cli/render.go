package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rcliao/spawn-mesh/internal/feed"
	"github.com/rcliao/spawn-mesh/internal/model"
	"github.com/rcliao/spawn-mesh/internal/session"
)

func textFormat() bool { return formatFlag == "text" }

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func formatEvent(e model.MeshEvent) string {
	line := fmt.Sprintf("%s  %-9s %-14s %s", e.OccurredAt.Local().Format(time.TimeOnly), e.Kind, e.Actor, e.Text)
	if len(e.Tags) > 0 {
		line += "  #" + strings.Join(e.Tags, " #")
	}
	return line
}

func formatEntry(e feed.Entry) string {
	mark := " "
	if e.State == feed.Optimistic {
		mark = "~"
	}
	return mark + " " + formatEvent(e.Event)
}

func formatWallet(w model.Wallet) string {
	addr := w.Address
	if addr == "" {
		addr = model.AnonActor
	}
	return fmt.Sprintf("%s  XP %d  SPN %d  streak %d  items %d", addr, w.XP, w.SPN, w.Streak, len(w.Inventory))
}

func writeEvents(w io.Writer, events []model.MeshEvent) {
	if !textFormat() {
		if events == nil {
			events = []model.MeshEvent{}
		}
		printJSON(w, events)
		return
	}
	for _, e := range events {
		fmt.Fprintln(w, formatEvent(e))
	}
}

func writeFeed(w io.Writer, entries []feed.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "(feed is empty)")
		return
	}
	for _, e := range entries {
		fmt.Fprintln(w, formatEntry(e))
	}
}

func writeDiagnostics(w io.Writer, diags []session.Diagnostic) {
	for i, d := range diags {
		fmt.Fprintf(w, "! [%d] %s\n", i, d)
	}
}
