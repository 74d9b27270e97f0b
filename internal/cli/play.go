package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/rcliao/spawn-mesh/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run an interactive session",
		Long: `Run an interactive session on stdin. Commands:
  checkin      daily check-in
  open         open a reward pack
  bot on|off   toggle the automated actor
  feed         show the feed
  wallet       show the wallet
  diag         show diagnostics
  dismiss N    dismiss diagnostic N
  resub        resubscribe to the feed
  quit         leave`,
		Run: runPlay,
	}

	RootCmd.AddCommand(cmd)
}

func runPlay(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := &player{out: cmd.OutOrStdout()}
	sess, err := newSession(ctx, s, p.changed)
	if err != nil {
		exitErr("session", err)
	}
	defer sess.Close()
	p.sess = sess

	if err := sess.Start(ctx); err != nil {
		exitErr("start", err)
	}
	if cfg.BotEnabled {
		sess.SetBotActive(true)
	}
	p.println(formatWallet(sess.View().Wallet))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || p.exec(line) {
				return
			}
		}
	}
}

// player renders a session on a line-oriented console. Background changes
// and command output share one writer, so writes are serialized.
type player struct {
	sess *session.Session

	mu  sync.Mutex
	out io.Writer
}

func (p *player) println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, a...)
}

// changed prints what arrived in the background: bot actions and new
// diagnostics. Local commands print their own results.
func (p *player) changed(c session.Change) {
	if p.sess == nil {
		return
	}
	switch c {
	case session.ChangeBot:
		if v := p.sess.View(); len(v.Feed) > 0 {
			p.println(formatEntry(v.Feed[0]))
		}
	case session.ChangeDiagnostic:
		if d := p.sess.Diagnostics(); len(d) > 0 {
			p.println(fmt.Sprintf("! [%d] %s", len(d)-1, d[len(d)-1]))
		}
	}
}

// exec runs one command line and reports whether the player should quit.
func (p *player) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "checkin":
		res, err := p.sess.CheckIn()
		if err != nil {
			p.println("error:", err)
			return false
		}
		p.println(formatEvent(res.Event))
		p.println(formatWallet(res.Wallet))
	case "open":
		res, err := p.sess.OpenPack()
		if err != nil {
			p.println("error:", err)
			return false
		}
		p.println(fmt.Sprintf("** %s ** (+%d XP)", res.Tier.Label(), res.XPGain))
		p.println(formatWallet(res.Wallet))
	case "bot":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			p.println("usage: bot on|off")
			return false
		}
		if err := p.sess.SetBotActive(fields[1] == "on"); err != nil {
			p.println("error:", err)
			return false
		}
		p.println("bot", fields[1])
	case "feed":
		var b strings.Builder
		writeFeed(&b, p.sess.View().Feed)
		p.println(strings.TrimRight(b.String(), "\n"))
	case "wallet":
		v := p.sess.View()
		p.println(formatWallet(v.Wallet))
		inv := make([]string, len(v.Wallet.Inventory))
		for i, t := range v.Wallet.Inventory {
			inv[i] = t.Label()
		}
		if len(inv) > 0 {
			p.println("  " + strings.Join(inv, ", "))
		}
	case "diag":
		diags := p.sess.Diagnostics()
		if len(diags) == 0 {
			p.println("no diagnostics")
			return false
		}
		var b strings.Builder
		writeDiagnostics(&b, diags)
		p.println(strings.TrimRight(b.String(), "\n"))
	case "dismiss":
		if len(fields) != 2 {
			p.println("usage: dismiss N")
			return false
		}
		i, err := strconv.Atoi(fields[1])
		if err != nil || !p.sess.Dismiss(i) {
			p.println("no diagnostic", fields[1])
		}
	case "resub":
		if err := p.sess.Resubscribe(); err != nil {
			p.println("error:", err)
		}
	default:
		p.println("unknown command:", fields[0])
	}
	return false
}
