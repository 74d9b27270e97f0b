// Package cli implements the spawn-mesh CLI commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rcliao/spawn-mesh/internal/bot"
	"github.com/rcliao/spawn-mesh/internal/config"
	"github.com/rcliao/spawn-mesh/internal/identity"
	"github.com/rcliao/spawn-mesh/internal/session"
	"github.com/rcliao/spawn-mesh/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	formatFlag string
	appFlag    string

	cfg    config.Config
	logger = slog.New(slog.DiscardHandler)
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "spawn-mesh",
	Short: "Reward packs, check-ins and a shared activity feed",
	Long:  "Open reward packs, check in daily and watch the shared mesh feed. SQLite-backed, single binary.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SPAWN_MESH_DB or ~/.spawn-mesh/mesh.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVarP(&appFlag, "app", "a", "", "App namespace (default: $SPAWN_MESH_APP_ID or spawn-mesh)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DBPath
}

func getNS() string {
	if appFlag != "" {
		return appFlag
	}
	return cfg.AppID
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath(), store.Options{
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})
}

func openIdentity(ctx context.Context, s *store.SQLiteStore) (*identity.LocalProvider, error) {
	return identity.NewLocalProvider(ctx, s)
}

// newSession wires a session over s from the loaded config. The bot starts
// disabled; callers enable it.
func newSession(ctx context.Context, s *store.SQLiteStore, onChange func(session.Change)) (*session.Session, error) {
	ids, err := openIdentity(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	table, err := cfg.Table()
	if err != nil {
		return nil, fmt.Errorf("reward table: %w", err)
	}
	return session.New(s, ids, session.Options{
		NS:           getNS(),
		FeedLimit:    cfg.FeedLimit,
		InventoryCap: cfg.InventoryCap,
		Table:        table,
		Bot: bot.Options{
			Interval:  cfg.BotInterval,
			Threshold: cfg.BotThreshold,
		},
		Logger:   logger,
		OnChange: onChange,
	}), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
