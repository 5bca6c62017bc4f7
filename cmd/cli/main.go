package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jakechorley/chorewheel/internal/config"
	"github.com/jakechorley/chorewheel/pkg/bot"
	"github.com/jakechorley/chorewheel/pkg/core/engine"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
	"github.com/jakechorley/chorewheel/pkg/db"
	"github.com/jakechorley/chorewheel/pkg/filestore"
	"github.com/jakechorley/chorewheel/pkg/postgres"
	"github.com/jakechorley/chorewheel/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg        *config.Config
	store      db.SnapshotStore
	pg         *postgres.DB
	engine     *engine.Engine
	dispatcher *bot.Dispatcher
	logger     *zap.Logger
	ctx        context.Context
}

var (
	env string
	app *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chorewheel",
		Short: "Chorewheel - chore rotation engine",
		Long:  `Tracks whose turn it is, mediates swap requests, and handles punishment petitions for a fixed chore rotation.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil && app.logger != nil {
				app.logger.Sync()
			}
			if app != nil && app.pg != nil {
				app.pg.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment suffix for config and logs (test, prod, ...)")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, snapshot store, and the engine
func initApp(cmd *cobra.Command) error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	app.logger, err = logging.InitLogger(logEnv())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Starting chorewheel", zap.String("environment", env))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			app.logger.Debug("Flag set", zap.String("flag", f.Name), zap.String("value", f.Value.String()))
		}
	})

	app.cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	if app.cfg.PostgresURL != "" {
		app.logger.Info("Connecting to postgres snapshot store")
		app.pg, err = postgres.NewDB(app.ctx, app.cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		app.store = app.pg
	} else {
		app.logger.Info("Using file snapshot store", zap.String("path", app.cfg.SnapshotPath))
		app.store, err = filestore.NewStore(app.cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
	}

	members := make([]rotation.Member, 0, len(app.cfg.Members))
	for _, m := range app.cfg.Members {
		members = append(members, rotation.Member{ID: m.ID, DisplayName: m.DisplayName})
	}

	app.engine, err = engine.New(engine.Options{
		Members:                 members,
		AuthorizedCallers:       app.cfg.AuthorizedCallers,
		Admins:                  app.cfg.Admins,
		MaxAuthorized:           app.cfg.MaxAuthorized,
		MaxAdmins:               app.cfg.MaxAdmins,
		Aliases:                 app.cfg.Aliases,
		RequirePunishmentReason: app.cfg.RequirePunishmentReason,
		ReminderRule:            app.cfg.ReminderRule,
		Store:                   app.store,
		Logger:                  app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	// A stored snapshot supersedes the configured seed state.
	snap, err := app.store.Load(app.ctx)
	switch {
	case err == nil:
		app.engine.Restore(snap)
		app.logger.Info("Restored snapshot",
			zap.String("snapshot_id", snap.ID),
			zap.Time("taken_at", snap.TakenAt))
	case errors.Is(err, db.ErrNoSnapshot):
		app.logger.Info("No snapshot found, starting from configuration")
	default:
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	app.dispatcher = bot.NewDispatcher(app.engine, app.logger)
	return nil
}

func logEnv() string {
	if env == "" {
		return "local"
	}
	return env
}

// operator returns the caller identity for local commands.
func operator(override string) string {
	if override != "" {
		return override
	}
	if app.cfg.OperatorID != "" {
		return app.cfg.OperatorID
	}
	return "operator"
}

func printReply(reply bot.Reply) {
	if reply.Text == "" {
		return
	}
	fmt.Println(reply.Text)
	for _, b := range reply.Buttons {
		fmt.Printf("  [%s → %s]\n", b.Label, b.Token)
	}
}

func chatCmd() *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start a local chat session against the engine",
		Long: `Start a local chat session. Each line is dispatched as a chat message
from the configured operator identity.

Type 'as <caller-id>' to impersonate another caller, 'exit' or 'quit' to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller := operator(as)
			fmt.Printf("Chatting as %s. Type 'help' for commands, 'exit' to leave.\n", caller)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}
				if rest, ok := strings.CutPrefix(line, "as "); ok {
					caller = strings.TrimSpace(rest)
					fmt.Printf("Now chatting as %s\n", caller)
					continue
				}

				reply := app.dispatcher.Handle(app.ctx, bot.Event{
					CallerID:    caller,
					DisplayName: caller,
					Text:        line,
				})
				printReply(reply)
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Caller id to chat as (defaults to operatorID)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the rotation queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printReply(app.dispatcher.Handle(app.ctx, bot.Event{
				CallerID: operator(""),
				Text:     "status",
			}))
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show punishment request history and stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, text := range []string{"punishments", "punishments stats"} {
				printReply(app.dispatcher.Handle(app.ctx, bot.Event{
					CallerID: operator(""),
					Text:     text,
				}))
			}
			return nil
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [days]",
		Short: "Remove decided punishment requests older than the given days",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := app.cfg.PurgeAfterDays
			if len(args) > 0 {
				var err error
				days, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("days must be a number: %w", err)
				}
			}
			if days <= 0 {
				return fmt.Errorf("no purge age given and purgeAfterDays is not configured")
			}

			removed := app.engine.PurgeOldPunishments(app.ctx, days)
			fmt.Printf("Removed %d decided request(s) older than %d day(s).\n", removed, days)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.pg == nil {
				return fmt.Errorf("postgresURL is not configured")
			}
			if err := app.pg.RunMigrations(app.ctx); err != nil {
				return err
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	}
}
