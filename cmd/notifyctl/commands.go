package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-notify-engine/internal/app"
	"github.com/go-notify-engine/internal/config"
	"github.com/go-notify-engine/internal/domain"
	jwtinfra "github.com/go-notify-engine/internal/infrastructure/jwt"
)

// rootCommand builds the CLI over cfg. Output goes to out so tests can read it.
func rootCommand(cfg *config.Config, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Operate the notification engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "store backend: dynamo or sql")

	root.AddCommand(
		bootstrapCommand(cfg),
		dispatchCommand(cfg),
		scheduleTrialCommand(cfg),
		statsCommand(cfg),
		memberCommand(cfg),
		tokenCommand(cfg),
		reportCommand(cfg),
	)
	return root
}

// withApp opens the engine for the duration of fn.
func withApp(ctx context.Context, cfg *config.Config, fn func(*app.App) error) error {
	a, err := app.New(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func bootstrapCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create DynamoDB tables or migrate the SQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				if err := a.Stores.Bootstrap(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", a.Stores.Backend)
				return nil
			})
		},
	}
}

func dispatchCommand(cfg *config.Config) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one processPending pass",
		Long: `Run one dispatch pass, the same work the cron endpoint triggers.

Examples:
  notifyctl dispatch
  notifyctl dispatch --at=2026-01-02T15:04:05Z`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				report, err := a.Dispatcher.ProcessPending(cmd.Context(), now)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant to dispatch as (default now)")
	return cmd
}

func scheduleTrialCommand(cfg *config.Config) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "schedule-trial",
		Short: "Schedule the trial onboarding sequence for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				ids, err := a.Trials.ScheduleTrialNotifications(cmd.Context(), userID, time.Now().UTC())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"notificationIds": ids})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func statsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print raw row and distinct group counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				rows, err := a.Stores.Notifications.CountRows(cmd.Context(), domain.PageFilter{})
				if err != nil {
					return err
				}
				groups, err := a.Stores.Notifications.CountGroups(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"rows": rows, "groups": groups})
			})
		},
	}
}

func memberCommand(cfg *config.Config) *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage organization membership"}
	var org, userID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to an organization",
		Long: "Add a user to an organization. The membership cache is per process: running API\n" +
			"servers see the change once their cached entry expires (MEMBERSHIP_CACHE_TTL).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				if err := a.Members.AddMember(cmd.Context(), org, userID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s (running servers refresh within %s)\n",
					userID, org, cfg.MembershipCacheTTL)
				return nil
			})
		},
	}
	add.Flags().StringVar(&org, "org", "", "organization id")
	add.Flags().StringVar(&userID, "user", "", "user id")
	_ = add.MarkFlagRequired("org")
	_ = add.MarkFlagRequired("user")
	member.AddCommand(add)
	return member
}

func tokenCommand(cfg *config.Config) *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session JWT for an operator or a test client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := jwtinfra.NewProvider(cfg)
			if err != nil {
				return err
			}
			signed, err := p.Sign(userID, role, "cli")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", domain.RoleUser, "role claim: user or admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reportCommand(cfg *config.Config) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print an archived dispatch report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(a *app.App) error {
				if a.Reports == nil {
					return errors.New("REPORT_BUCKET is not configured")
				}
				report, err := a.Reports.Fetch(cmd.Context(), key)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "object key, e.g. dispatch-reports/2026/01/02/<runId>.json")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
