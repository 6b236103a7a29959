package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/RecordGate/internal/app"
	"github.com/dharsanguruparan/RecordGate/internal/config"
	"github.com/dharsanguruparan/RecordGate/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "recordgate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordgate",
		Short: "RecordGate gateway and operator CLI",
		Long: `RecordGate serves the record ingestion API and offers operator commands for
inspecting queue items and audit logs against the configured backends.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newJobsCmd(),
		newLogsCmd(),
	)
	return cmd
}

// withApp loads configuration, assembles the gateway and closes it after fn.
func withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return a.Run(cmd.Context())
			})
		},
	}
}

func newJobsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage queue items",
	}
	cmd.PersistentFlags().StringVar(&kind, "kind", "bulk", "Queue item kind: prio or bulk")

	checkKind := func() error {
		if kind != "prio" && kind != "bulk" {
			return errors.Errorf("unknown kind %q", kind)
		}
		return nil
	}

	show := &cobra.Command{
		Use:   "show <correlation-id>",
		Short: "Print a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKind(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				store := a.BulkStore
				if kind == "prio" {
					store = a.PrioStore
				}
				item, err := store.QueryByID(cmd.Context(), args[0], false)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}

	state := &cobra.Command{
		Use:   "state <correlation-id> [new-state]",
		Short: "Print or change the state of a bulk job",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if len(args) == 1 {
					st, err := a.Bulk.GetState(cmd.Context(), args[0], "")
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), st)
				}
				st, err := a.Bulk.UpdateState(cmd.Context(), args[0], "", args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <correlation-id>",
		Short: "Delete a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkKind(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if kind == "bulk" {
					return a.Bulk.Remove(cmd.Context(), args[0], "")
				}
				return a.PrioStore.Remove(cmd.Context(), args[0], "")
			})
		},
	}

	cmd.AddCommand(show, state, remove)
	return cmd
}

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect and manage audit logs",
	}

	show := &cobra.Command{
		Use:   "show <correlation-id>",
		Short: "Print the audit log entries of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				items, err := a.Logs.GetLogs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}

	var seq int
	protect := &cobra.Command{
		Use:   "protect <correlation-id>",
		Short: "Toggle protection of a job's audit log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Logs.ProtectLog(cmd.Context(), args[0], seq)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries updated\n", n)
				return nil
			})
		},
	}
	protect.Flags().IntVar(&seq, "blob-sequence", 0, "Only entries with this blob sequence (0 for all)")

	var force bool
	remove := &cobra.Command{
		Use:   "remove <correlation-id>",
		Short: "Delete a job's audit log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Logs.RemoveLog(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries removed\n", n)
				return nil
			})
		},
	}
	remove.Flags().BoolVar(&force, "force", false, "Remove protected entries too")

	cmd.AddCommand(show, protect, remove)
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
