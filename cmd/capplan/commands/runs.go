package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the planning run history",
		Long: `Inspect planning runs recorded in the sqlite run store.

Runs are recorded when stores.sqlite_path is set in the configuration. Each
run keeps its horizon attempts, its unsat core when exhausted, and any
artifacts written to the store.`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsEventsCommand())
	cmd.AddCommand(newRunsArtifactCommand())
	cmd.AddCommand(newRunsDeleteCommand())

	return cmd
}

// openRunStore opens the configured run store for reading.
func openRunStore(ctx context.Context) (*stores.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Stores.SQLitePath == "" {
		return nil, errors.New("no run store configured: set stores.sqlite_path")
	}
	return stores.Open(ctx, stores.Config{Path: cfg.Stores.SQLitePath})
}

func newRunsListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Example: `  # List the 20 most recent runs
  capplan runs list --config capplan.yaml --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := openRunStore(cmd.Context())
			if err != nil {
				return err
			}
			defer runs.Close()

			list, err := runs.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREQUIRED\tSTATUS\tHORIZON\tBACKEND\tSTARTED")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Required, r.Status, r.Horizon, r.Backend, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runs, err := openRunStore(ctx)
			if err != nil {
				return err
			}
			defer runs.Close()

			run, err := runs.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			attempts, err := runs.ListAttempts(ctx, run.ID)
			if err != nil {
				return err
			}
			artifacts, err := runs.ListArtifacts(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Run       *stores.Run        `json:"run"`
					Attempts  []*stores.Attempt  `json:"attempts"`
					Artifacts []*stores.Artifact `json:"artifacts"`
				}{run, attempts, artifacts})
			}

			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  required: %s\n", run.Required)
			fmt.Fprintf(out, "  source:   %s\n", run.Source)
			fmt.Fprintf(out, "  backend:  %s\n", run.Backend)
			fmt.Fprintf(out, "  status:   %s at %d of %d happenings\n", run.Status, run.Horizon, run.MaxHappenings)
			if run.Error != nil {
				fmt.Fprintf(out, "  error:    %s\n", *run.Error)
			}
			var core []string
			if err := json.Unmarshal([]byte(run.UnsatCore), &core); err == nil && len(core) > 0 {
				fmt.Fprintln(out, "  unsat core:")
				for _, label := range core {
					fmt.Fprintf(out, "    %s\n", label)
				}
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HAPPENINGS\tOUTCOME\tASSERTIONS\tDURATION")
			for _, a := range attempts {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", a.Happenings, a.Outcome, a.Assertions, a.Duration)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, art := range artifacts {
				fmt.Fprintf(out, "Artifact %s (%s)\n", art.Kind, art.ContentType)
			}
			return nil
		},
	}

	return cmd
}

func newRunsEventsCommand() *cobra.Command {
	var (
		level  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the event log of a run",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show only the warnings of a run
  capplan runs events --config capplan.yaml --level warning 3f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runs, err := openRunStore(ctx)
			if err != nil {
				return err
			}
			defer runs.Close()

			if _, err := runs.GetRun(ctx, args[0]); err != nil {
				return err
			}
			var lvl *stores.EventLevel
			if level != "" {
				l := stores.EventLevel(level)
				lvl = &l
			}
			events, err := runs.GetEvents(ctx, &args[0], lvl, limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tLEVEL\tTYPE\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Type, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "only events of this level (debug, info, warning, error)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.Flags().IntVar(&offset, "offset", 0, "events to skip")

	return cmd
}

func newRunsArtifactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact <run-id> <kind>",
		Short: "Print a stored artifact of a run",
		Long: `Print one artifact of a run to stdout. Kind is one of problem, model
or plan. Only artifacts written to the sqlite store are available.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := stores.ArtifactKind(args[1])
			switch kind {
			case stores.ArtifactProblem, stores.ArtifactModel, stores.ArtifactPlan:
			default:
				return fmt.Errorf("unknown artifact kind %q: must be problem, model or plan", args[1])
			}

			ctx := cmd.Context()
			runs, err := openRunStore(ctx)
			if err != nil {
				return err
			}
			defer runs.Close()

			art, err := runs.GetArtifact(ctx, args[0], kind)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(art.Content)
			return err
		},
	}

	return cmd
}

func newRunsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs with their attempts, events and artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runs, err := openRunStore(ctx)
			if err != nil {
				return err
			}
			defer runs.Close()

			for _, id := range args {
				if err := runs.DeleteRun(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
			}
			return nil
		},
	}

	return cmd
}
