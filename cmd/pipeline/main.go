package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-trip-pipeline/internal/config"
	"go-trip-pipeline/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the tripclean command tree. All subcommands share one set of
// persistent flags, resolved against TRIPCLEAN_* env vars and --config before running.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Default()
	root := &cobra.Command{
		Use:   "tripclean",
		Short: "tripclean - clean and enrich raw taxi trip data",
		Long: `Reads raw taxi trip CSV rows, rejects broken or implausible trips,
removes duration outliers, derives trip features, and loads the result
into sqlite, Postgres, MySQL, or csv/jsonl files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(viper.New(), cmd.Flags(), config.EnvPrefix)
		},
	}
	cfg.RegisterFlags(root.PersistentFlags())
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRunCommand(&cfg, stdout, stderr),
		newBoundsCommand(&cfg, stdout, stderr),
		newRunsCommand(&cfg, stdout),
	)
	return root
}

func newRunCommand(cfg *config.Config, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline from source to sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := newApp(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			ctx, cancel, err := a.runContext(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			return a.run(ctx)
		},
	}
}

func newBoundsCommand(cfg *config.Config, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "bounds",
		Short: "Sample the source and print the trip duration bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			a, err := newApp(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			ctx, cancel, err := a.runContext(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			return a.bounds(ctx)
		},
	}
}

func newRunsCommand(cfg *config.Config, stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show the report of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Ledger == "" {
				return fmt.Errorf("no ledger configured")
			}
			runs, err := store.NewRunStore(cmd.Context(), cfg.Ledger)
			if err != nil {
				return err
			}
			defer runs.Close()
			if len(args) == 1 {
				return showRun(cmd.Context(), runs, args[0], stdout)
			}
			return listRuns(cmd.Context(), runs, limit, stdout)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list.")
	return cmd
}

func listRuns(ctx context.Context, runs *store.RunStore, limit int, w io.Writer) error {
	list, err := runs.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tPROCESSED\tACCEPTED\tWRITTEN\tSOURCE")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Status, r.StartedAt.Format(time.DateTime), r.Processed, r.Accepted, r.Written, r.Source)
	}
	return tw.Flush()
}
