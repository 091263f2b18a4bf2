package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/gh-sync-forks/internal/config"
	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/executor"
	"github.com/naka-gawa/gh-sync-forks/internal/gitcli"
	"github.com/naka-gawa/gh-sync-forks/internal/metrics"
	"github.com/naka-gawa/gh-sync-forks/internal/report"
	"github.com/naka-gawa/gh-sync-forks/internal/usecase"
	"github.com/naka-gawa/gh-sync-forks/internal/workcopy"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Syncs every fork of an organization with its upstream",
	Long: `Clones or updates a working copy of every fork in the organization, merges the
parent's default branch into it (conflicts are resolved in favor of upstream),
and pushes all branches and tags back to the fork.

Interrupting the run lets the repository in progress finish before stopping.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSync(cmd, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runSync(cmd *cobra.Command, out io.Writer) error {
	logger := newLogger(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lister, err := newLister(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	if err := workcopy.EnsureRoot(cfg.Dir); err != nil {
		return err
	}

	// Inject dependencies and run the main business logic.
	git := gitcli.New(executor.New(), logger,
		gitcli.WithTimeout(cfg.OpTimeout),
		gitcli.WithIdentity(cfg.GitName, cfg.GitEmail),
	)
	synchronizer := usecase.NewSynchronizer(git, workcopy.NewInspector(), usecase.SyncOptions{
		Dir:          cfg.Dir,
		Clean:        cfg.Clean,
		Reset:        cfg.Reset,
		UpstreamBase: cfg.UpstreamBase,
	}, logger)
	syncMetrics := metrics.New()
	runner := usecase.NewRunner(lister, synchronizer, syncMetrics, usecase.RunOptions{
		ContinueOnError: cfg.ContinueOnError,
		Only:            cfg.Only,
		Skip:            cfg.Skip,
	}, logger)

	results, runErr := runner.Run(ctx, cfg.Org)

	if err := writeReport(out, cfg.Output, results); err != nil {
		return err
	}
	if cfg.MetricsFile != "" {
		syncMetrics.MarkCompleted(time.Now())
		if err := syncMetrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Printf("Warning: %v", err)
		}
	}
	return runErr
}

func writeReport(w io.Writer, output string, results []*domain.SyncResult) error {
	if output == config.OutputJSON {
		return report.WriteJSON(w, results)
	}
	return report.WriteText(w, results)
}

func init() {
	rootCmd.AddCommand(syncCmd)
	addGitHubFlags(syncCmd)
	addSyncFlags(syncCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().String("dir", d.Dir, "Directory holding one working copy per fork")
	cmd.Flags().Bool("clean", false, "Remove untracked files before merging")
	cmd.Flags().Bool("reset", false, "Discard local modifications before merging")
	cmd.Flags().String("upstream-base", d.UpstreamBase, "URL prefix of upstream repositories")
	cmd.Flags().Duration("op-timeout", d.OpTimeout, "Timeout for a single git operation (0 disables)")
	cmd.Flags().Bool("continue-on-error", false, "Keep syncing after a repository fails and report all failures")
	cmd.Flags().StringSlice("only", nil, "Sync only the named forks")
	cmd.Flags().StringSlice("skip", nil, "Skip the named forks")
	cmd.Flags().String("git-name", "", "Author and committer name for merge commits")
	cmd.Flags().String("git-email", "", "Author and committer email for merge commits")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	cmd.Flags().String("output", d.Output, "Report format (text|json)")
}
