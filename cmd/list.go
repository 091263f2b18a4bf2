package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/gateway"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the forks of an organization and outputs as JSON",
	Long:  `Lists every fork owned by the organization together with its parent repository and default branch, and outputs the result in JSON format.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runList(cmd, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runList(cmd *cobra.Command, out io.Writer) error {
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

	forks, err := collectForks(ctx, lister, cfg.Org)
	if err != nil {
		return err
	}

	// Marshal the results into a pretty-printed JSON string.
	jsonData, err := json.MarshalIndent(forks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal forks to JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(jsonData))
	return err
}

// detailConcurrency bounds the repository lookups in flight.
const detailConcurrency = 8

// collectForks resolves the parent of every fork of org, keeping listing
// order. Repositories without a parent or an empty parent are left out.
func collectForks(ctx context.Context, lister gateway.Lister, org string) ([]domain.Fork, error) {
	var names []string
	for summary, err := range lister.ListForks(ctx, org) {
		if err != nil {
			return nil, err
		}
		names = append(names, summary.Name)
	}

	found := make([]*domain.Fork, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(detailConcurrency)
	for i, name := range names {
		eg.Go(func() error {
			fork, err := lister.GetFork(egCtx, org, name)
			if errors.Is(err, gateway.ErrNotAFork) || errors.Is(err, gateway.ErrNoDefaultBranch) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = fork
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	forks := []domain.Fork{}
	for _, fork := range found {
		if fork != nil {
			forks = append(forks, *fork)
		}
	}
	return forks, nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	addGitHubFlags(listCmd)
}
