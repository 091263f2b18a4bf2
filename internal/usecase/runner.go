// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"go.uber.org/multierr"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/gateway"
)

// ForkSyncer syncs a single fork.
type ForkSyncer interface {
	Sync(ctx context.Context, fork domain.Fork) (*domain.SyncResult, error)
}

// Recorder observes the result of every repository.
type Recorder interface {
	Observe(result *domain.SyncResult)
}

type nopRecorder struct{}

func (nopRecorder) Observe(*domain.SyncResult) {}

// RunOptions configures a Runner.
type RunOptions struct {
	// ContinueOnError keeps going after a repository fails and reports
	// every failure at the end. By default the first failure halts the run.
	ContinueOnError bool
	// Only restricts the run to the named forks when non-empty.
	Only []string
	// Skip excludes the named forks.
	Skip []string
}

// Runner is the use case for syncing every fork of an organization.
// It visits forks one at a time in listing order.
type Runner struct {
	lister   gateway.Lister
	syncer   ForkSyncer
	recorder Recorder
	opts     RunOptions
	logger   *log.Logger
}

// NewRunner creates a new Runner instance. recorder may be nil.
func NewRunner(lister gateway.Lister, syncer ForkSyncer, recorder Recorder, opts RunOptions, logger *log.Logger) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Runner{
		lister:   lister,
		syncer:   syncer,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
	}
}

// Run syncs every fork of org. Listing and API failures abort the run.
// Cancelling ctx stops the run before the next repository; the repository
// in flight always finishes its step sequence.
func (r *Runner) Run(ctx context.Context, org string) ([]*domain.SyncResult, error) {
	r.logger.Printf("Usecase: Starting sync of forks in %s...", org)

	var results []*domain.SyncResult
	var errs error

	for summary, err := range r.lister.ListForks(ctx, org) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, multierr.Append(errs, &domain.SyncError{Repo: org, Kind: domain.ErrorKindCancelled, Err: ctxErr})
		}
		if err != nil {
			return results, multierr.Append(errs, &domain.SyncError{Repo: org, Kind: domain.ErrorKindAPI, Step: "list", Err: err})
		}

		if !r.selected(summary.Name) {
			r.logger.Printf("[%s] Skipped by filter.", summary.Name)
			results = append(results, r.record(&domain.SyncResult{Name: summary.Name, Outcome: domain.OutcomeSkipped}))
			continue
		}

		fork, err := r.lister.GetFork(ctx, org, summary.Name)
		if errors.Is(err, gateway.ErrNotAFork) || errors.Is(err, gateway.ErrNoDefaultBranch) {
			r.logger.Printf("[%s] Skipped: %v", summary.Name, err)
			results = append(results, r.record(&domain.SyncResult{Name: summary.Name, Outcome: domain.OutcomeSkipped}))
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = &domain.SyncError{Repo: summary.Name, Kind: domain.ErrorKindCancelled, Err: ctxErr}
			} else {
				err = &domain.SyncError{Repo: summary.Name, Kind: domain.ErrorKindAPI, Step: "get", Err: err}
			}
			return results, multierr.Append(errs, err)
		}

		r.logger.Printf("[%s] Syncing with %s (%s)...", fork.Name, fork.Parent.FullName(), fork.Parent.DefaultBranch)
		// The working copy must not be left half-updated, so run
		// cancellation is only observed between repositories.
		result, err := r.syncer.Sync(context.WithoutCancel(ctx), *fork)
		if result == nil {
			result = &domain.SyncResult{Name: fork.Name, Outcome: domain.OutcomeFailed, Err: err}
		}
		results = append(results, r.record(result))
		if err != nil {
			if !r.opts.ContinueOnError {
				return results, err
			}
			r.logger.Printf("[%s] Failed, continuing: %v", fork.Name, err)
			errs = multierr.Append(errs, err)
		}
	}

	r.logger.Printf("Usecase: Sync complete, %d repositories visited.", len(results))
	if errs != nil {
		return results, fmt.Errorf("%d repositories failed: %w", len(multierr.Errors(errs)), errs)
	}
	return results, nil
}

func (r *Runner) selected(name string) bool {
	if len(r.opts.Only) > 0 && !slices.Contains(r.opts.Only, name) {
		return false
	}
	return !slices.Contains(r.opts.Skip, name)
}

func (r *Runner) record(result *domain.SyncResult) *domain.SyncResult {
	r.recorder.Observe(result)
	return result
}
