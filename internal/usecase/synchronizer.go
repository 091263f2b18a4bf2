package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/gitcli"
	"github.com/naka-gawa/gh-sync-forks/internal/workcopy"
)

// DefaultUpstreamBase is prefixed to "<owner>/<name>.git" to form the upstream remote URL.
const DefaultUpstreamBase = "https://github.com"

// SyncOptions configures a Synchronizer.
type SyncOptions struct {
	// Dir holds one working copy per fork, keyed by fork name.
	Dir string
	// Clean removes untracked files before checkout.
	Clean bool
	// Reset discards local modifications before checkout.
	Reset bool
	// UpstreamBase is the URL prefix of parent repositories.
	UpstreamBase string
}

// Synchronizer brings a single fork's working copy up to date with its
// parent and pushes the result back to the fork.
type Synchronizer struct {
	git       gitcli.Git
	inspector workcopy.Inspector
	opts      SyncOptions
	logger    *log.Logger
}

// NewSynchronizer creates a new Synchronizer instance.
func NewSynchronizer(git gitcli.Git, inspector workcopy.Inspector, opts SyncOptions, logger *log.Logger) *Synchronizer {
	if opts.UpstreamBase == "" {
		opts.UpstreamBase = DefaultUpstreamBase
	}
	return &Synchronizer{
		git:       git,
		inspector: inspector,
		opts:      opts,
		logger:    logger,
	}
}

// syncState is a position in the per-repository workflow. A broken working
// copy gets exactly one wipe-and-reclone: only stateUpdate may lead to
// stateRecover, and stateFinalUpdate has no failure transition.
type syncState int

const (
	stateResolve syncState = iota
	stateCreate
	stateUpdate
	stateRecover
	stateFinalUpdate
	stateSynced
)

// Sync runs the clone-or-recover-then-update workflow for fork.
// The returned result is never nil; its Err mirrors the returned error.
func (s *Synchronizer) Sync(ctx context.Context, fork domain.Fork) (*domain.SyncResult, error) {
	start := time.Now()
	path := workcopy.Path(s.opts.Dir, fork.Name)
	result := &domain.SyncResult{Name: fork.Name}

	fail := func(err error) (*domain.SyncResult, error) {
		result.Outcome = domain.OutcomeFailed
		result.Duration = time.Since(start)
		result.Err = err
		return result, err
	}

	state := stateResolve
	for {
		switch state {
		case stateResolve:
			present, err := workcopy.Resolve(path)
			if err != nil {
				return fail(&domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindFilesystem, Step: "resolve", Err: err})
			}
			if present {
				state = stateUpdate
			} else {
				state = stateCreate
			}

		case stateCreate:
			s.logger.Printf("[%s] Working copy absent, cloning...", fork.Name)
			if err := s.create(ctx, fork, path); err != nil {
				return fail(err)
			}
			result.Outcome = domain.OutcomeCreated
			state = stateFinalUpdate

		case stateUpdate:
			before, after, err := s.update(ctx, fork, path)
			result.Before = before
			if err != nil {
				s.logger.Printf("[%s] Update failed, recloning: %v", fork.Name, err)
				state = stateRecover
				continue
			}
			result.After = after
			result.Outcome = domain.OutcomeUpdated
			state = stateSynced

		case stateRecover:
			if err := workcopy.Remove(path); err != nil {
				return fail(&domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindFilesystem, Step: "remove", Err: err})
			}
			if err := s.create(ctx, fork, path); err != nil {
				return fail(err)
			}
			result.Outcome = domain.OutcomeRecovered
			state = stateFinalUpdate

		case stateFinalUpdate:
			_, after, err := s.update(ctx, fork, path)
			if err != nil {
				return fail(err)
			}
			result.After = after
			state = stateSynced

		case stateSynced:
			result.Duration = time.Since(start)
			s.logger.Printf("[%s] Synced (%s).", fork.Name, result.Outcome)
			return result, nil
		}
	}
}

// upstreamURL builds the parent's remote URL from its owner and name.
func (s *Synchronizer) upstreamURL(parent domain.Parent) string {
	return fmt.Sprintf("%s/%s/%s.git", strings.TrimSuffix(s.opts.UpstreamBase, "/"), parent.Owner, parent.Name)
}

// create clones the fork into path and registers the upstream remote.
func (s *Synchronizer) create(ctx context.Context, fork domain.Fork, path string) error {
	if err := s.git.Clone(ctx, fork.CloneURL, s.opts.Dir, fork.Name); err != nil {
		return &domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindCommand, Step: "clone", Err: err}
	}
	if err := s.git.AddRemote(ctx, path, gitcli.UpstreamRemote, s.upstreamURL(fork.Parent)); err != nil {
		return &domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindCommand, Step: "remote-add", Err: err}
	}
	return nil
}

type updateStep struct {
	name string
	run  func(ctx context.Context) error
}

// update runs the fixed update sequence, stopping at the first failing
// step. It returns the HEAD commits observed before and after.
func (s *Synchronizer) update(ctx context.Context, fork domain.Fork, path string) (string, string, error) {
	branch := fork.Parent.DefaultBranch
	upstreamRef := gitcli.UpstreamRemote + "/" + branch

	snapshot, err := s.inspector.Inspect(path, gitcli.OriginRemote, gitcli.UpstreamRemote)
	if err != nil {
		return "", "", &domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindFilesystem, Step: "inspect", Err: err}
	}
	before := snapshot.Head

	steps := []updateStep{
		{"fetch", func(ctx context.Context) error { return s.git.Fetch(ctx, path, gitcli.UpstreamRemote) }},
	}
	if s.opts.Clean {
		steps = append(steps, updateStep{"clean", func(ctx context.Context) error { return s.git.Clean(ctx, path) }})
	}
	if s.opts.Reset {
		steps = append(steps, updateStep{"reset", func(ctx context.Context) error { return s.git.Reset(ctx, path) }})
	}
	steps = append(steps,
		updateStep{"checkout", func(ctx context.Context) error { return s.git.Checkout(ctx, path, branch) }},
		updateStep{"merge", func(ctx context.Context) error { return s.git.Merge(ctx, path, upstreamRef) }},
		updateStep{"push-branches", func(ctx context.Context) error { return s.git.PushAll(ctx, path, gitcli.OriginRemote) }},
		updateStep{"push-tags", func(ctx context.Context) error { return s.git.PushTags(ctx, path, gitcli.OriginRemote) }},
	)

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return before, "", &domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindCommand, Step: step.name, Err: err}
		}
	}

	snapshot, err = s.inspector.Inspect(path)
	if err != nil {
		return before, "", &domain.SyncError{Repo: fork.Name, Kind: domain.ErrorKindFilesystem, Step: "inspect", Err: err}
	}
	return before, snapshot.Head, nil
}
