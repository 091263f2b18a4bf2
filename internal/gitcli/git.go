// Package gitcli drives the git command-line client for the operations
// needed to keep a fork's working copy in step with its upstream.
package gitcli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/naka-gawa/gh-sync-forks/internal/executor"
)

const (
	// OriginRemote is the remote pointing at the fork itself.
	OriginRemote = "origin"
	// UpstreamRemote is the remote pointing at the fork's parent.
	UpstreamRemote = "upstream"
)

// Git defines the version-control operations applied to a working copy.
// Every method blocks until the underlying process has exited.
type Git interface {
	Clone(ctx context.Context, url, parentDir, name string) error
	AddRemote(ctx context.Context, dir, name, url string) error
	Fetch(ctx context.Context, dir, remote string) error
	Clean(ctx context.Context, dir string) error
	Reset(ctx context.Context, dir string) error
	Checkout(ctx context.Context, dir, branch string) error
	Merge(ctx context.Context, dir, ref string) error
	PushAll(ctx context.Context, dir, remote string) error
	PushTags(ctx context.Context, dir, remote string) error
}

// CLI is the concrete implementation of the Git interface backed by the git binary.
type CLI struct {
	runner  executor.Runner
	binary  string
	env     map[string]string
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a CLI.
type Option func(*CLI)

// WithBinary overrides the git executable. Defaults to "git" on PATH.
func WithBinary(path string) Option {
	return func(c *CLI) {
		c.binary = path
	}
}

// WithTimeout bounds every git invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *CLI) {
		c.timeout = d
	}
}

// WithIdentity sets the author and committer used for merge commits.
func WithIdentity(name, email string) Option {
	return func(c *CLI) {
		if name != "" {
			c.env["GIT_AUTHOR_NAME"] = name
			c.env["GIT_COMMITTER_NAME"] = name
		}
		if email != "" {
			c.env["GIT_AUTHOR_EMAIL"] = email
			c.env["GIT_COMMITTER_EMAIL"] = email
		}
	}
}

// New creates a CLI that runs git through runner.
func New(runner executor.Runner, logger *log.Logger, opts ...Option) *CLI {
	c := &CLI{
		runner: runner,
		binary: "git",
		env: map[string]string{
			// Never block on a credential prompt or an editor.
			"GIT_TERMINAL_PROMPT": "0",
			"GIT_MERGE_AUTOEDIT":  "no",
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone clones url into parentDir/name.
func (c *CLI) Clone(ctx context.Context, url, parentDir, name string) error {
	return c.run(ctx, parentDir, "clone", url, name)
}

// AddRemote registers a new remote in the working copy at dir.
func (c *CLI) AddRemote(ctx context.Context, dir, name, url string) error {
	return c.run(ctx, dir, "remote", "add", name, url)
}

// Fetch fetches all refs from remote.
func (c *CLI) Fetch(ctx context.Context, dir, remote string) error {
	return c.run(ctx, dir, "fetch", remote)
}

// Clean force-removes untracked files and directories.
func (c *CLI) Clean(ctx context.Context, dir string) error {
	return c.run(ctx, dir, "clean", "-f", "-d")
}

// Reset discards local modifications by hard-resetting to HEAD.
func (c *CLI) Reset(ctx context.Context, dir string) error {
	return c.run(ctx, dir, "reset", "--hard", "HEAD")
}

// Checkout switches to branch. When no local branch exists yet, one is
// created tracking origin/<branch>, or upstream/<branch> when the fork
// does not carry it.
func (c *CLI) Checkout(ctx context.Context, dir, branch string) error {
	exists, err := c.refExists(ctx, dir, "refs/heads/"+branch)
	if err != nil {
		return err
	}
	if exists {
		return c.run(ctx, dir, "checkout", branch)
	}
	for _, remote := range []string{OriginRemote, UpstreamRemote} {
		remoteRef := remote + "/" + branch
		exists, err := c.refExists(ctx, dir, "refs/remotes/"+remoteRef)
		if err != nil {
			return err
		}
		if exists {
			return c.run(ctx, dir, "checkout", "-b", branch, "--track", remoteRef)
		}
	}
	return fmt.Errorf("branch %q not found locally or on any remote", branch)
}

// Merge merges ref into the checked-out branch. Conflicting hunks are
// resolved in favor of ref and no editor is opened.
func (c *CLI) Merge(ctx context.Context, dir, ref string) error {
	return c.run(ctx, dir, "merge", "--no-edit", "--strategy-option=theirs", ref)
}

// PushAll pushes every local branch to remote.
func (c *CLI) PushAll(ctx context.Context, dir, remote string) error {
	return c.run(ctx, dir, "push", "--all", remote)
}

// PushTags pushes every tag to remote.
func (c *CLI) PushTags(ctx context.Context, dir, remote string) error {
	return c.run(ctx, dir, "push", "--tags", remote)
}

// refExists reports whether ref resolves. rev-parse exits 1 for a missing ref.
func (c *CLI) refExists(ctx context.Context, dir, ref string) (bool, error) {
	_, err := c.exec(ctx, dir, "rev-parse", "--verify", "--quiet", ref)
	if err == nil {
		return true, nil
	}
	var cmdErr *executor.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

func (c *CLI) run(ctx context.Context, dir string, args ...string) error {
	c.logger.Printf("  git %v (in %s)", args, dir)
	_, err := c.exec(ctx, dir, args...)
	return err
}

func (c *CLI) exec(ctx context.Context, dir string, args ...string) (*executor.Result, error) {
	result, err := c.runner.Run(ctx, c.binary, args,
		executor.WithWorkingDir(dir),
		executor.WithEnv(c.env),
		executor.WithTimeout(c.timeout),
		executor.WithLogger(c.logger),
	)
	if err != nil {
		return result, fmt.Errorf("failed to run git %s: %w", args[0], err)
	}
	return result, nil
}
