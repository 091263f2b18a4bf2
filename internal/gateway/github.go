// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
)

// ErrNotAFork is returned by GetFork for a repository without a parent.
var ErrNotAFork = errors.New("repository is not a fork")

// ErrNoDefaultBranch is returned by GetFork when the parent has no default
// branch, as with an empty upstream. There is nothing to merge from it.
var ErrNoDefaultBranch = errors.New("parent reports no default branch")

// Protocol selects which clone URL of a fork is used as its origin.
type Protocol string

const (
	ProtocolSSH   Protocol = "ssh"
	ProtocolHTTPS Protocol = "https"
)

// Lister defines the behavior of a gateway for discovering an organization's forks.
type Lister interface {
	// ListForks yields every fork of org, fetching further pages lazily.
	// On failure it yields a single error and stops.
	ListForks(ctx context.Context, org string) iter.Seq2[domain.ForkSummary, error]
	// GetFork fetches the full details of a fork, including its parent.
	GetFork(ctx context.Context, org, name string) (*domain.Fork, error)
}

// GitHubGateway is the REST implementation of the Lister interface.
type GitHubGateway struct {
	restClient *github.Client
	protocol   Protocol
	logger     *log.Logger
}

// newHTTPClient builds an authenticated client that waits out secondary rate limits.
func newHTTPClient(token string) (*http.Client, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}, nil
}

// NewGitHubGateway is a constructor that creates a new REST-backed Lister.
func NewGitHubGateway(token string, protocol Protocol, logger *log.Logger) (Lister, error) {
	httpClient, err := newHTTPClient(token)
	if err != nil {
		return nil, err
	}
	return &GitHubGateway{
		restClient: github.NewClient(httpClient),
		protocol:   protocol,
		logger:     logger,
	}, nil
}

func (g *GitHubGateway) ListForks(ctx context.Context, org string) iter.Seq2[domain.ForkSummary, error] {
	return func(yield func(domain.ForkSummary, error) bool) {
		g.logger.Printf("Fetching forks of %s using REST API...", org)
		opts := &github.RepositoryListByOrgOptions{
			Type:        "forks",
			ListOptions: github.ListOptions{PerPage: 100},
		}
		for {
			repos, resp, err := g.restClient.Repositories.ListByOrg(ctx, org, opts)
			if err != nil {
				yield(domain.ForkSummary{}, fmt.Errorf("failed to list forks with REST API: %w", err))
				return
			}
			for _, repo := range repos {
				if !yield(domain.ForkSummary{Name: repo.GetName()}, nil) {
					return
				}
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
			g.logger.Println("  Fetching next page of forks...")
		}
		g.logger.Println("Completed fetching forks.")
	}
}

func (g *GitHubGateway) GetFork(ctx context.Context, org, name string) (*domain.Fork, error) {
	repo, _, err := g.restClient.Repositories.Get(ctx, org, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s with REST API: %w", org, name, err)
	}
	if !repo.GetFork() || repo.Parent == nil {
		return nil, fmt.Errorf("%s/%s: %w", org, name, ErrNotAFork)
	}
	parent := repo.GetParent()
	cloneURL := repo.GetSSHURL()
	if g.protocol == ProtocolHTTPS {
		cloneURL = repo.GetCloneURL()
	}
	return newFork(repo.GetName(), cloneURL, parent.GetOwner().GetLogin(), parent.GetName(), parent.GetDefaultBranch())
}

// newFork validates the fields a sync depends on. The default branch is
// always taken from the parent, never assumed.
func newFork(name, cloneURL, owner, parentName, defaultBranch string) (*domain.Fork, error) {
	switch {
	case cloneURL == "":
		return nil, fmt.Errorf("%s: no clone URL reported", name)
	case owner == "" || parentName == "":
		return nil, fmt.Errorf("%s: incomplete parent metadata", name)
	case defaultBranch == "":
		return nil, fmt.Errorf("%s: parent %s/%s: %w", name, owner, parentName, ErrNoDefaultBranch)
	}
	return &domain.Fork{
		Name:     name,
		CloneURL: cloneURL,
		Parent: domain.Parent{
			Owner:         owner,
			Name:          parentName,
			DefaultBranch: defaultBranch,
		},
	}, nil
}
