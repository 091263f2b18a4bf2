package gateway

import (
	"context"
	"fmt"
	"iter"
	"log"

	"github.com/shurcooL/githubv4"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
)

// GraphQLGateway is the GraphQL implementation of the Lister interface.
type GraphQLGateway struct {
	graphqlClient *githubv4.Client
	protocol      Protocol
	logger        *log.Logger
}

// forkListQuery pages through an organization's forked repositories.
type forkListQuery struct {
	Organization struct {
		Repositories struct {
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
			Nodes []struct {
				Name string
			}
		} `graphql:"repositories(isFork: true, first: 100, after: $cursor)"`
	} `graphql:"organization(login: $org)"`
}

// forkDetailQuery fetches the clone URLs and parent of a single repository.
type forkDetailQuery struct {
	Repository struct {
		Name   string
		IsFork bool
		SSHURL string `graphql:"sshUrl"`
		URL    string `graphql:"url"`
		Parent struct {
			Name  string
			Owner struct {
				Login string
			}
			DefaultBranchRef struct {
				Name string
			}
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGraphQLGateway is a constructor that creates a new GraphQL-backed Lister.
func NewGraphQLGateway(token string, protocol Protocol, logger *log.Logger) (Lister, error) {
	httpClient, err := newHTTPClient(token)
	if err != nil {
		return nil, err
	}
	return &GraphQLGateway{
		graphqlClient: githubv4.NewClient(httpClient),
		protocol:      protocol,
		logger:        logger,
	}, nil
}

func (g *GraphQLGateway) ListForks(ctx context.Context, org string) iter.Seq2[domain.ForkSummary, error] {
	return func(yield func(domain.ForkSummary, error) bool) {
		g.logger.Printf("Fetching forks of %s using GraphQL API...", org)
		variables := map[string]interface{}{
			"org":    githubv4.String(org),
			"cursor": (*githubv4.String)(nil),
		}
		for {
			var q forkListQuery
			if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
				yield(domain.ForkSummary{}, fmt.Errorf("failed to execute GraphQL query for forks: %w", err))
				return
			}
			for _, node := range q.Organization.Repositories.Nodes {
				if !yield(domain.ForkSummary{Name: node.Name}, nil) {
					return
				}
			}
			if !q.Organization.Repositories.PageInfo.HasNextPage {
				break
			}
			variables["cursor"] = githubv4.NewString(q.Organization.Repositories.PageInfo.EndCursor)
			g.logger.Println("  Fetching next page of forks...")
		}
		g.logger.Println("Completed fetching forks.")
	}
}

func (g *GraphQLGateway) GetFork(ctx context.Context, org, name string) (*domain.Fork, error) {
	var q forkDetailQuery
	variables := map[string]interface{}{
		"owner": githubv4.String(org),
		"name":  githubv4.String(name),
	}
	if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
		return nil, fmt.Errorf("failed to execute GraphQL query for %s/%s: %w", org, name, err)
	}
	repo := q.Repository
	if !repo.IsFork || repo.Parent.Name == "" {
		return nil, fmt.Errorf("%s/%s: %w", org, name, ErrNotAFork)
	}
	cloneURL := repo.SSHURL
	if g.protocol == ProtocolHTTPS && repo.URL != "" {
		cloneURL = repo.URL + ".git"
	}
	return newFork(repo.Name, cloneURL, repo.Parent.Owner.Login, repo.Parent.Name, repo.Parent.DefaultBranchRef.Name)
}
