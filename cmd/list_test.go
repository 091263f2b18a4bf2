package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/gh-sync-forks/internal/config"
	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/gateway"
)

// stubLister serves forks from a map; names without an entry are not forks.
type stubLister struct {
	names   []string
	forks   map[string]*domain.Fork
	listErr error
	getErr  error
	getErrs map[string]error
}

func (s *stubLister) ListForks(ctx context.Context, org string) iter.Seq2[domain.ForkSummary, error] {
	return func(yield func(domain.ForkSummary, error) bool) {
		for _, name := range s.names {
			if !yield(domain.ForkSummary{Name: name}, nil) {
				return
			}
		}
		if s.listErr != nil {
			yield(domain.ForkSummary{}, s.listErr)
		}
	}
}

func (s *stubLister) GetFork(ctx context.Context, org, name string) (*domain.Fork, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if err, ok := s.getErrs[name]; ok {
		return nil, err
	}
	fork, ok := s.forks[name]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", org, name, gateway.ErrNotAFork)
	}
	return fork, nil
}

func TestCollectForks(t *testing.T) {
	widget := &domain.Fork{
		Name:     "widget",
		CloneURL: "git@github.com:acme/widget.git",
		Parent:   domain.Parent{Owner: "origin-org", Name: "widget", DefaultBranch: "main"},
	}
	gadget := &domain.Fork{
		Name:     "gadget",
		CloneURL: "git@github.com:acme/gadget.git",
		Parent:   domain.Parent{Owner: "origin-org", Name: "gadget", DefaultBranch: "trunk"},
	}

	testCases := []struct {
		name        string
		lister      *stubLister
		expected    []domain.Fork
		expectError string
	}{
		{
			name:     "non-forks are left out",
			lister:   &stubLister{names: []string{"widget", "loner"}, forks: map[string]*domain.Fork{"widget": widget}},
			expected: []domain.Fork{*widget},
		},
		{
			name: "listing order is kept and empty parents are left out",
			lister: &stubLister{
				names:   []string{"gadget", "hollow", "widget"},
				forks:   map[string]*domain.Fork{"widget": widget, "gadget": gadget},
				getErrs: map[string]error{
					"hollow": fmt.Errorf("hollow: parent origin-org/hollow: %w", gateway.ErrNoDefaultBranch),
				},
			},
			expected: []domain.Fork{*gadget, *widget},
		},
		{
			name:     "no forks yields an empty list",
			lister:   &stubLister{},
			expected: []domain.Fork{},
		},
		{
			name:        "error case - listing fails",
			lister:      &stubLister{listErr: errors.New("401 Bad credentials")},
			expectError: "401 Bad credentials",
		},
		{
			name:        "error case - details fail",
			lister:      &stubLister{names: []string{"widget"}, getErr: errors.New("502 Bad Gateway")},
			expectError: "502 Bad Gateway",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			forks, err := collectForks(context.Background(), tc.lister, "acme")

			if tc.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, forks)
		})
	}
}

func TestWriteReport(t *testing.T) {
	results := []*domain.SyncResult{{Name: "widget", Outcome: domain.OutcomeUpdated}}

	var jsonOut bytes.Buffer
	require.NoError(t, writeReport(&jsonOut, config.OutputJSON, results))
	assert.Contains(t, jsonOut.String(), `"name": "widget"`)

	var textOut bytes.Buffer
	require.NoError(t, writeReport(&textOut, config.OutputText, results))
	assert.Contains(t, textOut.String(), "1 repositories:")
	assert.NotContains(t, textOut.String(), "{")
}
