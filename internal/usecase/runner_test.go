package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
	"github.com/naka-gawa/gh-sync-forks/internal/gateway"
)

// mockLister is a mock implementation of the gateway.Lister interface.
// It serves a fixed list of forks, optionally failing after them.
type mockLister struct {
	mock.Mock
	names   []string
	listErr error
}

func (m *mockLister) ListForks(ctx context.Context, org string) iter.Seq2[domain.ForkSummary, error] {
	return func(yield func(domain.ForkSummary, error) bool) {
		for _, name := range m.names {
			if !yield(domain.ForkSummary{Name: name}, nil) {
				return
			}
		}
		if m.listErr != nil {
			yield(domain.ForkSummary{}, m.listErr)
		}
	}
}

func (m *mockLister) GetFork(ctx context.Context, org, name string) (*domain.Fork, error) {
	args := m.Called(org, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fork), args.Error(1)
}

// mockSyncer is a mock implementation of the ForkSyncer interface.
type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Sync(ctx context.Context, fork domain.Fork) (*domain.SyncResult, error) {
	args := m.Called(ctx, fork.Name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncResult), args.Error(1)
}

type recordingRecorder struct {
	outcomes []domain.Outcome
}

func (r *recordingRecorder) Observe(result *domain.SyncResult) {
	r.outcomes = append(r.outcomes, result.Outcome)
}

func forkNamed(name string) *domain.Fork {
	return &domain.Fork{
		Name:     name,
		CloneURL: fmt.Sprintf("git@github.com:acme/%s.git", name),
		Parent:   domain.Parent{Owner: "origin-org", Name: name, DefaultBranch: "main"},
	}
}

func outcomes(results []*domain.SyncResult) map[string]domain.Outcome {
	out := make(map[string]domain.Outcome, len(results))
	for _, r := range results {
		out[r.Name] = r.Outcome
	}
	return out
}

// TestRunner_Run uses a table-driven approach to test the runner.
func TestRunner_Run(t *testing.T) {
	errSync := &domain.SyncError{Repo: "gadget", Kind: domain.ErrorKindCommand, Step: "merge", Err: errors.New("conflict")}

	testCases := []struct {
		name           string
		forks          []string
		listErr        error
		opts           RunOptions
		setup          func(l *mockLister, s *mockSyncer)
		expectOutcomes map[string]domain.Outcome
		expectErrMsg   string
	}{
		{
			name:  "happy path - every fork is visited once",
			forks: []string{"widget", "gadget", "sprocket"},
			setup: func(l *mockLister, s *mockSyncer) {
				for _, name := range []string{"widget", "gadget", "sprocket"} {
					l.On("GetFork", "acme", name).Return(forkNamed(name), nil).Once()
					s.On("Sync", mock.Anything, name).Return(&domain.SyncResult{Name: name, Outcome: domain.OutcomeUpdated}, nil).Once()
				}
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget":   domain.OutcomeUpdated,
				"gadget":   domain.OutcomeUpdated,
				"sprocket": domain.OutcomeUpdated,
			},
		},
		{
			name:  "repository without a parent is skipped",
			forks: []string{"widget", "loner"},
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
				l.On("GetFork", "acme", "loner").Return(nil, fmt.Errorf("acme/loner: %w", gateway.ErrNotAFork))
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeCreated}, nil)
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget": domain.OutcomeCreated,
				"loner":  domain.OutcomeSkipped,
			},
		},
		{
			name:  "fork of an empty repository is skipped",
			forks: []string{"widget", "hollow"},
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
				l.On("GetFork", "acme", "hollow").Return(nil, fmt.Errorf("hollow: parent origin-org/hollow: %w", gateway.ErrNoDefaultBranch))
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil)
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget": domain.OutcomeUpdated,
				"hollow": domain.OutcomeSkipped,
			},
		},
		{
			name:  "filters restrict which forks are synced",
			forks: []string{"widget", "gadget", "sprocket"},
			opts:  RunOptions{Only: []string{"widget", "gadget"}, Skip: []string{"gadget"}},
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil)
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget":   domain.OutcomeUpdated,
				"gadget":   domain.OutcomeSkipped,
				"sprocket": domain.OutcomeSkipped,
			},
		},
		{
			name:  "error case - first failure halts the run",
			forks: []string{"widget", "gadget", "sprocket"},
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
				l.On("GetFork", "acme", "gadget").Return(forkNamed("gadget"), nil)
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil)
				s.On("Sync", mock.Anything, "gadget").Return(&domain.SyncResult{Name: "gadget", Outcome: domain.OutcomeFailed, Err: errSync}, errSync)
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget": domain.OutcomeUpdated,
				"gadget": domain.OutcomeFailed,
			},
			expectErrMsg: "gadget: command error in merge",
		},
		{
			name:  "continue on error visits every fork and aggregates failures",
			forks: []string{"widget", "gadget", "sprocket"},
			opts:  RunOptions{ContinueOnError: true},
			setup: func(l *mockLister, s *mockSyncer) {
				for _, name := range []string{"widget", "gadget", "sprocket"} {
					l.On("GetFork", "acme", name).Return(forkNamed(name), nil)
				}
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil)
				s.On("Sync", mock.Anything, "gadget").Return(&domain.SyncResult{Name: "gadget", Outcome: domain.OutcomeFailed, Err: errSync}, errSync)
				s.On("Sync", mock.Anything, "sprocket").Return(&domain.SyncResult{Name: "sprocket", Outcome: domain.OutcomeRecovered}, nil)
			},
			expectOutcomes: map[string]domain.Outcome{
				"widget":   domain.OutcomeUpdated,
				"gadget":   domain.OutcomeFailed,
				"sprocket": domain.OutcomeRecovered,
			},
			expectErrMsg: "1 repositories failed",
		},
		{
			name:  "error case - fetching details aborts the run",
			forks: []string{"widget", "gadget"},
			opts:  RunOptions{ContinueOnError: true},
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(nil, errors.New("502 Bad Gateway"))
			},
			expectOutcomes: map[string]domain.Outcome{},
			expectErrMsg:   "widget: api error in get",
		},
		{
			name:    "error case - listing failure aborts the run",
			forks:   []string{"widget"},
			listErr: errors.New("401 Bad credentials"),
			setup: func(l *mockLister, s *mockSyncer) {
				l.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
				s.On("Sync", mock.Anything, "widget").Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil)
			},
			expectOutcomes: map[string]domain.Outcome{"widget": domain.OutcomeUpdated},
			expectErrMsg:   "acme: api error in list",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lister := &mockLister{names: tc.forks, listErr: tc.listErr}
			syncer := new(mockSyncer)
			tc.setup(lister, syncer)
			recorder := &recordingRecorder{}

			runner := NewRunner(lister, syncer, recorder, tc.opts, log.New(io.Discard, "", 0))
			results, err := runner.Run(context.Background(), "acme")

			if tc.expectErrMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErrMsg)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectOutcomes, outcomes(results))
			assert.Len(t, recorder.outcomes, len(results))
			lister.AssertExpectations(t)
			syncer.AssertExpectations(t)
		})
	}
}

func TestRunner_CancellationStopsBetweenRepositories(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lister := &mockLister{names: []string{"widget", "gadget"}}
	lister.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil).Once()
	syncer := new(mockSyncer)
	syncer.On("Sync", mock.Anything, "widget").
		Run(func(args mock.Arguments) {
			cancel()
			// The repository in flight keeps an uncancelled context.
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(&domain.SyncResult{Name: "widget", Outcome: domain.OutcomeUpdated}, nil).Once()

	runner := NewRunner(lister, syncer, nil, RunOptions{}, log.New(io.Discard, "", 0))
	results, err := runner.Run(ctx, "acme")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var syncErr *domain.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, domain.ErrorKindCancelled, syncErr.Kind)
	assert.Equal(t, map[string]domain.Outcome{"widget": domain.OutcomeUpdated}, outcomes(results))
	lister.AssertExpectations(t)
	syncer.AssertExpectations(t)
}

func TestRunner_NilResultFromSyncerIsRecordedAsFailure(t *testing.T) {
	lister := &mockLister{names: []string{"widget"}}
	lister.On("GetFork", "acme", "widget").Return(forkNamed("widget"), nil)
	syncer := new(mockSyncer)
	syncer.On("Sync", mock.Anything, "widget").Return(nil, errors.New("boom"))

	results, err := NewRunner(lister, syncer, nil, RunOptions{}, log.New(io.Discard, "", 0)).Run(context.Background(), "acme")

	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.OutcomeFailed, results[0].Outcome)
}
