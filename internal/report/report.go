// Package report renders the results of a sync run for humans or machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fatih/color"
	"github.com/montanaflynn/stats"

	"github.com/naka-gawa/gh-sync-forks/internal/domain"
)

// Summary aggregates a run's results.
type Summary struct {
	Total           int                    `json:"total"`
	Outcomes        map[domain.Outcome]int `json:"outcomes"`
	MeanSeconds     float64                `json:"mean_seconds"`
	MedianSeconds   float64                `json:"median_seconds"`
	P95Seconds      float64                `json:"p95_seconds"`
	MaxSeconds      float64                `json:"max_seconds"`
	TotalSeconds    float64                `json:"total_seconds"`
	ChangedRepos    int                    `json:"changed_repos"`
	FailedRepoNames []string               `json:"failed,omitempty"`
}

// Entry is the serialized form of a single result.
type Entry struct {
	Name     string  `json:"name"`
	Outcome  string  `json:"outcome"`
	Seconds  float64 `json:"seconds"`
	Before   string  `json:"before,omitempty"`
	After    string  `json:"after,omitempty"`
	Changed  bool    `json:"changed"`
	ErrorMsg string  `json:"error,omitempty"`
}

// Summarize computes outcome counts and timing statistics. Skipped
// repositories count towards the total but not the timings.
func Summarize(results []*domain.SyncResult) Summary {
	summary := Summary{
		Total:    len(results),
		Outcomes: make(map[domain.Outcome]int),
	}
	var durations stats.Float64Data
	for _, r := range results {
		summary.Outcomes[r.Outcome]++
		if r.Outcome == domain.OutcomeFailed {
			summary.FailedRepoNames = append(summary.FailedRepoNames, r.Name)
		}
		if r.Outcome == domain.OutcomeSkipped {
			continue
		}
		if changed(r) {
			summary.ChangedRepos++
		}
		durations = append(durations, r.Duration.Seconds())
	}
	if len(durations) == 0 {
		return summary
	}
	summary.MeanSeconds = statOrZero(stats.Mean(durations))
	summary.MedianSeconds = statOrZero(stats.Median(durations))
	summary.P95Seconds = statOrZero(stats.Percentile(durations, 95))
	summary.MaxSeconds = statOrZero(stats.Max(durations))
	summary.TotalSeconds = statOrZero(stats.Sum(durations))
	return summary
}

// statOrZero drops the NaN stats returns alongside an error, which JSON cannot encode.
func statOrZero(v float64, err error) float64 {
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

func entries(results []*domain.SyncResult) []Entry {
	out := make([]Entry, 0, len(results))
	for _, r := range results {
		e := Entry{
			Name:    r.Name,
			Outcome: string(r.Outcome),
			Seconds: r.Duration.Seconds(),
			Before:  r.Before,
			After:   r.After,
			Changed: changed(r),
		}
		if r.Err != nil {
			e.ErrorMsg = r.Err.Error()
		}
		out = append(out, e)
	}
	return out
}

// WriteJSON writes the results and summary as pretty-printed JSON.
func WriteJSON(w io.Writer, results []*domain.SyncResult) error {
	payload := struct {
		Repositories []Entry `json:"repositories"`
		Summary      Summary `json:"summary"`
	}{
		Repositories: entries(results),
		Summary:      Summarize(results),
	}
	jsonData, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}

var outcomeColors = map[domain.Outcome]*color.Color{
	domain.OutcomeCreated:   color.New(color.FgCyan),
	domain.OutcomeUpdated:   color.New(color.FgGreen),
	domain.OutcomeRecovered: color.New(color.FgYellow),
	domain.OutcomeFailed:    color.New(color.FgRed, color.Bold),
	domain.OutcomeSkipped:   color.New(color.Faint),
}

// WriteText writes one line per repository followed by a summary line.
func WriteText(w io.Writer, results []*domain.SyncResult) error {
	for _, r := range results {
		outcome := string(r.Outcome)
		if c, ok := outcomeColors[r.Outcome]; ok {
			outcome = c.Sprint(outcome)
		}
		line := fmt.Sprintf("%-30s %-10s %8s", r.Name, outcome, r.Duration.Round(time.Millisecond))
		if changed(r) {
			line += fmt.Sprintf("  %s..%s", short(r.Before), short(r.After))
		}
		if r.Err != nil {
			line += "  " + r.Err.Error()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	s := Summarize(results)
	_, err := fmt.Fprintf(w, "\n%d repositories: %d created, %d updated, %d recovered, %d failed, %d skipped (%d changed); mean %.1fs, p95 %.1fs, max %.1fs\n",
		s.Total,
		s.Outcomes[domain.OutcomeCreated],
		s.Outcomes[domain.OutcomeUpdated],
		s.Outcomes[domain.OutcomeRecovered],
		s.Outcomes[domain.OutcomeFailed],
		s.Outcomes[domain.OutcomeSkipped],
		s.ChangedRepos,
		s.MeanSeconds, s.P95Seconds, s.MaxSeconds,
	)
	return err
}

// changed reports whether a synced repository's HEAD moved.
func changed(r *domain.SyncResult) bool {
	switch r.Outcome {
	case domain.OutcomeFailed, domain.OutcomeSkipped:
		return false
	}
	return r.Changed()
}

func short(hash string) string {
	if hash == "" {
		return "(none)"
	}
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
