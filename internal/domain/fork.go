// Package domain contains the core data structures and domain logic for the application.
package domain

import "fmt"

// ForkSummary is a single entry of an organization's fork listing.
// It carries just enough to request the full details later.
type ForkSummary struct {
	Name string `json:"name"`
}

// Parent describes the upstream repository a fork was created from.
type Parent struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

// FullName returns the "owner/name" form of the parent.
func (p Parent) FullName() string {
	return fmt.Sprintf("%s/%s", p.Owner, p.Name)
}

// Fork holds the full details of a forked repository.
// It is fetched fresh per sync cycle and never mutated.
type Fork struct {
	Name     string `json:"name"`
	CloneURL string `json:"clone_url"`
	Parent   Parent `json:"parent"`
}
