// Package workcopy manages the on-disk working copies of forks: resolving
// where they live, removing broken ones, and inspecting their git metadata.
package workcopy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrNotRepository is returned when a directory holds no usable git metadata.
	ErrNotRepository = errors.New("not a git repository")
	// ErrMissingRemote is returned when a required remote is not configured.
	ErrMissingRemote = errors.New("remote not configured")
)

// Snapshot is a read-only view of a working copy's state.
type Snapshot struct {
	// Head is the commit HEAD points at, empty for a repository with no commits.
	Head string
	// Remotes maps remote names to their first configured URL.
	Remotes map[string]string
}

// Inspector reads working-copy metadata without modifying it.
type Inspector interface {
	Inspect(path string, requiredRemotes ...string) (*Snapshot, error)
}

// GoGitInspector is the concrete implementation of the Inspector interface.
type GoGitInspector struct{}

// NewInspector creates a new GoGitInspector.
func NewInspector() *GoGitInspector {
	return &GoGitInspector{}
}

// Inspect opens path as a git repository and checks that each of
// requiredRemotes is configured.
func (GoGitInspector) Inspect(path string, requiredRemotes ...string) (*Snapshot, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotRepository)
		}
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}

	remotes, err := repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("failed to read remotes of %s: %w", path, err)
	}
	snapshot := &Snapshot{Remotes: make(map[string]string, len(remotes))}
	for _, remote := range remotes {
		cfg := remote.Config()
		url := ""
		if len(cfg.URLs) > 0 {
			url = cfg.URLs[0]
		}
		snapshot.Remotes[cfg.Name] = url
	}
	for _, name := range requiredRemotes {
		if _, ok := snapshot.Remotes[name]; !ok {
			return nil, fmt.Errorf("%s: %q: %w", path, name, ErrMissingRemote)
		}
	}

	head, err := repo.Head()
	switch {
	case err == nil:
		snapshot.Head = head.Hash().String()
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Freshly initialized repository without commits.
	default:
		return nil, fmt.Errorf("failed to resolve HEAD of %s: %w", path, err)
	}
	return snapshot, nil
}

// Path returns where the working copy for name lives under root.
func Path(root, name string) string {
	return filepath.Join(root, name)
}

// Resolve reports whether a working copy directory exists at path. A
// non-directory entry found there is removed and reported as absent.
func Resolve(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		// A dangling symlink still occupies the name.
		if _, lerr := os.Lstat(path); lerr == nil {
			return false, removeEntry(path)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return true, nil
	}
	return false, removeEntry(path)
}

func removeEntry(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove non-directory entry %s: %w", path, err)
	}
	return nil
}

// Remove deletes the working copy at path recursively.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove working copy %s: %w", path, err)
	}
	return nil
}

// EnsureRoot creates the directory holding all working copies.
func EnsureRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", root, err)
	}
	return nil
}
