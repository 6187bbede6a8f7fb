package lfs

import (
	"context"

	"github.com/pkg/errors"
)

// Repository is the host-owned Git repository handle. It is an external
// collaborator: opened and mutated by the host, never by this package.
type Repository interface {
	// ReadWorkingTreeFile returns the current on-disk bytes at path.
	ReadWorkingTreeFile(path string) ([]byte, error)
	// WriteWorkingTreeFile overwrites path with content.
	WriteWorkingTreeFile(path string, content []byte) error
	// ReadIndexBlob returns the content of path as currently staged in
	// the index (the pointer bytes, for a tracked path).
	ReadIndexBlob(path string) ([]byte, error)
	// StageBlob records content as path's staged index entry without
	// touching the working tree.
	StageBlob(path string, content []byte) error
	// Commit records a commit with message from the current index.
	Commit(message string) error
	// TrackedPaths lists every path the repository knows to be under
	// LFS tracking, for SmudgeAll.
	TrackedPaths() ([]string, error)
}

// Repo is a thin orchestrator over a Repository, an AttributesProvider,
// and a resolved Filter. It owns no state beyond references to its
// collaborators.
type Repo struct {
	repo       Repository
	attributes AttributesProvider
	filter     *Filter
}

// NewRepo builds a Repo from its collaborators.
func NewRepo(repo Repository, attributes AttributesProvider, filter *Filter) *Repo {
	return &Repo{repo: repo, attributes: attributes, filter: filter}
}

// Add runs Clean on path's current working-tree content and stages the
// result (pointer bytes, or the content unchanged if not tracked) as
// path's index entry. The working-tree file itself is left untouched:
// only the index/object-database side becomes a pointer.
func (r *Repo) Add(ctx context.Context, path string) error {
	content, err := r.repo.ReadWorkingTreeFile(path)
	if err != nil {
		return errors.Wrapf(err, "read working tree file %s", path)
	}

	cleaned, err := r.filter.Clean(ctx, path, content)
	if err != nil {
		return errors.Wrapf(err, "clean %s", path)
	}

	if err := r.repo.StageBlob(path, cleaned); err != nil {
		return errors.Wrapf(err, "stage %s", path)
	}
	return nil
}

// Commit delegates to the repository handle.
func (r *Repo) Commit(message string) error {
	return r.repo.Commit(message)
}

// SmudgeAll iterates every path the repository reports as LFS-tracked
// and smudges it, writing the result back to the working tree. Used by
// hosts without a native checkout hook to materialize LFS content after
// a checkout.
func (r *Repo) SmudgeAll(ctx context.Context) error {
	paths, err := r.repo.TrackedPaths()
	if err != nil {
		return errors.Wrap(err, "list tracked paths")
	}

	for _, path := range paths {
		pointerBytes, err := r.repo.ReadIndexBlob(path)
		if err != nil {
			return errors.Wrapf(err, "read index blob %s", path)
		}
		content, err := r.filter.Smudge(ctx, path, pointerBytes)
		if err != nil {
			return errors.Wrapf(err, "smudge %s", path)
		}
		if err := r.repo.WriteWorkingTreeFile(path, content); err != nil {
			return errors.Wrapf(err, "write smudged content for %s", path)
		}
	}
	return nil
}
