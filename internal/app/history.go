package app

import (
	"fmt"

	"scribe/internal/diff"
	apperrors "scribe/internal/errors"
	"scribe/internal/workspace"

	"github.com/go-git/go-billy/v5/util"
)

const diffContext = 3

// DiffRevision compares a kept revision of path with the file's current content.
// A negative revision selects the most recent one.
func (a *App) DiffRevision(path string, revision int) (*diff.Result, error) {
	file, ok := a.Workspace.FindFile(path)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("file not tracked: %s", workspace.Normalize(path)))
	}

	revs, err := a.Workspace.History(file.Path)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s: %w", file.Path, err)
	}
	if len(revs) == 0 {
		return nil, apperrors.NotFound(fmt.Sprintf("no revisions kept for %s", file.Path))
	}

	rev := revs[len(revs)-1]
	if revision >= 0 {
		found := false
		for _, r := range revs {
			if r.Revision == revision {
				rev, found = r, true
				break
			}
		}
		if !found {
			return nil, apperrors.NotFound(fmt.Sprintf("revision %d of %s not found", revision, file.Path))
		}
	}

	old, err := a.Workspace.RevisionContent(rev.Hash)
	if err != nil {
		return nil, fmt.Errorf("reading revision %d of %s: %w", rev.Revision, file.Path, err)
	}
	current, err := util.ReadFile(a.Workspace.FS, file.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file.Path, err)
	}

	return diff.NewEngine(diffContext).Diff(old, current), nil
}
