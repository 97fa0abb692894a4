// Package vcs records a release in the version control repository holding the
// package description.
package vcs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
)

// ReleaseMessage is the commit message of a release.
func ReleaseMessage(pkgName, version string) string {
	return fmt.Sprintf("%s: Release version %s.", pkgName, version)
}

// Release is the set of files committed for one package release.
type Release struct {
	SpecFile string
	AuxDir   string // may not exist
	Message  string
}

// GitRepo is the git work tree containing a spec file.
type GitRepo struct {
	repo *git.Repository
	root string
	// Author overrides the identity from the git configuration.
	Author *object.Signature
}

// Open finds the git repository containing path.
func Open(path string) (*GitRepo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository for %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get git worktree: %w", err)
	}
	return &GitRepo{repo: repo, root: wt.Filesystem.Root()}, nil
}

func (g *GitRepo) rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	// the work tree root may be reported through a resolved symlink
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	root := g.root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of the git work tree %s", path, g.root)
	}
	return filepath.ToSlash(rel), nil
}

// changes returns the changed and untracked files of r, relative to the work
// tree root.
func (g *GitRepo) changes(r Release) (changed, untracked []string, err error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get git worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get git status: %w", err)
	}

	spec, err := g.rel(r.SpecFile)
	if err != nil {
		return nil, nil, err
	}
	aux := ""
	if r.AuxDir != "" {
		if info, statErr := os.Stat(r.AuxDir); statErr == nil && info.IsDir() {
			if aux, err = g.rel(r.AuxDir); err != nil {
				return nil, nil, err
			}
		}
	}

	for path, fs := range status {
		inRelease := path == spec || (aux != "" && aux != "." && strings.HasPrefix(path, aux+"/"))
		if !inRelease {
			continue
		}
		switch {
		case fs.Worktree == git.Untracked:
			untracked = append(untracked, path)
		case fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified:
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	sort.Strings(untracked)
	return changed, untracked, nil
}

// Check fails when files of the release are not under version control. It is
// called before anything is published.
func (g *GitRepo) Check(r Release) error {
	_, untracked, err := g.changes(r)
	if err != nil {
		return err
	}
	if len(untracked) > 0 {
		return fmt.Errorf("untracked files in release of %s: %s", filepath.Base(r.SpecFile), strings.Join(untracked, ", "))
	}
	return nil
}

// Commit stages the changed files of the release and commits them. It returns
// the new commit hash, or "" when there was nothing to commit.
func (g *GitRepo) Commit(r Release) (string, error) {
	log := logger.Logger()

	changed, untracked, err := g.changes(r)
	if err != nil {
		return "", err
	}
	if len(untracked) > 0 {
		return "", fmt.Errorf("untracked files in release of %s: %s", filepath.Base(r.SpecFile), strings.Join(untracked, ", "))
	}
	if len(changed) == 0 {
		log.Infof("Nothing to commit for %s", r.SpecFile)
		return "", nil
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get git worktree: %w", err)
	}
	for _, p := range changed {
		if _, err := wt.Add(p); err != nil {
			return "", fmt.Errorf("staging %s: %w", p, err)
		}
	}

	opts := &git.CommitOptions{Author: g.Author}
	hash, err := wt.Commit(r.Message, opts)
	if errors.Is(err, git.ErrMissingAuthor) {
		opts.Author = &object.Signature{Name: "rpmbuild-bot", Email: "rpmbuild-bot@localhost", When: time.Now()}
		hash, err = wt.Commit(r.Message, opts)
	}
	if err != nil {
		return "", fmt.Errorf("committing release: %w", err)
	}
	log.Infof("Committed %s: %s", hash.String()[:12], r.Message)
	return hash.String(), nil
}
