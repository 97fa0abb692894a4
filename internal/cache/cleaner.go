// Package cache removes the regenerable trees rpmbuild-bot leaves behind:
// legacy runtime extractions, staged package sources and interrupted archive
// roots.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/legacy"
	fileutil "github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

// CleanOptions defines what cache artifacts should be removed.
type CleanOptions struct {
	CleanLegacy  bool   // remove legacy runtime extractions
	CleanSources bool   // remove staged package source directories (legacy included)
	CleanZipRoot bool   // remove intermediate archive roots left by interrupted builds
	Package      string // optional package filter
	DryRun       bool   // report actions without deleting anything
}

// CleanResult contains the outcome of a cache cleanup run.
type CleanResult struct {
	RemovedPaths []string
	SkippedPaths []string
}

// Clean removes cached artifacts according to the provided options.
func Clean(cfg *config.Config, opts CleanOptions) (*CleanResult, error) {
	if !opts.CleanLegacy && !opts.CleanSources && !opts.CleanZipRoot {
		return nil, fmt.Errorf("at least one scope must be specified")
	}
	if strings.ContainsAny(opts.Package, `/\*?[`) || opts.Package == "." || opts.Package == ".." {
		return nil, fmt.Errorf("invalid package name %q", opts.Package)
	}

	targets, missing, err := gatherTargets(cfg, opts)
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(targets))
	skippedSet := make(map[string]struct{}, len(missing))
	for _, path := range missing {
		skippedSet[path] = struct{}{}
	}

	for _, target := range targets {
		exists, err := fileutil.Exists(target)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			skippedSet[target] = struct{}{}
			continue
		}

		if opts.DryRun {
			removed = append(removed, target)
			continue
		}

		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("removing %s: %w", target, err)
		}
		removed = append(removed, target)
	}

	sort.Strings(removed)

	skipped := make([]string, 0, len(skippedSet))
	for path := range skippedSet {
		skipped = append(skipped, path)
	}
	sort.Strings(skipped)

	return &CleanResult{
		RemovedPaths: removed,
		SkippedPaths: skipped,
	}, nil
}

func gatherTargets(cfg *config.Config, opts CleanOptions) ([]string, []string, error) {
	targets := make(map[string]struct{})
	missing := make(map[string]struct{})

	add := func(paths, absent []string) {
		for _, path := range paths {
			targets[path] = struct{}{}
		}
		for _, path := range absent {
			missing[path] = struct{}{}
		}
	}

	if opts.CleanSources {
		t, m, err := sourceTargets(cfg, opts.Package)
		if err != nil {
			return nil, nil, err
		}
		add(t, m)
	} else if opts.CleanLegacy {
		t, m, err := legacyTargets(cfg, opts.Package)
		if err != nil {
			return nil, nil, err
		}
		add(t, m)
	}

	if opts.CleanZipRoot {
		t, m, err := zipRootTargets(cfg, opts.Package)
		if err != nil {
			return nil, nil, err
		}
		add(t, m)
	}

	targetList := make([]string, 0, len(targets))
	for path := range targets {
		targetList = append(targetList, path)
	}
	sort.Strings(targetList)

	missingList := make([]string, 0, len(missing))
	for path := range missing {
		missingList = append(missingList, path)
	}
	sort.Strings(missingList)

	return targetList, missingList, nil
}

// packages lists the package directories below the source directory, or
// just pkg when given.
func packages(cfg *config.Config, pkg string) ([]string, error) {
	if pkg != "" {
		return []string{pkg}, nil
	}
	entries, err := os.ReadDir(cfg.SourceDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // No source directory = no targets
		}
		return nil, fmt.Errorf("listing source directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func sourceTargets(cfg *config.Config, pkg string) ([]string, []string, error) {
	names, err := packages(cfg, pkg)
	if err != nil {
		return nil, nil, err
	}

	var targets, missing []string
	for _, name := range names {
		target := cfg.PackageSourceDir(name)
		if err := ensureSubPath(cfg.SourceDir, target); err != nil {
			return nil, nil, err
		}
		exists, err := fileutil.Exists(target)
		if err != nil {
			return nil, nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if exists {
			targets = append(targets, target)
		} else if pkg != "" {
			missing = append(missing, target)
		}
	}
	return targets, missing, nil
}

func legacyTargets(cfg *config.Config, pkg string) ([]string, []string, error) {
	names, err := packages(cfg, pkg)
	if err != nil {
		return nil, nil, err
	}

	var targets, missing []string
	for _, name := range names {
		target := legacy.Dir(cfg, name)
		if err := ensureSubPath(cfg.SourceDir, target); err != nil {
			return nil, nil, err
		}
		exists, err := fileutil.Exists(target)
		if err != nil {
			return nil, nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if exists {
			targets = append(targets, target)
		} else if pkg != "" {
			missing = append(missing, target)
		}
		// Packages without legacy runtime are not reported
	}
	return targets, missing, nil
}

func zipRootTargets(cfg *config.Config, pkg string) ([]string, []string, error) {
	if pkg != "" {
		target := filepath.Join(cfg.ZipDir, "."+pkg+"-root")
		if err := ensureSubPath(cfg.ZipDir, target); err != nil {
			return nil, nil, err
		}
		exists, err := fileutil.Exists(target)
		if err != nil {
			return nil, nil, fmt.Errorf("checking %s: %w", target, err)
		}
		if !exists {
			return nil, []string{target}, nil
		}
		return []string{target}, nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(cfg.ZipDir, ".*-root"))
	if err != nil {
		return nil, nil, err
	}
	for _, target := range matches {
		if err := ensureSubPath(cfg.ZipDir, target); err != nil {
			return nil, nil, err
		}
	}
	return matches, nil, nil
}

func ensureSubPath(base, target string) error {
	ok, err := fileutil.IsSubPath(base, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refusing to operate on %s because it is outside %s", target, base)
	}
	return nil
}
