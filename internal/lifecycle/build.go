package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/open-edge-platform/rpmbuild-bot/internal/archive"
	"github.com/open-edge-platform/rpmbuild-bot/internal/builder"
	"github.com/open-edge-platform/rpmbuild-bot/internal/filelist"
	"github.com/open-edge-platform/rpmbuild-bot/internal/legacy"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/shell"
)

// BuildResult describes a completed build.
type BuildResult struct {
	Version    string
	Manifest   string   // versioned manifest
	Artifacts  []string // in manifest order
	NoarchOnly bool     // the base architecture produced only noarch packages
}

// buildOrder returns archs with the base architecture (the last one) first.
func buildOrder(archs []string) []string {
	if len(archs) == 0 {
		return nil
	}
	base := archs[len(archs)-1]
	return append([]string{base}, archs[:len(archs)-1]...)
}

// prepare stages the auxiliary files of the spec and the legacy runtime in
// the package source directory.
func (m *Manager) prepare() error {
	log := logger.Logger()

	if m.Pkg.SpecFile == "" {
		return preconditionf(m.Pkg.Name, "", "no spec file resolved")
	}
	sourceDir := m.Config.PackageSourceDir(m.Pkg.Name)
	if err := file.EnsureDir(sourceDir); err != nil {
		return err
	}

	if info, err := os.Stat(m.Pkg.AuxDir); err == nil && info.IsDir() {
		copied, err := file.CopyDirFiles(m.Pkg.AuxDir, sourceDir, m.Pkg.SpecFile)
		if err != nil {
			return err
		}
		log.Debugf("Copied %d files from %s to %s", len(copied), m.Pkg.AuxDir, sourceDir)
	}

	descs := m.Config.LegacyDescriptors(m.Pkg.Name)
	if len(descs) == 0 {
		return nil
	}
	repo, err := m.repository(m.Config.Legacy.Repository)
	if err != nil {
		return err
	}
	cache := legacy.New(m.Config, m.Pkg.Name, repo, m.Extractor)
	stats, err := cache.Update(descs, m.Config.PackageArchs(m.Pkg.Name))
	if err != nil {
		if errors.Is(err, legacy.ErrPackageNotFound) {
			return &Error{Kind: Precondition, Msg: "cannot get legacy runtime", Err: err,
				Hint: fmt.Sprintf("Check the legacy settings of %s and the contents of repository %q.", m.Pkg.Name, repo.ID)}
		}
		return err
	}
	log.Infof("Legacy runtime: %d extracted, %d up to date", stats.Extracted, stats.UpToDate)
	return nil
}

// clearBuildDir removes everything in the build area except the lock.
func (m *Manager) clearBuildDir() error {
	entries, err := os.ReadDir(m.buildDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(m.buildDir(), e.Name())
		if p == m.lockFile() {
			continue
		}
		if err := file.RemovePath(p); err != nil {
			return err
		}
	}
	return nil
}

// rollback discards the pending build: its artifacts, manifests and logs.
func (m *Manager) rollback() error {
	log := logger.Logger()

	version, err := m.PendingVersion()
	if err != nil {
		return err
	}
	log.Warnf("Overwriting previous build of %s (%s) due to --force", m.Pkg.Name, version)

	paths, err := filelist.Read(m.CurrentManifest(), nil)
	if err != nil {
		return consistency(m.CurrentManifest(), "cannot roll back previous build", err)
	}
	if err := removeFiles(paths); err != nil {
		return err
	}
	return m.clearBuildDir()
}

// Build builds all architectures, the source package and the combined
// archive, and records them in a new manifest.
func (m *Manager) Build() (*BuildResult, error) {
	log := logger.Logger()

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if ok, err := file.Exists(m.CurrentManifest()); err != nil {
		return nil, err
	} else if ok {
		if !m.Force {
			v, _ := m.PendingVersion()
			return nil, preconditionf(m.CurrentManifest(),
				"Upload or clean the pending build, or use --force to overwrite it.",
				"build of %s version %s already exists", m.Pkg.Name, v)
		}
		if err := m.rollback(); err != nil {
			return nil, err
		}
	}
	if err := m.clearBuildDir(); err != nil {
		return nil, err
	}

	if err := m.prepare(); err != nil {
		return nil, err
	}

	archs := m.Config.PackageArchs(m.Pkg.Name)
	order := buildOrder(archs)
	base := order[0]
	sourceDir := m.Config.PackageSourceDir(m.Pkg.Name)
	log.Infof("Targets: %v, ZIP (%s), SRPM", order, base)

	var baseRPMs, otherRPMs []string
	seen := make(map[string]bool)
	noarchOnly := false
	for _, arch := range order {
		logFile := filepath.Join(m.buildDir(), arch+logExt)
		log.Infof("Creating RPMs for %s target (logging to %s)...", arch, logFile)

		rpms, err := m.Builder.BuildBinary(builder.Request{
			SpecFile:  m.Pkg.SpecFile,
			SourceDir: sourceDir,
			Arch:      arch,
			LogFile:   logFile,
		})
		if err != nil {
			return nil, external(fmt.Sprintf("building %s for %s", m.Pkg.Name, arch), err)
		}
		if len(rpms) == 0 {
			return nil, consistency(logFile, fmt.Sprintf("cannot find .(%s|noarch).rpm file names", arch), nil)
		}

		if arch == base {
			baseRPMs = rpms
			for _, r := range rpms {
				seen[r] = true
			}
			if allNoarch(rpms) {
				noarchOnly = true
				if len(order) > 1 {
					log.Warnf("Skipping other targets because %s produced only noarch RPMs; "+
						"architecture specific packages of %v would go unnoticed", base, order[1:])
				}
				break
			}
			continue
		}
		if allNoarch(rpms) {
			log.Warnf("%s produced only noarch RPMs while %s produced architecture specific ones", arch, base)
		}
		for _, r := range rpms {
			if !seen[r] {
				seen[r] = true
				otherRPMs = append(otherRPMs, r)
			}
		}
	}

	srpmLog := filepath.Join(m.buildDir(), "srpm"+logExt)
	log.Infof("Creating SRPM (logging to %s)...", srpmLog)
	srpms, err := m.Builder.BuildSource(builder.Request{
		SpecFile:  m.Pkg.SpecFile,
		SourceDir: sourceDir,
		LogFile:   srpmLog,
	})
	if err != nil {
		return nil, external("building source package of "+m.Pkg.Name, err)
	}
	if len(srpms) == 0 {
		return nil, consistency(srpmLog, "cannot find .src.rpm file name", nil)
	}
	srpm := srpms[0]

	name, version, ok := splitSRPM(srpm)
	if !ok {
		return nil, &Error{Kind: Consistency, Path: srpm, Msg: "cannot deduce package version",
			Hint: fmt.Sprintf("Check the Version and Release tags in %s.", filepath.Base(m.Pkg.SpecFile))}
	}
	if name != m.Pkg.Name {
		return nil, &Error{Kind: Consistency, Path: srpm,
			Msg: fmt.Sprintf("package name %q does not match spec name %q", name, m.Pkg.Name),
			Hint: fmt.Sprintf("Either rename %s.spec to %s.spec or set the Name: tag to %s.",
				m.Pkg.Name, name, m.Pkg.Name)}
	}

	zipLog := filepath.Join(m.buildDir(), "zip"+logExt)
	zipFile := filepath.Join(m.Config.ZipDir, archive.Name(m.Pkg.Name, version))
	log.Infof("Creating ZIP (logging to %s)...", zipLog)
	if err := file.EnsureDir(m.Config.ZipDir); err != nil {
		return nil, err
	}
	err = shell.FuncWithLog("create "+zipFile, zipLog, func(w io.Writer) error {
		return m.Archiver.Create(zipFile, baseRPMs, w)
	})
	if err != nil {
		return nil, external("creating "+filepath.Base(zipFile), err)
	}

	artifacts := make([]string, 0, 2+len(baseRPMs)+len(otherRPMs))
	artifacts = append(artifacts, srpm, zipFile)
	artifacts = append(artifacts, baseRPMs...)
	artifacts = append(artifacts, otherRPMs...)

	entries, err := filelist.Stamp(artifacts...)
	if err != nil {
		return nil, consistency("", "recording build results", err)
	}
	versioned := m.VersionedManifest(version)
	if err := filelist.Write(versioned, entries); err != nil {
		return nil, err
	}
	if err := os.Symlink(filepath.Base(versioned), m.CurrentManifest()); err != nil {
		return nil, consistency(m.CurrentManifest(), "cannot create current manifest", err)
	}

	log.Infof("Generated all packages for version %s", version)
	return &BuildResult{
		Version:    version,
		Manifest:   versioned,
		Artifacts:  artifacts,
		NoarchOnly: noarchOnly,
	}, nil
}

func allNoarch(rpms []string) bool {
	for _, r := range rpms {
		if !builder.IsNoarch(r) {
			return false
		}
	}
	return true
}
