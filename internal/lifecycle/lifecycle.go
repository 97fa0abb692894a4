// Package lifecycle drives one package release through its states:
// built, uploaded to a repository, moved between repositories, removed, or
// cleaned without upload.
//
// The state lives on the file system. A build leaves a versioned manifest
// and a current manifest referring to it in the build area; the current
// manifest gates re-entry until the build is uploaded or cleaned. Upload
// archives the versioned manifest, which later moves and removals work
// from.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-edge-platform/rpmbuild-bot/internal/archive"
	"github.com/open-edge-platform/rpmbuild-bot/internal/builder"
	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/legacy"
	"github.com/open-edge-platform/rpmbuild-bot/internal/repository"
	"github.com/open-edge-platform/rpmbuild-bot/internal/rpmutils"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
)

const (
	listExt = ".list"
	logExt  = ".log"
)

// Manager runs lifecycle commands for one package.
type Manager struct {
	Config    *config.Config
	Pkg       *Package
	Repos     repository.Set
	Builder   builder.Builder
	Archiver  archive.Archiver
	Extractor legacy.Extractor

	// Force overrides the guards against replacing existing state.
	Force bool
	// Progress receives progress bars; nil disables them.
	Progress io.Writer
}

// New returns a Manager using rpmbuild and in-process RPM extraction.
func New(cfg *config.Config, pkg *Package) (*Manager, error) {
	repos, err := repository.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	ex := rpmutils.PayloadExtractor{}
	return &Manager{
		Config:  cfg,
		Pkg:     pkg,
		Repos:   repos,
		Builder: builder.NewRPMBuild(cfg),
		Archiver: &archive.ZipArchiver{
			Extractor: ex,
			Requires:  rpmutils.ReadRequires,
			RootDir:   filepath.Join(cfg.ZipDir, "."+pkg.Name+"-root"),
		},
		Extractor: ex,
		Progress:  os.Stderr,
	}, nil
}

func (m *Manager) buildDir() string   { return m.Config.BuildLogDir(m.Pkg.Name) }
func (m *Manager) archiveDir() string { return m.Config.ArchiveLogDir(m.Pkg.Name) }
func (m *Manager) testDir() string    { return m.Config.TestLogDir(m.Pkg.Name) }

// CurrentManifest is the marker of a pending build.
func (m *Manager) CurrentManifest() string {
	return filepath.Join(m.buildDir(), m.Pkg.Name+listExt)
}

func (m *Manager) versionedName(version string) string {
	return m.Pkg.Name + "-" + version + listExt
}

// VersionedManifest is the manifest of a pending build of version.
func (m *Manager) VersionedManifest(version string) string {
	return filepath.Join(m.buildDir(), m.versionedName(version))
}

// ArchivedManifest is the manifest of an uploaded build of version.
func (m *Manager) ArchivedManifest(version string) string {
	return filepath.Join(m.archiveDir(), m.versionedName(version))
}

// LatestPointer refers to the manifest of the most recent upload.
func (m *Manager) LatestPointer() string {
	return filepath.Join(m.archiveDir(), m.Pkg.Name+listExt)
}

func (m *Manager) lockFile() string {
	return filepath.Join(m.buildDir(), m.Pkg.Name+".lock")
}

// versionOf extracts the version from a versioned manifest name.
func (m *Manager) versionOf(listName string) (string, bool) {
	prefix := m.Pkg.Name + "-"
	if !strings.HasPrefix(listName, prefix) || !strings.HasSuffix(listName, listExt) {
		return "", false
	}
	v := strings.TrimSuffix(strings.TrimPrefix(listName, prefix), listExt)
	return v, versionRe.MatchString(v)
}

// pointerTarget returns the version a manifest reference points to.
func (m *Manager) pointerTarget(link string) (string, error) {
	info, err := os.Lstat(link)
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", consistency(link, "manifest reference is not a symbolic link", nil)
	}
	target, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	v, ok := m.versionOf(filepath.Base(target))
	if !ok {
		return "", consistency(link, fmt.Sprintf("manifest reference points to unexpected %q", target), nil)
	}
	return v, nil
}

// PendingVersion returns the version of the pending build.
func (m *Manager) PendingVersion() (string, error) {
	v, err := m.pointerTarget(m.CurrentManifest())
	if os.IsNotExist(err) {
		return "", preconditionf(m.CurrentManifest(), "Use the build command to build the packages first.",
			"no pending build of %s", m.Pkg.Name)
	}
	return v, err
}

// lock takes the build area of the package. The returned func releases it.
func (m *Manager) lock() (func(), error) {
	existed, _ := file.Exists(m.buildDir())
	if err := file.EnsureDir(m.buildDir()); err != nil {
		return nil, err
	}
	lf := m.lockFile()
	f, err := os.OpenFile(lf, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, preconditionf(lf, "Remove the lock file if no other rpmbuild-bot process is running.",
				"%s is being processed by another invocation", m.Pkg.Name)
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	f.Close()

	return func() {
		if err := os.Remove(lf); err != nil && !os.IsNotExist(err) {
			logger.Logger().Warnf("Cannot remove lock file %s: %v", lf, err)
		}
		if !existed {
			_ = file.RemoveIfEmpty(m.buildDir())
		}
	}, nil
}

func (m *Manager) newBar(total int, description string) *progressbar.ProgressBar {
	w := m.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// removeFiles deletes paths, logging each one.
func removeFiles(paths []string) error {
	log := logger.Logger()
	for _, p := range paths {
		log.Infof("Removing %s...", p)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// repository returns the repository with id, or the default one.
func (m *Manager) repository(id string) (*repository.Repository, error) {
	if id == "" {
		r, err := m.Repos.Default()
		if err != nil {
			return nil, preconditionf("repositories", "Add a repository to the configuration.", "%v", err)
		}
		return r, nil
	}
	r, err := m.Repos.Find(id)
	if err != nil {
		return nil, preconditionf(id, "", "%v", err)
	}
	return r, nil
}

func (m *Manager) requireVersion() error {
	if m.Pkg.Version == "" {
		return preconditionf(m.Pkg.Name, "Use the list command to get available versions.", "no version given")
	}
	return nil
}
