package lifecycle

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/filelist"
	"github.com/open-edge-platform/rpmbuild-bot/internal/repository"
	"github.com/open-edge-platform/rpmbuild-bot/internal/rpmutils"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

// Release is one recorded version of a package.
type Release struct {
	Name    string
	Version string
	Latest  bool // the most recent upload
	Pending bool // built but not uploaded
}

// List returns the recorded releases of the packages whose name matches the
// glob pattern ("" matches all), sorted by name. Pending builds come after
// the uploaded versions of the same package.
func List(cfg *config.Config, pattern string) ([]Release, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}

	names := make(map[string]bool)
	for _, area := range []string{"archive", "build"} {
		entries, err := os.ReadDir(filepath.Join(cfg.LogDir, area))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if ok, _ := path.Match(pattern, e.Name()); ok && e.IsDir() {
				names[e.Name()] = true
			}
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var releases []Release
	for _, name := range sorted {
		m := &Manager{Config: cfg, Pkg: &Package{Name: name}}
		rs, err := m.releases()
		if err != nil {
			return nil, err
		}
		releases = append(releases, rs...)
	}
	return releases, nil
}

func (m *Manager) releases() ([]Release, error) {
	var releases []Release

	latest, _ := m.pointerTarget(m.LatestPointer())
	entries, err := os.ReadDir(m.archiveDir())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 {
			continue
		}
		if v, ok := m.versionOf(e.Name()); ok {
			releases = append(releases, Release{Name: m.Pkg.Name, Version: v, Latest: v == latest})
		}
	}
	if v, err := m.pointerTarget(m.CurrentManifest()); err == nil {
		releases = append(releases, Release{Name: m.Pkg.Name, Version: v, Pending: true})
	}
	return releases, nil
}

// Location is where an artifact was found.
type Location struct {
	Repository string
	Path       string
	Stale      bool // modification time differs from the recorded one
}

// ArtifactInfo is one manifest entry with its locations.
type ArtifactInfo struct {
	Name      string
	Kind      string
	Recorded  time.Time
	Locations []Location
}

// Details describe one version of a package.
type Details struct {
	Name      string
	Version   string
	Manifest  string
	Pending   bool
	Latest    bool
	Artifacts []ArtifactInfo
}

// Info describes the requested version: where each of its artifacts is.
// Without a version it describes the pending build.
func (m *Manager) Info() (*Details, error) {
	d := &Details{Name: m.Pkg.Name, Version: m.Pkg.Version}

	pending, _ := m.pointerTarget(m.CurrentManifest())
	switch {
	case m.Pkg.Version == "":
		v, err := m.PendingVersion()
		if err != nil {
			return nil, err
		}
		d.Version, d.Pending, d.Manifest = v, true, m.CurrentManifest()
	case m.Pkg.Version == pending:
		d.Pending, d.Manifest = true, m.CurrentManifest()
	default:
		list, _, err := m.archivedEntries()
		if err != nil {
			return nil, err
		}
		d.Manifest = list
		latest, _ := m.pointerTarget(m.LatestPointer())
		d.Latest = latest == d.Version
	}

	entries, err := filelist.ReadEntries(d.Manifest)
	if err != nil {
		return nil, consistency(d.Manifest, "cannot read manifest", err)
	}
	for _, e := range entries {
		ai := ArtifactInfo{Name: filepath.Base(e.Path), Recorded: time.Unix(e.Timestamp, 0)}
		a, err := repository.Resolve(e.Path)
		if err != nil {
			ai.Kind = "unknown"
			d.Artifacts = append(d.Artifacts, ai)
			continue
		}
		ai.Kind = a.Kind.String()

		if d.Pending {
			ai.Locations = appendLocation(ai.Locations, "", e.Path, e.Timestamp)
		}
		for _, r := range m.Repos {
			ai.Locations = appendLocation(ai.Locations, r.ID, filepath.Join(r.Dir(a), a.Name), e.Timestamp)
		}
		d.Artifacts = append(d.Artifacts, ai)
	}
	return d, nil
}

func appendLocation(locs []Location, repo, p string, recorded int64) []Location {
	ts, err := file.ModTime(p)
	if err != nil {
		return locs
	}
	return append(locs, Location{Repository: repo, Path: p, Stale: ts != recorded})
}

// Verify checks the signatures of the packages of the pending build against
// the keyring at keyringPath, or the keyring of the default repository.
func (m *Manager) Verify(keyringPath string) ([]rpmutils.Result, error) {
	if keyringPath == "" {
		repo, err := m.repository("")
		if err != nil {
			return nil, err
		}
		if repo.GPGKey == "" {
			return nil, preconditionf(repo.ID, "Pass --keyring or set gpg_key of the repository.",
				"no keyring to verify against")
		}
		keyringPath = repo.GPGKey
	}
	keyring, err := rpmutils.LoadKeyring(keyringPath)
	if err != nil {
		return nil, preconditionf(keyringPath, "", "%v", err)
	}

	if _, err := m.PendingVersion(); err != nil {
		return nil, err
	}
	paths, err := filelist.Read(m.CurrentManifest(), nil)
	if err != nil {
		return nil, consistency(m.CurrentManifest(), "cannot verify pending build", err)
	}
	var rpms []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".rpm") {
			rpms = append(rpms, p)
		}
	}
	return rpmutils.VerifyAll(rpms, keyring, rpmutils.VerifyOptions{Workers: runtime.NumCPU(), Progress: m.Progress}), nil
}
