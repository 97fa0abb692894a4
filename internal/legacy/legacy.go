// Package legacy maintains the extraction cache of legacy runtime files.
//
// A package may ship files taken from historical builds of itself or of other
// packages (for example old DLLs kept for binary compatibility). The files are
// extracted from the stable repository into the package source directory and
// re-extracted only when the identity of the source package changes.
package legacy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/repository"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/slice"
)

// ErrPackageNotFound is returned when a declared legacy package is not in the
// stable repository.
var ErrPackageNotFound = errors.New("legacy package not found")

// ABIListFile names the ABI tracks of a package for later packaging steps.
const ABIListFile = "abi.list"

// Extractor unpacks the files of a package matching masks below destDir and
// returns them as slash-prefixed paths relative to destDir.
type Extractor interface {
	Extract(rpmPath, destDir string, masks []string) ([]string, error)
}

// Record is the identity of an extraction: it matches when the source package
// was not replaced since.
type Record struct {
	Timestamp int64
	Path      string
	Name      string
	Version   string
}

func (r Record) String() string {
	return strings.Join([]string{strconv.FormatInt(r.Timestamp, 10), r.Path, r.Name, r.Version}, "|")
}

// ParseRecord decodes "<ts>|<path>|<name>|<version>".
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(line), "|")
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("incorrect number of fields in %q", line)
	}
	whole, _, _ := strings.Cut(fields[0], ".")
	ts, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("bad timestamp in %q", line)
	}
	return Record{Timestamp: ts, Path: fields[1], Name: fields[2], Version: fields[3]}, nil
}

// Cache is the legacy tree of one package:
// <source_dir>/<name>/<name>-legacy/<abi>/<arch>/ plus sibling list files.
type Cache struct {
	Root        string
	Repo        *repository.Repository
	Extractor   Extractor
	Dist        string
	DefaultMask string
}

// Dir returns the legacy tree root of a package.
func Dir(cfg *config.Config, pkgName string) string {
	return filepath.Join(cfg.PackageSourceDir(pkgName), pkgName+"-legacy")
}

// New returns the cache of pkgName fed from repo.
func New(cfg *config.Config, pkgName string, repo *repository.Repository, ex Extractor) *Cache {
	return &Cache{
		Root:        Dir(cfg, pkgName),
		Repo:        repo,
		Extractor:   ex,
		Dist:        cfg.Dist,
		DefaultMask: cfg.Legacy.DefaultMask,
	}
}

// Stats counts what an Update did.
type Stats struct {
	Extracted int
	UpToDate  int
}

// Target is the extraction of one descriptor for one architecture.
type Target struct {
	ABI     string
	Arch    string
	Name    string
	Version string // including the dist suffix
	Mask    string
}

// Dir is the extraction tree of t.
func (c *Cache) Dir(t Target) string {
	return filepath.Join(c.Root, t.ABI, t.Arch)
}

// IdentityFile holds the Record of t.
func (c *Cache) IdentityFile(t Target) string { return c.Dir(t) + ".list" }

// FilesList holds the extracted files of t.
func (c *Cache) FilesList(t Target) string { return c.Dir(t) + ".files.list" }

// DebugFilesList holds the extracted debug symbol files of t.
func (c *Cache) DebugFilesList(t Target) string { return c.Dir(t) + ".debugfiles.list" }

// Targets expands descriptors over archs. A descriptor with its own arch is
// extracted for that arch only.
func (c *Cache) Targets(descs []config.LegacyDescriptor, archs []string) []Target {
	var targets []Target
	for _, d := range descs {
		mask := d.Mask
		if mask == "" {
			mask = c.DefaultMask
		}
		if mask == "" {
			mask = config.DefaultLegacyMask
		}
		ta := archs
		if d.Arch != "" {
			ta = []string{d.Arch}
		}
		for _, arch := range ta {
			targets = append(targets, Target{
				ABI:     d.ABI,
				Arch:    arch,
				Name:    d.Name,
				Version: d.Version + c.Dist,
				Mask:    mask,
			})
		}
	}
	return targets
}

// Update brings the cache in line with descs and writes the ABI list.
func (c *Cache) Update(descs []config.LegacyDescriptor, archs []string) (Stats, error) {
	log := logger.Logger()

	var stats Stats
	var abis []string
	for _, d := range descs {
		abis = append(abis, d.ABI)
	}

	for _, t := range c.Targets(descs, archs) {
		log.Infof("Getting legacy runtime (%s) for ABI '%s' (%s)...", t.Mask, t.ABI, t.Arch)
		extracted, err := c.updateTarget(t)
		if err != nil {
			return stats, err
		}
		if extracted {
			stats.Extracted++
		} else {
			stats.UpToDate++
		}
	}

	if len(abis) > 0 {
		if err := file.EnsureDir(c.Root); err != nil {
			return stats, err
		}
		content := strings.Join(slice.Unique(abis), " ") + "\n"
		if err := os.WriteFile(filepath.Join(c.Root, ABIListFile), []byte(content), 0o644); err != nil {
			return stats, fmt.Errorf("writing ABI list: %w", err)
		}
	}
	return stats, nil
}

func (c *Cache) packagePath(name, version, arch string) (string, error) {
	return c.Repo.Path(fmt.Sprintf("%s-%s.%s.rpm", name, version, arch))
}

func (c *Cache) updateTarget(t Target) (bool, error) {
	log := logger.Logger()

	rpm, err := c.packagePath(t.Name, t.Version, t.Arch)
	if err != nil {
		return false, err
	}
	log.Debugf("Checking package %s...", rpm)
	ts, err := file.ModTime(rpm)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%s: %w", rpm, ErrPackageNotFound)
		}
		return false, fmt.Errorf("checking %s: %w", rpm, err)
	}

	want := Record{Timestamp: ts, Path: rpm, Name: t.Name, Version: t.Version}
	if data, err := os.ReadFile(c.IdentityFile(t)); err == nil {
		have, err := ParseRecord(string(data))
		if err != nil {
			return false, fmt.Errorf("%s: %w", c.IdentityFile(t), err)
		}
		if have == want {
			log.Debugf("Legacy runtime in %s is up to date", c.Dir(t))
			return false, nil
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("reading %s: %w", c.IdentityFile(t), err)
	}

	log.Infof("Extracting to %s...", c.Dir(t))
	for _, p := range []string{c.IdentityFile(t), c.Dir(t), c.FilesList(t), c.DebugFilesList(t)} {
		if err := file.RemovePath(p); err != nil {
			return false, err
		}
	}
	if err := file.EnsureDir(c.Dir(t)); err != nil {
		return false, err
	}

	files, err := c.Extractor.Extract(rpm, c.Dir(t), []string{t.Mask})
	if err != nil {
		return false, fmt.Errorf("extracting %s: %w", rpm, err)
	}
	if err := writeLines(c.FilesList(t), files); err != nil {
		return false, err
	}

	debugRPM, found, err := c.findDebugPackage(t)
	if err != nil {
		return false, err
	}
	if found {
		log.Infof("Found debug info package %s, extracting...", debugRPM)
		dbgFiles := DebugNames(files)
		if err := writeLines(c.DebugFilesList(t), dbgFiles); err != nil {
			return false, err
		}
		if len(dbgFiles) > 0 {
			masks := make([]string, len(dbgFiles))
			for i, f := range dbgFiles {
				masks[i] = "*" + f
			}
			if _, err := c.Extractor.Extract(debugRPM, c.Dir(t), masks); err != nil {
				return false, fmt.Errorf("extracting %s: %w", debugRPM, err)
			}
		}
	}

	// the identity goes last: an interrupted extraction is redone next time
	if err := os.WriteFile(c.IdentityFile(t), []byte(want.String()+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", c.IdentityFile(t), err)
	}
	return true, nil
}

// findDebugPackage tries NAME-debuginfo-VER.ARCH.rpm, then NAME-debug-VER.ARCH.rpm.
func (c *Cache) findDebugPackage(t Target) (string, bool, error) {
	for _, suffix := range []string{"-debuginfo", "-debug"} {
		p, err := c.packagePath(t.Name+suffix, t.Version, t.Arch)
		if err != nil {
			return "", false, err
		}
		ok, err := file.Exists(p)
		if err != nil {
			return "", false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return "", false, nil
}

// DebugNames maps extracted files to the names of their debug symbol files:
// the extension is replaced with .dbg.
func DebugNames(files []string) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, strings.TrimSuffix(f, filepath.Ext(f))+".dbg")
	}
	return names
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
