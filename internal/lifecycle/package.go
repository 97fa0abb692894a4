package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

// versionRe matches a full version: VERSION-RELEASE, where the release may
// carry a distribution tag.
var versionRe = regexp.MustCompile(`^\d+[.\w]*-\w+[.\w]*$`)

// srpmRe splits a source package file name into NAME and VERSION-RELEASE.
var srpmRe = regexp.MustCompile(`^(.+)-([^-]+-[^-]+)\.src\.rpm$`)

const specExt = ".spec"

// Package is the identity of the package a command works on. It is derived
// once per invocation and not changed afterwards.
type Package struct {
	Name    string
	Version string // full version, empty when not given

	SpecFile string // empty when the command does not need the spec
	AuxDir   string // files copied into the source directory; may not exist
	SpecRoot string // spec directory the spec was found in
}

// ParseRef splits "NAME[:VERSION]".
func ParseRef(ref string) (name, version string, err error) {
	name, version, _ = strings.Cut(ref, ":")
	if name == "" {
		return "", "", fmt.Errorf("empty package name in %q", ref)
	}
	if version != "" {
		if err := CheckVersion(version); err != nil {
			return "", "", err
		}
	}
	return name, version, nil
}

// CheckVersion validates a full version string.
func CheckVersion(version string) error {
	if !versionRe.MatchString(version) {
		return fmt.Errorf("invalid version %q (expected VERSION-RELEASE)", version)
	}
	return nil
}

// NewPackage returns the identity of a package known only by name, for
// commands that act on recorded builds.
func NewPackage(ref string) (*Package, error) {
	name, version, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSuffix(filepath.Base(name), specExt)
	return &Package{Name: name, Version: version}, nil
}

// ResolveSpec locates the spec of ref. A reference with a directory part is
// taken as a path; a bare name is searched in the spec directories as
// <dir>/<name>.spec and <dir>/<name>/<name>.spec. The .spec extension is
// optional.
func ResolveSpec(cfg *config.Config, ref string) (*Package, error) {
	spec, version, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(spec, specExt) {
		spec += specExt
	}
	name := strings.TrimSuffix(filepath.Base(spec), specExt)

	var specFile, root string
	if strings.ContainsRune(spec, filepath.Separator) {
		abs, err := filepath.Abs(spec)
		if err != nil {
			return nil, err
		}
		if ok, _ := file.Exists(abs); !ok {
			return nil, preconditionf(abs, "", "spec file not found")
		}
		specFile = abs
		root = filepath.Dir(abs)
		if filepath.Base(root) == name {
			root = filepath.Dir(root)
		}
	} else {
		for _, dir := range cfg.SpecDirs {
			for _, candidate := range []string{
				filepath.Join(dir, spec),
				filepath.Join(dir, name, spec),
			} {
				if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
					specFile, root = candidate, dir
					break
				}
			}
			if specFile != "" {
				break
			}
		}
		if specFile == "" {
			return nil, preconditionf(spec, "Check the spec_dirs setting or give a path to the spec file.",
				"cannot find spec file in %s", strings.Join(cfg.SpecDirs, ", "))
		}
	}

	auxDir := filepath.Dir(specFile)
	if filepath.Base(auxDir) != name {
		auxDir = filepath.Join(auxDir, name)
	}

	return &Package{
		Name:     name,
		Version:  version,
		SpecFile: specFile,
		AuxDir:   auxDir,
		SpecRoot: root,
	}, nil
}

// Overlays returns the configuration overlay files that apply to the spec,
// outermost first.
func (p *Package) Overlays() []string {
	if p.SpecFile == "" {
		return nil
	}
	paths := []string{filepath.Join(p.SpecRoot, config.OverlayFileName)}
	if p.AuxDir != p.SpecRoot {
		paths = append(paths, filepath.Join(p.AuxDir, config.OverlayFileName))
	}
	return paths
}

// splitSRPM returns the name and full version encoded in a source package
// file name.
func splitSRPM(srpm string) (name, version string, ok bool) {
	m := srpmRe.FindStringSubmatch(filepath.Base(srpm))
	if m == nil || !versionRe.MatchString(m[2]) {
		return "", "", false
	}
	return m[1], m[2], true
}
