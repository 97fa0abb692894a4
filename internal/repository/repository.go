// Package repository maps build artifacts to their locations in the
// configured package repositories.
package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
)

// ArtifactKind tells which layout template places an artifact.
type ArtifactKind int

const (
	Source  ArtifactKind = iota // NAME-VER-REL.src.rpm
	Arch                        // NAME-VER-REL.ARCH.rpm, including noarch
	Archive                     // NAME-VER_REL.zip
)

func (k ArtifactKind) String() string {
	switch k {
	case Source:
		return "srpm"
	case Arch:
		return "rpm"
	case Archive:
		return "zip"
	}
	return fmt.Sprintf("ArtifactKind(%d)", int(k))
}

var ErrUnsupported = errors.New("unsupported artifact type")

// Artifact is a file name classified by its shape.
type Artifact struct {
	Kind ArtifactKind
	Name string // base name of the file
	Arch string // set for Arch only
}

// Resolve classifies a file name. It is a pure function of the name and does
// no I/O.
func Resolve(fileName string) (Artifact, error) {
	name := filepath.Base(fileName)
	switch {
	case strings.HasSuffix(name, ".src.rpm"):
		return Artifact{Kind: Source, Name: name}, nil
	case strings.HasSuffix(name, ".rpm"):
		stem := strings.TrimSuffix(name, ".rpm")
		dot := strings.LastIndexByte(stem, '.')
		if dot <= 0 || dot == len(stem)-1 {
			return Artifact{}, fmt.Errorf("%s: no architecture: %w", name, ErrUnsupported)
		}
		return Artifact{Kind: Arch, Name: name, Arch: stem[dot+1:]}, nil
	case strings.HasSuffix(name, ".zip"):
		return Artifact{Kind: Archive, Name: name}, nil
	}
	return Artifact{}, fmt.Errorf("%s: %w", name, ErrUnsupported)
}

// Repository is a publishing destination with its resolved layout.
type Repository struct {
	ID     string
	Base   string
	Layout config.Layout
	GPGKey string
}

// Dir returns the directory that holds a of this kind in the repository.
// Templates are expanded with ${base} and ${arch}; a template that stays
// relative is taken relative to the repository base.
func (r *Repository) Dir(a Artifact) string {
	var tmpl string
	switch a.Kind {
	case Source:
		tmpl = r.Layout.SRPM
	case Arch:
		tmpl = r.Layout.RPM
	case Archive:
		tmpl = r.Layout.Zip
	}

	dir := strings.ReplaceAll(tmpl, "${base}", r.Base)
	dir = strings.ReplaceAll(dir, "${arch}", a.Arch)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Base, dir)
	}
	return filepath.Clean(dir)
}

// Path returns where fileName lives in the repository. Its signature matches
// filelist.TransformFunc so manifests can be verified against a repository.
func (r *Repository) Path(fileName string) (string, error) {
	a, err := Resolve(fileName)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.Dir(a), a.Name), nil
}

// Set is the ordered list of configured repositories.
type Set []*Repository

// FromConfig builds the repository set in configuration order.
func FromConfig(cfg *config.Config) (Set, error) {
	set := make(Set, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		layout, ok := cfg.Layouts[rc.Layout]
		if !ok {
			return nil, fmt.Errorf("repository %q refers to unknown layout %q", rc.ID, rc.Layout)
		}
		set = append(set, &Repository{
			ID:     rc.ID,
			Base:   rc.Base,
			Layout: layout,
			GPGKey: rc.GPGKey,
		})
	}
	return set, nil
}

// Find returns the repository with the given id.
func (s Set) Find(id string) (*Repository, error) {
	for _, r := range s {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no repository %q configured (have: %s)", id, strings.Join(s.IDs(), ", "))
}

// Default returns the repository used when none is named: the first one.
func (s Set) Default() (*Repository, error) {
	if len(s) == 0 {
		return nil, errors.New("no repositories configured")
	}
	return s[0], nil
}

// Next returns the repository following id in configuration order.
func (s Set) Next(id string) (*Repository, bool) {
	for i, r := range s {
		if r.ID == id && i+1 < len(s) {
			return s[i+1], true
		}
	}
	return nil, false
}

// IDs lists the repository ids in order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, r := range s {
		ids[i] = r.ID
	}
	return ids
}
