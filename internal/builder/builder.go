// Package builder is the boundary to the external package-build tool. Callers
// get back the list of produced artifact paths; how they are discovered stays
// in here.
package builder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/shell"
)

// Request describes one invocation of the builder.
type Request struct {
	SpecFile  string
	SourceDir string // passed as %_sourcedir
	Arch      string // target architecture, unused for source builds
	LogFile   string // receives the complete builder output
}

// Builder produces packages from a spec file.
type Builder interface {
	// BuildBinary builds packages for req.Arch and returns the produced
	// architecture-specific and noarch packages.
	BuildBinary(req Request) ([]string, error)
	// BuildSource builds the source package and returns its path.
	BuildSource(req Request) ([]string, error)
	// Test runs a test build of one phase for req.Arch without the
	// distribution tag. Phases that do not package return no paths.
	Test(req Request, phase Phase) ([]string, error)
}

// RPMBuild drives rpmbuild.
type RPMBuild struct {
	Exe     string
	TopDir  string
	RPMDir  string
	SRPMDir string
	Env     []string
}

func NewRPMBuild(cfg *config.Config) *RPMBuild {
	return &RPMBuild{
		Exe:     cfg.RPMBuild,
		TopDir:  cfg.TopDir,
		RPMDir:  cfg.RPMDir,
		SRPMDir: cfg.SRPMDir,
		Env:     cfg.Env(),
	}
}

func (b *RPMBuild) defines(req Request) []string {
	return []string{
		"--define=_topdir " + b.TopDir,
		"--define=_rpmdir " + b.RPMDir,
		"--define=_srcrpmdir " + b.SRPMDir,
		"--define=_sourcedir " + req.SourceDir,
	}
}

func (b *RPMBuild) run(req Request, args []string) error {
	cmd := shell.Command{
		Name: b.Exe,
		Args: append(args, req.SpecFile),
		Dir:  filepath.Dir(req.SpecFile),
		Env:  b.Env,
	}
	return shell.ExecCmdWithLog(cmd, req.LogFile)
}

func (b *RPMBuild) BuildBinary(req Request) ([]string, error) {
	if req.Arch == "" {
		return nil, fmt.Errorf("binary build of %s needs a target architecture", req.SpecFile)
	}
	args := append([]string{"--target=" + req.Arch, "-bb"}, b.defines(req)...)
	if err := b.run(req, args); err != nil {
		return nil, err
	}
	return ParseWrote(req.LogFile, BinarySuffixes(req.Arch)...)
}

func (b *RPMBuild) BuildSource(req Request) ([]string, error) {
	args := append([]string{"-bs"}, b.defines(req)...)
	if err := b.run(req, args); err != nil {
		return nil, err
	}
	return ParseWrote(req.LogFile, SourceSuffix)
}

func (b *RPMBuild) Test(req Request, phase Phase) ([]string, error) {
	flags, err := phase.Flags()
	if err != nil {
		return nil, err
	}
	args := []string{"--target=" + req.Arch, "--define=dist %nil"}
	args = append(args, flags...)
	args = append(args, b.defines(req)...)
	if err := b.run(req, args); err != nil {
		return nil, err
	}
	if !phase.Packages() {
		return nil, nil
	}
	return ParseWrote(req.LogFile, BinarySuffixes(req.Arch)...)
}

const (
	SourceSuffix = ".src.rpm"
	NoarchSuffix = ".noarch.rpm"
)

// BinarySuffixes returns the file name suffixes of the packages a binary
// build for arch produces.
func BinarySuffixes(arch string) []string {
	return []string{"." + arch + ".rpm", NoarchSuffix}
}

// IsNoarch reports whether path names a platform-independent package.
func IsNoarch(path string) bool {
	return strings.HasSuffix(path, NoarchSuffix)
}

// Phase restricts a test build to one stage of the build.
type Phase string

const (
	PhaseAll     Phase = "all"
	PhasePrep    Phase = "prep"
	PhaseBuild   Phase = "build"
	PhaseInstall Phase = "install"
	PhasePack    Phase = "pack"
)

var phaseFlags = map[Phase][]string{
	PhaseAll:     {"-bb"},
	PhasePrep:    {"-bp", "--short-circuit"},
	PhaseBuild:   {"-bc", "--short-circuit"},
	PhaseInstall: {"-bi", "--short-circuit"},
	PhasePack:    {"-bb", "--short-circuit"},
}

// Phases lists the valid phases in build order, the full build first.
func Phases() []Phase {
	return []Phase{PhaseAll, PhasePrep, PhaseBuild, PhaseInstall, PhasePack}
}

func ParsePhase(s string) (Phase, error) {
	if s == "" {
		return PhaseAll, nil
	}
	p := Phase(strings.ToLower(s))
	if _, ok := phaseFlags[p]; !ok {
		return "", fmt.Errorf("unknown test phase %q (valid: all, prep, build, install, pack)", s)
	}
	return p, nil
}

// Flags returns the rpmbuild options selecting the phase.
func (p Phase) Flags() ([]string, error) {
	flags, ok := phaseFlags[p]
	if !ok {
		return nil, fmt.Errorf("unknown test phase %q", string(p))
	}
	return append([]string(nil), flags...), nil
}

// Packages reports whether the phase writes binary packages.
func (p Phase) Packages() bool {
	return p == PhaseAll || p == PhasePack
}
