package lifecycle

import (
	"fmt"
	"path/filepath"

	"github.com/open-edge-platform/rpmbuild-bot/internal/builder"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/shell"
)

// TestLog returns the log file of a test build phase.
func (m *Manager) TestLog(phase builder.Phase) string {
	return filepath.Join(m.testDir(), string(phase)+logExt)
}

// stagesSources reports whether a phase reads the staged sources.
func stagesSources(phase builder.Phase) bool {
	switch phase {
	case builder.PhaseAll, builder.PhasePrep, builder.PhaseInstall:
		return true
	}
	return false
}

// Test runs a test build of the base architecture. It never touches the
// manifests of a pending build.
func (m *Manager) Test(phase builder.Phase) ([]string, error) {
	log := logger.Logger()

	if stagesSources(phase) {
		if err := m.prepare(); err != nil {
			return nil, err
		}
	}
	if err := file.EnsureDir(m.testDir()); err != nil {
		return nil, err
	}

	logFile := m.TestLog(phase)
	if err := shell.RotateLog(logFile); err != nil {
		return nil, err
	}

	base := m.Config.BaseArch(m.Pkg.Name)
	log.Infof("Creating test RPMs for %s target (logging to %s)...", base, logFile)
	rpms, err := m.Builder.Test(builder.Request{
		SpecFile:  m.Pkg.SpecFile,
		SourceDir: m.Config.PackageSourceDir(m.Pkg.Name),
		Arch:      base,
		LogFile:   logFile,
	}, phase)
	if err != nil {
		return nil, external(fmt.Sprintf("test build (%s) of %s", phase, m.Pkg.Name), err)
	}

	if phase.Packages() {
		if len(rpms) == 0 {
			return nil, consistency(logFile, fmt.Sprintf("cannot find .(%s|noarch).rpm file names", base), nil)
		}
		log.Infof("Successfully generated the following RPMs:")
		for _, r := range rpms {
			log.Infof("  %s", r)
		}
	}
	return rpms, nil
}

// CleanTest deletes the packages written by test builds together with all
// test logs and their backups.
func (m *Manager) CleanTest() ([]string, error) {
	log := logger.Logger()

	suffixes := builder.BinarySuffixes(m.Config.BaseArch(m.Pkg.Name))
	seen := make(map[string]bool)
	var rpms []string
	for _, phase := range []builder.Phase{builder.PhaseAll, builder.PhasePack} {
		lf := m.TestLog(phase)
		if ok, _ := file.Exists(lf); !ok {
			continue
		}
		found, err := builder.ParseWrote(lf, suffixes...)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			if !seen[r] {
				seen[r] = true
				rpms = append(rpms, r)
			}
		}
	}
	if len(rpms) == 0 {
		return nil, preconditionf(m.testDir(), "", "no RPMs found in test logs")
	}

	if err := removeFiles(rpms); err != nil {
		return nil, err
	}
	for _, phase := range builder.Phases() {
		for _, lf := range []string{m.TestLog(phase), m.TestLog(phase) + ".bak"} {
			if ok, _ := file.Exists(lf); ok {
				log.Infof("Removing %s...", lf)
				if err := file.RemovePath(lf); err != nil {
					return nil, err
				}
			}
		}
	}
	return rpms, nil
}
