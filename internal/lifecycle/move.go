package lifecycle

import (
	"path/filepath"

	"github.com/open-edge-platform/rpmbuild-bot/internal/filelist"
	"github.com/open-edge-platform/rpmbuild-bot/internal/repository"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
)

// MoveResult describes a completed move.
type MoveResult struct {
	Version string
	From    string
	To      string
	Moved   []string // destination paths in manifest order
}

// archivedEntries reads the archived manifest of the requested version
// without verifying it.
func (m *Manager) archivedEntries() (string, []filelist.Entry, error) {
	if err := m.requireVersion(); err != nil {
		return "", nil, err
	}
	list := m.ArchivedManifest(m.Pkg.Version)
	if ok, _ := file.Exists(list); !ok {
		return "", nil, preconditionf(list, "Use the upload command to upload the packages first.",
			"no manifest of %s version %s", m.Pkg.Name, m.Pkg.Version)
	}
	entries, err := filelist.ReadEntries(list)
	if err != nil {
		return "", nil, consistency(list, "cannot read manifest", err)
	}
	return list, entries, nil
}

// locate returns the first repository holding the source package of entries.
func (m *Manager) locate(entries []filelist.Entry) (*repository.Repository, error) {
	for _, e := range entries {
		a, err := repository.Resolve(e.Path)
		if err != nil || a.Kind != repository.Source {
			continue
		}
		for _, r := range m.Repos {
			if ok, _ := file.Exists(filepath.Join(r.Dir(a), a.Name)); ok {
				return r, nil
			}
		}
		return nil, preconditionf(a.Name, "Use the upload command to upload the packages first.",
			"%s version %s is not in any repository", m.Pkg.Name, m.Pkg.Version)
	}
	return nil, preconditionf(m.ArchivedManifest(m.Pkg.Version), "", "manifest lists no source package")
}

// Move relocates an uploaded version from one repository to another. An
// empty from is detected from where the source package is; an empty to
// means the repository following from. Manifests are left alone, so a move
// may be retried, but a partially failed move is not resumed.
func (m *Manager) Move(fromID, toID string) (*MoveResult, error) {
	log := logger.Logger()

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, entries, err := m.archivedEntries()
	if err != nil {
		return nil, err
	}

	var from, to *repository.Repository
	if fromID == "" {
		from, err = m.locate(entries)
	} else {
		from, err = m.repository(fromID)
	}
	if err != nil {
		return nil, err
	}
	if toID == "" {
		next, ok := m.Repos.Next(from.ID)
		if !ok {
			return nil, preconditionf(from.ID, "Specify the target repository explicitly.",
				"%s version %s is in the last repository", m.Pkg.Name, m.Pkg.Version)
		}
		to = next
		log.Infof("Target repository %s was auto-detected", to.ID)
	} else if to, err = m.repository(toID); err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return nil, preconditionf(to.ID, "", "source and target repository are the same")
	}

	recorded := make([]string, len(entries))
	for i, e := range entries {
		recorded[i] = e.Path
	}
	dsts, err := m.destinations(recorded, to)
	if err != nil {
		return nil, err
	}
	srcs, err := filelist.Verify(entries, from.Path)
	if err != nil {
		return nil, consistency(m.ArchivedManifest(m.Pkg.Version), "cannot move from repository "+from.ID, err)
	}

	log.Infof("Moving %s %s from %s to %s...", m.Pkg.Name, m.Pkg.Version, from.ID, to.ID)
	bar := m.newBar(len(srcs), "moving")
	for i, src := range srcs {
		bar.Describe("moving " + filepath.Base(src))
		log.Debugf("Moving %s -> %s", src, dsts[i])
		if err := file.MoveFile(src, dsts[i]); err != nil {
			return nil, err
		}
		bar.Add(1)
	}
	bar.Finish()

	return &MoveResult{Version: m.Pkg.Version, From: from.ID, To: to.ID, Moved: dsts}, nil
}
