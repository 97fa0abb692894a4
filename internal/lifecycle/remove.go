package lifecycle

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/rpmbuild-bot/internal/filelist"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/compression"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
)

// Remove deletes an uploaded version from a repository together with its
// manifest. When that manifest is the most recent upload, the pointer to it
// and the archived logs go as well.
func (m *Manager) Remove(repoID string) ([]string, error) {
	log := logger.Logger()

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	list, entries, err := m.archivedEntries()
	if err != nil {
		return nil, err
	}
	repo, err := m.repository(repoID)
	if err != nil {
		return nil, err
	}
	paths, err := filelist.Verify(entries, repo.Path)
	if err != nil {
		return nil, consistency(list, "cannot remove from repository "+repo.ID, err)
	}

	log.Infof("Removing %s %s from %s...", m.Pkg.Name, m.Pkg.Version, repo.ID)
	if err := removeFiles(paths); err != nil {
		return nil, err
	}
	if err := os.Remove(list); err != nil {
		return nil, fmt.Errorf("removing manifest: %w", err)
	}

	if v, err := m.pointerTarget(m.LatestPointer()); err == nil && v == m.Pkg.Version {
		logs, err := compression.ArchivedLogs(m.archiveDir())
		if err != nil {
			return nil, err
		}
		if err := removeFiles(append([]string{m.LatestPointer()}, logs...)); err != nil {
			return nil, err
		}
	}
	if err := file.RemoveIfEmpty(m.archiveDir()); err != nil {
		return nil, err
	}
	return paths, nil
}

// Clean discards the pending build: every artifact it produced, its
// manifests and logs.
func (m *Manager) Clean() ([]string, error) {
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := m.PendingVersion(); err != nil {
		return nil, err
	}
	paths, err := filelist.Read(m.CurrentManifest(), nil)
	if err != nil {
		return nil, consistency(m.CurrentManifest(), "cannot clean pending build", err)
	}
	if err := removeFiles(paths); err != nil {
		return nil, err
	}
	if err := file.RemovePath(m.buildDir()); err != nil {
		return nil, err
	}
	return paths, nil
}
