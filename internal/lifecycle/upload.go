package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/filelist"
	"github.com/open-edge-platform/rpmbuild-bot/internal/repository"
	"github.com/open-edge-platform/rpmbuild-bot/internal/rpmutils"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/compression"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/vcs"
)

// Committer records a release in version control.
type Committer interface {
	Check(r vcs.Release) error
	Commit(r vcs.Release) (string, error)
}

// OpenGit opens the git repository holding path.
func OpenGit(path string) (Committer, error) {
	g, err := vcs.Open(path)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// UploadOptions tune an upload.
type UploadOptions struct {
	Repository string // default: the first configured repository
	Commit     bool   // commit the spec and its auxiliary files
	// OpenVCS opens the version control of the spec; default OpenGit.
	OpenVCS func(path string) (Committer, error)
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Version    string
	Repository string
	Copied     []string // destination paths in manifest order
	Commit     string   // commit hash, if one was made
}

// destinations maps artifacts to their place in repo and fails if one is
// occupied, unless forced.
func (m *Manager) destinations(paths []string, repo *repository.Repository) ([]string, error) {
	dsts := make([]string, 0, len(paths))
	for _, p := range paths {
		dst, err := repo.Path(p)
		if err != nil {
			return nil, consistency(p, "cannot place artifact in repository "+repo.ID, err)
		}
		if ok, err := file.Exists(dst); err != nil {
			return nil, err
		} else if ok && !m.Force {
			return nil, preconditionf(dst, "Use --force to overwrite it.",
				"destination in repository %s is already occupied", repo.ID)
		}
		dsts = append(dsts, dst)
	}
	return dsts, nil
}

// verifySignatures checks the packages among paths against the keyring of
// repo.
func (m *Manager) verifySignatures(paths []string, repo *repository.Repository) error {
	keyring, err := rpmutils.LoadKeyring(repo.GPGKey)
	if err != nil {
		return preconditionf(repo.GPGKey, "", "cannot load keyring of repository %s: %v", repo.ID, err)
	}
	var rpms []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".rpm") {
			rpms = append(rpms, p)
		}
	}
	failed := rpmutils.Failed(rpmutils.VerifyAll(rpms, keyring, rpmutils.VerifyOptions{Workers: runtime.NumCPU(), Progress: m.Progress}))
	if len(failed) > 0 {
		return &Error{Kind: Consistency, Path: failed[0].Path, Msg: "signature verification failed",
			Err:  failed[0].Error,
			Hint: fmt.Sprintf("%d of %d packages are not signed with the key of repository %s.", len(failed), len(rpms), repo.ID)}
	}
	return nil
}

// Upload publishes the pending build to a repository and archives its
// manifest and logs. Every artifact is copied before any is deleted.
func (m *Manager) Upload(opts UploadOptions) (*UploadResult, error) {
	log := logger.Logger()

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	version, err := m.PendingVersion()
	if err != nil {
		return nil, err
	}
	repo, err := m.repository(opts.Repository)
	if err != nil {
		return nil, err
	}

	archived := m.ArchivedManifest(version)
	if ok, _ := file.Exists(archived); ok && !m.Force {
		return nil, preconditionf(archived, "Use --force to replace the archived record.",
			"version %s of %s was already uploaded", version, m.Pkg.Name)
	}

	paths, err := filelist.Read(m.CurrentManifest(), nil)
	if err != nil {
		return nil, consistency(m.CurrentManifest(), "cannot use pending build", err)
	}
	dsts, err := m.destinations(paths, repo)
	if err != nil {
		return nil, err
	}

	if repo.GPGKey != "" {
		if err := m.verifySignatures(paths, repo); err != nil {
			return nil, err
		}
	}

	result := &UploadResult{Version: version, Repository: repo.ID}
	if opts.Commit {
		if result.Commit, err = m.commitRelease(opts, version); err != nil {
			return nil, err
		}
	}

	log.Infof("Uploading %s %s to %s (%s)...", m.Pkg.Name, version, repo.ID, repo.Base)
	bar := m.newBar(len(paths), "uploading")
	for i, src := range paths {
		bar.Describe("copying " + filepath.Base(src))
		log.Debugf("Copying %s -> %s", src, dsts[i])
		if err := file.CopyFile(src, dsts[i]); err != nil {
			return nil, err
		}
		bar.Add(1)
	}
	bar.Finish()
	result.Copied = dsts

	if err := removeFiles(paths); err != nil {
		return nil, err
	}
	if err := m.archiveBuild(version); err != nil {
		return nil, err
	}

	log.Infof("Uploaded version %s of %s to %s", version, m.Pkg.Name, repo.ID)
	return result, nil
}

func (m *Manager) commitRelease(opts UploadOptions, version string) (string, error) {
	if m.Pkg.SpecFile == "" {
		return "", preconditionf(m.Pkg.Name, "", "cannot commit release without a spec file")
	}
	open := opts.OpenVCS
	if open == nil {
		open = OpenGit
	}
	c, err := open(filepath.Dir(m.Pkg.SpecFile))
	if err != nil {
		return "", preconditionf(m.Pkg.SpecFile, "", "spec is not under version control: %v", err)
	}
	rel := vcs.Release{
		SpecFile: m.Pkg.SpecFile,
		AuxDir:   m.Pkg.AuxDir,
		Message:  vcs.ReleaseMessage(m.Pkg.Name, version),
	}
	if err := c.Check(rel); err != nil {
		return "", preconditionf(m.Pkg.AuxDir, "Add these files to version control (or remove them) and retry.", "%v", err)
	}
	hash, err := c.Commit(rel)
	if err != nil {
		return "", external("committing release", err)
	}
	return hash, nil
}

// archiveBuild moves the manifest and the compressed logs of an uploaded
// build to the archive area and drops the build area.
func (m *Manager) archiveBuild(version string) error {
	log := logger.Logger()

	dir := m.archiveDir()
	if err := file.EnsureDir(dir); err != nil {
		return err
	}
	old, err := compression.ArchivedLogs(dir)
	if err != nil {
		return err
	}
	for _, o := range old {
		if err := os.Remove(o); err != nil {
			return fmt.Errorf("purging archived log: %w", err)
		}
	}

	logs, err := filepath.Glob(filepath.Join(m.buildDir(), "*"+logExt))
	if err != nil {
		return err
	}
	log.Infof("Archiving logs to %s...", dir)
	if _, err := compression.ArchiveLogs(logs, dir); err != nil {
		return err
	}

	archived := m.ArchivedManifest(version)
	if err := file.MoveFile(m.VersionedManifest(version), archived); err != nil {
		return err
	}
	pointer := m.LatestPointer()
	if err := os.Remove(pointer); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", pointer, err)
	}
	if err := os.Symlink(filepath.Base(archived), pointer); err != nil {
		return fmt.Errorf("replacing %s: %w", pointer, err)
	}

	return file.RemovePath(m.buildDir())
}
