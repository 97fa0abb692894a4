package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy defines how to handle symlinks
type SymlinkPolicy int

const (
	// RejectSymlinks refuses to operate on a symlink.
	RejectSymlinks SymlinkPolicy = iota
	// ResolveSymlinks follows the link and operates on its target.
	ResolveSymlinks
	// SameDirSymlinks follows the link only when the target lives in the same
	// directory as the link. Manifest pointers are created that way.
	SameDirSymlinks
)

// SafeFileInfo contains information about a file after symlink checks
type SafeFileInfo struct {
	OriginalPath string
	ResolvedPath string
	IsSymlink    bool
	FileInfo     os.FileInfo
}

// CheckSymlink validates a file path according to the specified policy
func CheckSymlink(path string, policy SymlinkPolicy) (*SafeFileInfo, error) {
	if policy < RejectSymlinks || policy > SameDirSymlinks {
		return nil, fmt.Errorf("invalid symlink policy: %d", policy)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	result := &SafeFileInfo{
		OriginalPath: path,
		ResolvedPath: path,
		IsSymlink:    info.Mode()&os.ModeSymlink != 0,
		FileInfo:     info,
	}
	if !result.IsSymlink {
		return result, nil
	}

	if policy == RejectSymlinks {
		return nil, fmt.Errorf("symlinks are not allowed: %s", path)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlink %s: %w", path, err)
	}

	if policy == SameDirSymlinks {
		linkDir, err := filepath.EvalSymlinks(filepath.Dir(path))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve directory of %s: %w", path, err)
		}
		if filepath.Dir(resolved) != linkDir {
			return nil, fmt.Errorf("symlink %s points outside its directory: %s", path, resolved)
		}
	}

	targetInfo, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to access symlink target %s: %w", resolved, err)
	}
	result.ResolvedPath = resolved
	result.FileInfo = targetInfo
	return result, nil
}

// SafeReadFile reads a file after performing symlink checks
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	safeInfo, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(safeInfo.ResolvedPath)
}

// SafeWriteFile writes data to path, refusing to write through a symlink
// unless the policy allows it.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	if _, err := os.Lstat(path); err == nil {
		safeInfo, err := CheckSymlink(path, policy)
		if err != nil {
			return fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = safeInfo.ResolvedPath
	}
	return os.WriteFile(path, data, perm)
}
