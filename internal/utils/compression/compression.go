package compression

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

const XzSuffix = ".xz"

// CompressFile writes an xz-compressed copy of src to dst, keeping the
// modification time of src.
func CompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	w, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("creating xz writer for %s: %w", dst, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		out.Close()
		return fmt.Errorf("compressing %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finishing xz stream %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// ArchiveLogs compresses every file in logs into dir as <base>.xz and removes
// the originals once all of them are written.
func ArchiveLogs(logs []string, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	written := make([]string, 0, len(logs))
	for _, src := range logs {
		dst := filepath.Join(dir, filepath.Base(src)+XzSuffix)
		if err := CompressFile(src, dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	for _, src := range logs {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return written, fmt.Errorf("removing %s: %w", src, err)
		}
	}
	return written, nil
}

// IsCompressedLog reports whether name is a log archived by ArchiveLogs.
func IsCompressedLog(name string) bool {
	return strings.HasSuffix(name, ".log"+XzSuffix)
}

// ArchivedLogs lists the compressed logs in dir. A missing dir holds none.
func ArchivedLogs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var logs []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsCompressedLog(e.Name()) {
			logs = append(logs, filepath.Join(dir, e.Name()))
		}
	}
	return logs, nil
}
