// Package filelist implements timestamped file lists: the build manifests that
// record every artifact a build produced together with its modification time.
//
// A list is UTF-8 text with one "<unix-seconds>|<absolute-path>" record per
// line. Reading a list verifies that every file still exists and still carries
// the recorded time, so a list cannot silently go stale.
package filelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

var (
	ErrCorrupt = errors.New("file list is corrupt")
	ErrMissing = errors.New("listed file does not exist")
	ErrStale   = errors.New("file list is stale")
)

// Entry is one record of a list.
type Entry struct {
	Timestamp int64
	Path      string
}

func (e Entry) String() string {
	return strconv.FormatInt(e.Timestamp, 10) + "|" + e.Path
}

// TransformFunc rewrites a recorded path into the path that is checked and
// returned, for example the location of an artifact inside a repository.
type TransformFunc func(path string) (string, error)

// Stamp builds entries for paths using their current modification times.
func Stamp(paths ...string) ([]Entry, error) {
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		ts, err := file.ModTime(p)
		if err != nil {
			return nil, fmt.Errorf("stamping %s: %w", p, err)
		}
		entries = append(entries, Entry{Timestamp: ts, Path: p})
	}
	return entries, nil
}

// Write persists entries to listFile, replacing any previous content. The data
// goes to a temporary sibling first so a reader never sees a partial list.
func Write(listFile string, entries []Entry) error {
	if err := file.EnsureDir(filepath.Dir(listFile)); err != nil {
		return err
	}

	var b strings.Builder
	for _, e := range entries {
		if strings.ContainsAny(e.Path, "\n\r") {
			return fmt.Errorf("cannot record path with line break: %q", e.Path)
		}
		b.WriteString(e.String())
		b.WriteByte('\n')
	}

	tmp := filepath.Join(filepath.Dir(listFile), "."+filepath.Base(listFile)+"."+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, listFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", listFile, err)
	}
	return nil
}

// Parse decodes a list without touching the referenced files. Empty lines are
// ignored; a line without a separator or with a malformed timestamp is an
// ErrCorrupt.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		tsField, path, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("line %d: no separator: %w", lineNo, ErrCorrupt)
		}
		ts, err := parseTimestamp(tsField)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp %q: %w", lineNo, tsField, ErrCorrupt)
		}
		if path == "" {
			return nil, fmt.Errorf("line %d: empty path: %w", lineNo, ErrCorrupt)
		}
		entries = append(entries, Entry{Timestamp: ts, Path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseTimestamp accepts whole seconds and, for lists written by tools that
// keep sub-second precision, drops the fractional part.
func parseTimestamp(s string) (int64, error) {
	whole, _, _ := strings.Cut(strings.TrimSpace(s), ".")
	return strconv.ParseInt(whole, 10, 64)
}

// ReadEntries parses listFile without verifying it.
func ReadEntries(listFile string) ([]Entry, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", listFile, err)
	}
	return entries, nil
}

// Verify checks every entry, optionally transformed, against the file system
// and returns the resulting paths in list order. Any violation fails the whole
// call.
func Verify(entries []Entry, transform TransformFunc) ([]string, error) {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		path := e.Path
		if transform != nil {
			var err error
			if path, err = transform(e.Path); err != nil {
				return nil, err
			}
		}

		ts, err := file.ModTime(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", path, ErrMissing)
			}
			return nil, fmt.Errorf("checking %s: %w", path, err)
		}
		if ts != e.Timestamp {
			return nil, fmt.Errorf("%s: recorded time %d, actual %d: %w", path, e.Timestamp, ts, ErrStale)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Read parses and verifies listFile.
func Read(listFile string, transform TransformFunc) ([]string, error) {
	entries, err := ReadEntries(listFile)
	if err != nil {
		return nil, err
	}
	paths, err := Verify(entries, transform)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", listFile, err)
	}
	return paths, nil
}
