package file_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		base, target string
		want         bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c", true},
		{"/a/b", "/a/bc", false},
		{"/a/b", "/a", false},
		{"/a/b", "/a/b/../c", false},
		{"/a/b", "/a/b/..foo", true},
	}
	for _, tt := range tests {
		got, err := file.IsSubPath(tt.base, tt.target)
		if err != nil {
			t.Fatalf("IsSubPath(%q, %q) error: %v", tt.base, tt.target, err)
		}
		if got != tt.want {
			t.Errorf("IsSubPath(%q, %q) = %v, want %v", tt.base, tt.target, got, tt.want)
		}
	}
}

func TestCopyFilePreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "foo-1.0-1.i686.rpm")
	dst := filepath.Join(dir, "repo", "RPMS", "i686", "foo-1.0-1.i686.rpm")
	stamp := time.Unix(1700000000, 0)
	writeFile(t, src, "payload", stamp)

	if err := file.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Fatalf("unexpected copy content %q (err %v)", data, err)
	}
	got, err := file.ModTime(dst)
	if err != nil {
		t.Fatalf("ModTime: %v", err)
	}
	if got != stamp.Unix() {
		t.Errorf("mtime = %d, want %d", got, stamp.Unix())
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source must survive a copy: %v", err)
	}

	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a", "x.rpm")
	dst := filepath.Join(dir, "b", "c", "x.rpm")
	stamp := time.Unix(1600000000, 0)
	writeFile(t, src, "x", stamp)

	if err := file.MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if ok, _ := file.Exists(src); ok {
		t.Error("source still exists after move")
	}
	if got, _ := file.ModTime(dst); got != stamp.Unix() {
		t.Errorf("mtime = %d, want %d", got, stamp.Unix())
	}
}

func TestModTimeTruncatesFraction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	stamp := time.Unix(1700000000, 987654321)
	writeFile(t, path, "", stamp)

	got, err := file.ModTime(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1700000000 {
		t.Errorf("ModTime = %d, want 1700000000", got)
	}
}

func TestCopyDirFilesExcludes(t *testing.T) {
	dir := t.TempDir()
	aux := filepath.Join(dir, "foo")
	writeFile(t, filepath.Join(aux, "foo.spec"), "spec", time.Time{})
	writeFile(t, filepath.Join(aux, "foo.patch"), "patch", time.Time{})
	os.MkdirAll(filepath.Join(aux, "sub"), 0o755)

	out := filepath.Join(dir, "SOURCES", "foo")
	copied, err := file.CopyDirFiles(aux, out, filepath.Join(aux, "foo.spec"))
	if err != nil {
		t.Fatalf("CopyDirFiles: %v", err)
	}
	if len(copied) != 1 || filepath.Base(copied[0]) != "foo.patch" {
		t.Errorf("copied = %v", copied)
	}
}

func TestRemovePathAndRemoveIfEmpty(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "tree")
	writeFile(t, filepath.Join(tree, "a", "b"), "", time.Time{})

	if err := file.RemovePath(tree); err != nil {
		t.Fatalf("RemovePath: %v", err)
	}
	if err := file.RemovePath(tree); err != nil {
		t.Fatalf("RemovePath on missing path: %v", err)
	}

	empty := filepath.Join(dir, "empty")
	os.Mkdir(empty, 0o755)
	if err := file.RemoveIfEmpty(empty); err != nil {
		t.Fatalf("RemoveIfEmpty: %v", err)
	}
	if ok, _ := file.Exists(empty); ok {
		t.Error("empty dir not removed")
	}
	if err := file.RemoveIfEmpty(empty); err != nil {
		t.Errorf("RemoveIfEmpty on missing dir: %v", err)
	}
}
