package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSymlink_RegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.list")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, policy := range []SymlinkPolicy{RejectSymlinks, ResolveSymlinks, SameDirSymlinks} {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			t.Fatalf("policy %d: %v", policy, err)
		}
		if info.IsSymlink || info.ResolvedPath != path {
			t.Errorf("policy %d: unexpected info %+v", policy, info)
		}
	}
}

func TestCheckSymlink_Policies(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "foo-1.0-1.list")
	os.WriteFile(target, []byte("content"), 0o644)
	link := filepath.Join(dir, "foo.list")
	if err := os.Symlink("foo-1.0-1.list", link); err != nil {
		t.Fatal(err)
	}

	if _, err := CheckSymlink(link, RejectSymlinks); err == nil {
		t.Error("RejectSymlinks accepted a symlink")
	}

	for _, policy := range []SymlinkPolicy{ResolveSymlinks, SameDirSymlinks} {
		info, err := CheckSymlink(link, policy)
		if err != nil {
			t.Fatalf("policy %d: %v", policy, err)
		}
		if !info.IsSymlink {
			t.Errorf("policy %d: symlink not detected", policy)
		}
		if filepath.Base(info.ResolvedPath) != "foo-1.0-1.list" {
			t.Errorf("policy %d: resolved to %s", policy, info.ResolvedPath)
		}
	}
}

func TestCheckSymlink_SameDirRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other")
	os.Mkdir(other, 0o755)
	target := filepath.Join(other, "elsewhere.list")
	os.WriteFile(target, []byte("x"), 0o644)

	link := filepath.Join(dir, "foo.list")
	os.Symlink(target, link)

	if _, err := CheckSymlink(link, SameDirSymlinks); err == nil {
		t.Error("expected SameDirSymlinks to reject a link leaving its directory")
	}
	if _, err := CheckSymlink(link, ResolveSymlinks); err != nil {
		t.Errorf("ResolveSymlinks should follow any link: %v", err)
	}
}

func TestCheckSymlink_InvalidPolicy(t *testing.T) {
	if _, err := CheckSymlink("/", SymlinkPolicy(42)); err == nil {
		t.Error("expected error for invalid policy")
	}
}

func TestSafeReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yml")
	if err := SafeWriteFile(path, []byte("a: 1"), 0o600, RejectSymlinks); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	data, err := SafeReadFile(path, RejectSymlinks)
	if err != nil || string(data) != "a: 1" {
		t.Fatalf("SafeReadFile = %q, %v", data, err)
	}

	link := filepath.Join(dir, "link.yml")
	os.Symlink(path, link)
	if err := SafeWriteFile(link, []byte("b: 2"), 0o600, RejectSymlinks); err == nil {
		t.Error("SafeWriteFile wrote through a symlink")
	}
}
