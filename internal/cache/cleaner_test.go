package cache

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config"
)

func setupCache(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TopDir = t.TempDir()
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{
		filepath.Join(cfg.SourceDir, "foo", "foo-legacy", "abi1", "i686", "bin", "foo1.dll"),
		filepath.Join(cfg.SourceDir, "foo", "foo.patch"),
		filepath.Join(cfg.SourceDir, "bar", "bar.patch"),
		filepath.Join(cfg.ZipDir, ".foo-root", "usr", "bin", "foo"),
	} {
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return cfg
}

func TestCleanRequiresScope(t *testing.T) {
	if _, err := Clean(setupCache(t), CleanOptions{}); err == nil {
		t.Fatal("expected error when no scope is selected")
	}
}

func TestCleanLegacy(t *testing.T) {
	cfg := setupCache(t)

	res, err := Clean(cfg, CleanOptions{CleanLegacy: true})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	legacyDir := filepath.Join(cfg.SourceDir, "foo", "foo-legacy")
	if !reflect.DeepEqual(res.RemovedPaths, []string{legacyDir}) {
		t.Errorf("removed = %v", res.RemovedPaths)
	}
	if len(res.SkippedPaths) != 0 {
		t.Errorf("skipped = %v", res.SkippedPaths)
	}
	if _, err := os.Stat(legacyDir); !os.IsNotExist(err) {
		t.Error("legacy tree still exists")
	}
	if _, err := os.Stat(filepath.Join(cfg.SourceDir, "foo", "foo.patch")); err != nil {
		t.Errorf("staged source removed: %v", err)
	}
}

func TestCleanSourcesForPackage(t *testing.T) {
	cfg := setupCache(t)

	res, err := Clean(cfg, CleanOptions{CleanSources: true, CleanZipRoot: true, Package: "foo"})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	want := []string{filepath.Join(cfg.SourceDir, "foo"), filepath.Join(cfg.ZipDir, ".foo-root")}
	if !reflect.DeepEqual(res.RemovedPaths, want) {
		t.Errorf("removed = %v, want %v", res.RemovedPaths, want)
	}
	if _, err := os.Stat(filepath.Join(cfg.SourceDir, "bar")); err != nil {
		t.Errorf("other package removed: %v", err)
	}

	res, err = Clean(cfg, CleanOptions{CleanLegacy: true, Package: "foo"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.RemovedPaths) != 0 || len(res.SkippedPaths) != 1 {
		t.Errorf("second run = %+v", res)
	}
}

func TestCleanDryRun(t *testing.T) {
	cfg := setupCache(t)

	res, err := Clean(cfg, CleanOptions{CleanSources: true, DryRun: true})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if len(res.RemovedPaths) != 2 {
		t.Errorf("removed = %v", res.RemovedPaths)
	}
	for _, p := range res.RemovedPaths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("dry run deleted %s", p)
		}
	}
}

func TestCleanRejectsBadPackage(t *testing.T) {
	for _, pkg := range []string{"../etc", "..", "*", "f?o", "[fb]oo"} {
		if _, err := Clean(setupCache(t), CleanOptions{CleanSources: true, CleanZipRoot: true, Package: pkg}); err == nil {
			t.Errorf("expected error for package name %q", pkg)
		}
	}
}

func TestCleanZipRootOnlyNamedPackage(t *testing.T) {
	cfg := setupCache(t)
	other := filepath.Join(cfg.ZipDir, ".bar-root")
	os.MkdirAll(other, 0o755)

	res, err := Clean(cfg, CleanOptions{CleanZipRoot: true, Package: "foo"})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if !reflect.DeepEqual(res.RemovedPaths, []string{filepath.Join(cfg.ZipDir, ".foo-root")}) {
		t.Errorf("removed = %v", res.RemovedPaths)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("zip root of another package removed: %v", err)
	}

	res, err = Clean(cfg, CleanOptions{CleanZipRoot: true, Package: "baz"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.RemovedPaths) != 0 || !reflect.DeepEqual(res.SkippedPaths, []string{filepath.Join(cfg.ZipDir, ".baz-root")}) {
		t.Errorf("missing package = %+v", res)
	}
}
