package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

const sampleConfig = `
top_dir: %TOP%
archs: [i686, pentium4]
dist: .oc00
environment:
  LANG: C
  BEGINLIBPATH: /usr/lib
layouts:
  default:
    srpm: "${base}/SRPMS"
    rpm: "${base}/RPMS/${arch}"
    zip: "${base}/zip"
repositories:
  - id: exp
    base: %TOP%/repo/exp
    layout: default
  - id: release
    base: %TOP%/repo/release
    layout: default
packages:
  foo:
    archs: [pentium4]
    legacy:
      - abi: abi1
        name: foo
        version: 1.0-1
legacy:
  repository: release
logging:
  level: debug
`

func sample(top string) string {
	return strings.ReplaceAll(sampleConfig, "%TOP%", top)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg.Archs, []string{"x86_64"}) {
		t.Errorf("Archs = %v", cfg.Archs)
	}
	if cfg.RPMBuild != "rpmbuild" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogDir != filepath.Join(cfg.TopDir, "logs") {
		t.Errorf("LogDir = %s", cfg.LogDir)
	}
	if cfg.Legacy.DefaultMask != DefaultLegacyMask {
		t.Errorf("DefaultMask = %q", cfg.Legacy.DefaultMask)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "rpmbuild-bot.yml", sample(dir))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.TopDir != dir {
		t.Errorf("TopDir = %s, want %s", cfg.TopDir, dir)
	}
	wantDirs := map[string]string{
		"rpm":    filepath.Join(dir, "RPMS"),
		"srpm":   filepath.Join(dir, "SRPMS"),
		"source": filepath.Join(dir, "SOURCES"),
		"zip":    filepath.Join(dir, "zip"),
		"log":    filepath.Join(dir, "logs"),
	}
	gotDirs := map[string]string{
		"rpm": cfg.RPMDir, "srpm": cfg.SRPMDir, "source": cfg.SourceDir, "zip": cfg.ZipDir, "log": cfg.LogDir,
	}
	if !reflect.DeepEqual(gotDirs, wantDirs) {
		t.Errorf("derived dirs = %v, want %v", gotDirs, wantDirs)
	}
	if !reflect.DeepEqual(cfg.SpecDirs, []string{filepath.Join(dir, "SPECS")}) {
		t.Errorf("SpecDirs = %v", cfg.SpecDirs)
	}

	if got := cfg.PackageArchs("foo"); !reflect.DeepEqual(got, []string{"pentium4"}) {
		t.Errorf("PackageArchs(foo) = %v", got)
	}
	if got := cfg.PackageArchs("bar"); !reflect.DeepEqual(got, []string{"i686", "pentium4"}) {
		t.Errorf("PackageArchs(bar) = %v", got)
	}
	if cfg.BaseArch("bar") != "pentium4" {
		t.Errorf("BaseArch(bar) = %s", cfg.BaseArch("bar"))
	}
	if got := cfg.Env(); !reflect.DeepEqual(got, []string{"BEGINLIBPATH=/usr/lib", "LANG=C"}) {
		t.Errorf("Env = %v", got)
	}
	if got := cfg.RepositoryIDs(); !reflect.DeepEqual(got, []string{"exp", "release"}) {
		t.Errorf("RepositoryIDs = %v", got)
	}
	if len(cfg.LegacyDescriptors("foo")) != 1 || cfg.LegacyDescriptors("bar") != nil {
		t.Errorf("unexpected legacy descriptors")
	}
	if cfg.BuildLogDir("foo") != filepath.Join(dir, "logs", "build", "foo") {
		t.Errorf("BuildLogDir = %s", cfg.BuildLogDir("foo"))
	}
	if cfg.PackageSourceDir("foo") != filepath.Join(dir, "SOURCES", "foo") {
		t.Errorf("PackageSourceDir = %s", cfg.PackageSourceDir("foo"))
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "unknown key",
			file:    "c.yml",
			content: "workers: 4\n",
			wantErr: "schema validation",
		},
		{
			name:    "unsupported extension",
			file:    "c.ini",
			content: "[general]\n",
			wantErr: "unsupported config file format",
		},
		{
			name: "unknown layout",
			file: "c.yml",
			content: `
repositories:
  - {id: exp, base: /r, layout: missing}
`,
			wantErr: "unknown layout",
		},
		{
			name: "duplicate repository",
			file: "c.yml",
			content: `
layouts:
  d: {srpm: s, rpm: r, zip: z}
repositories:
  - {id: exp, base: /r1, layout: d}
  - {id: exp, base: /r2, layout: d}
`,
			wantErr: "defined twice",
		},
		{
			name: "legacy without repository",
			file: "c.yml",
			content: `
packages:
  foo:
    legacy:
      - {abi: a, name: foo, version: "1.0"}
`,
			wantErr: "legacy.repository",
		},
		{
			name:    "duplicate arch",
			file:    "c.yml",
			content: "archs: [i686, i686]\n",
			wantErr: "twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithOverlays(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(writeConfig(t, dir, "rpmbuild-bot.yml", sample(dir)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	specDir := filepath.Join(dir, "SPECS", "bar")
	if err := os.MkdirAll(specDir, 0o755); err != nil {
		t.Fatal(err)
	}
	overlay := writeConfig(t, specDir, OverlayFileName, `
environment:
  LANG: en_US
packages:
  bar:
    archs: [i686]
`)

	merged, err := cfg.WithOverlays(filepath.Join(dir, "SPECS", OverlayFileName), overlay)
	if err != nil {
		t.Fatalf("WithOverlays: %v", err)
	}
	if got := merged.PackageArchs("bar"); !reflect.DeepEqual(got, []string{"i686"}) {
		t.Errorf("merged PackageArchs(bar) = %v", got)
	}
	if merged.Environment["LANG"] != "en_US" || merged.Environment["BEGINLIBPATH"] != "/usr/lib" {
		t.Errorf("merged environment = %v", merged.Environment)
	}
	if got := merged.PackageArchs("foo"); !reflect.DeepEqual(got, []string{"pentium4"}) {
		t.Errorf("overlay dropped package foo: %v", got)
	}

	// the base configuration is untouched
	if cfg.Environment["LANG"] != "C" {
		t.Errorf("base environment modified: %v", cfg.Environment)
	}
	if _, ok := cfg.Packages["bar"]; ok {
		t.Error("base packages modified")
	}
}

func TestWithOverlaysNoFiles(t *testing.T) {
	cfg := DefaultConfig()
	merged, err := cfg.WithOverlays(filepath.Join(t.TempDir(), OverlayFileName))
	if err != nil {
		t.Fatalf("WithOverlays: %v", err)
	}
	if merged == cfg {
		t.Error("WithOverlays must return a copy")
	}
}

func TestSaveWithCommentsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.TopDir = dir
	cfg.Archs = []string{"i686", "pentium4"}
	cfg.Layouts = map[string]Layout{"default": {SRPM: "${base}/SRPMS", RPM: "${base}/RPMS/${arch}", Zip: "${base}/zip"}}
	cfg.Repositories = []Repository{{ID: "exp", Base: filepath.Join(dir, "repo"), Layout: "default"}}
	cfg.Environment = map[string]string{"LANG": "C"}

	path := filepath.Join(dir, "conf", "rpmbuild-bot.yml")
	if err := cfg.SaveWithComments(path); err != nil {
		t.Fatalf("SaveWithComments: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# rpmbuild-bot configuration") {
		t.Errorf("missing header comment:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config: %v\n%s", err, data)
	}
	if !reflect.DeepEqual(loaded.Archs, cfg.Archs) {
		t.Errorf("Archs = %v, want %v", loaded.Archs, cfg.Archs)
	}
	if !reflect.DeepEqual(loaded.Layouts, cfg.Layouts) {
		t.Errorf("Layouts = %v, want %v", loaded.Layouts, cfg.Layouts)
	}
	if loaded.Repositories[0].ID != "exp" || loaded.Environment["LANG"] != "C" {
		t.Errorf("unexpected loaded config %+v", loaded)
	}
}

func TestSaveWithCommentsEmptyPath(t *testing.T) {
	if err := DefaultConfig().SaveWithComments(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestGetConfigPaths(t *testing.T) {
	paths := GetConfigPaths()
	if len(paths) == 0 || paths[0] != "rpmbuild-bot.yml" {
		t.Errorf("unexpected search order: %v", paths)
	}
	if paths[len(paths)-1] != "/etc/rpmbuild-bot/config.yaml" {
		t.Errorf("system path missing: %v", paths)
	}
}
