package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config/version"
	"github.com/open-edge-platform/rpmbuild-bot/internal/lifecycle"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/security"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/shell"
	"go.uber.org/zap/zapcore"
)

// runCLI executes the command line args against a fresh root command and
// returns its standard output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := createRootCommand()
	security.AttachRecursive(root, security.DefaultLimits())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	closeLog()
	return out.String(), err
}

// writeBotConfig creates a configuration with one x86_64 target, a spec
// directory holding foo and one repository, all below a temp dir.
func writeBotConfig(t *testing.T) (string, string) {
	t.Helper()
	top := t.TempDir()

	specDir := filepath.Join(top, "specs", "foo")
	if err := os.MkdirAll(specDir, 0o755); err != nil {
		t.Fatal(err)
	}
	spec := "Name: foo\nVersion: 1.0\nRelease: 1\n"
	if err := os.WriteFile(filepath.Join(specDir, "foo.spec"), []byte(spec), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(specDir, "foo.patch"), []byte("--- a\n+++ b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgText := `top_dir: ` + top + `
spec_dirs: [` + filepath.Join(top, "specs") + `]
archs: [x86_64]
layouts:
  default:
    srpm: "${base}/SRPMS"
    rpm: "${base}/RPMS/${arch}"
    zip: "${base}/zip"
repositories:
  - id: exp
    base: ` + filepath.Join(top, "repo") + `
    layout: default
logging:
  level: error
`
	path := filepath.Join(top, "bot.yml")
	if err := os.WriteFile(path, []byte(cfgText), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, top
}

func TestConfigInitCreatesFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "my-config.yml")

	out, err := runCLI(t, "config", "init", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Configuration file created at: "+target) {
		t.Errorf("unexpected output: %s", out)
	}

	contents, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	text := string(contents)
	if !strings.HasPrefix(text, "# rpmbuild-bot configuration") {
		t.Fatalf("generated config missing header comments: %s", text)
	}
	if !strings.Contains(text, "x86_64") {
		t.Fatalf("generated config missing archs: %s", text)
	}

	// The generated file must load back.
	if _, err := runCLI(t, "--config", target, "config", "show"); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
}

func TestConfigShowAppliesOverlay(t *testing.T) {
	cfgPath, top := writeBotConfig(t)
	overlay := filepath.Join(top, "specs", "foo", "rpmbuild-bot.yml")
	if err := os.WriteFile(overlay, []byte("dist: .oc00\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, ".oc00") {
		t.Errorf("overlay applied without a spec: %s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "config", "show", "foo")
	if err != nil {
		t.Fatalf("config show foo: %v", err)
	}
	if !strings.Contains(out, "dist: .oc00") {
		t.Errorf("overlay not applied: %s", out)
	}
}

func TestBadConfigIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("archs: [x86_64, x86_64]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "--config", path, "list")
	if err == nil {
		t.Fatal("expected an error for duplicate archs")
	}
	var buf bytes.Buffer
	if code := reportError(&buf, err); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, s := range []string{version.Toolname + " v" + version.Version, "Build Date:", "Commit:", "Organization:"} {
		if !strings.Contains(out, s) {
			t.Errorf("version output missing %q: %s", s, out)
		}
	}
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	cfgPath, _ := writeBotConfig(t)

	if _, err := runCLI(t, "--config", cfgPath, "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if logger.Logger().Desugar().Core().Enabled(zapcore.WarnLevel) {
		t.Error("configured error level not applied")
	}

	if _, err := runCLI(t, "--config", cfgPath, "--log-level", "debug", "list"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !logger.Logger().Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("--log-level debug not applied")
	}
}

func TestListCommand(t *testing.T) {
	cfgPath, top := writeBotConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No releases found.") {
		t.Errorf("unexpected output for empty log dir: %s", out)
	}

	archive := filepath.Join(top, "logs", "archive", "foo")
	build := filepath.Join(top, "logs", "build", "foo")
	for _, d := range []string{archive, build} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"foo-1.0-1.list", "foo-1.1-1.list"} {
		if err := os.WriteFile(filepath.Join(archive, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("foo-1.1-1.list", filepath.Join(archive, "foo.list")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(build, "foo-1.2-1.list"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("foo-1.2-1.list", filepath.Join(build, "foo.list")); err != nil {
		t.Fatal(err)
	}

	out, err = runCLI(t, "--config", cfgPath, "list", "f*")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := "  foo:1.0-1\n* foo:1.1-1\n  foo:1.2-1 (pending)\n"
	if out != want {
		t.Errorf("list output = %q, want %q", out, want)
	}

	out, err = runCLI(t, "--config", cfgPath, "list", "bar*")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No releases found.") {
		t.Errorf("pattern not applied: %s", out)
	}
}

func TestTestCommandRunsBuilder(t *testing.T) {
	cfgPath, top := writeBotConfig(t)

	rpm := filepath.Join(top, "RPMS", "x86_64", "foo-1.0-1.x86_64.rpm")
	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: `^rpmbuild --target=x86_64 --define=dist %nil -bb`, Output: "Wrote: " + rpm + "\n"},
	})
	orig := shell.Default
	shell.Default = mock
	t.Cleanup(func() { shell.Default = orig })

	out, err := runCLI(t, "--config", cfgPath, "test", "foo")
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if !strings.Contains(out, "Test build of foo (all) succeeded") || !strings.Contains(out, rpm) {
		t.Errorf("unexpected output: %s", out)
	}
	if len(mock.Calls) != 1 {
		t.Fatalf("builder calls = %v", mock.Calls)
	}

	staged := filepath.Join(top, "SOURCES", "foo", "foo.patch")
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("auxiliary file not staged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(top, "SOURCES", "foo", "foo.spec")); !os.IsNotExist(err) {
		t.Error("spec file must not be staged")
	}
}

func TestTestCommandRejectsBadPhase(t *testing.T) {
	cfgPath, _ := writeBotConfig(t)

	_, err := runCLI(t, "--config", cfgPath, "test", "--phase", "bogus", "foo")
	if err == nil {
		t.Fatal("expected an error for an unknown phase")
	}
	var buf bytes.Buffer
	if code := reportError(&buf, err); code != exitConfig {
		t.Errorf("exit code = %d, want %d", code, exitConfig)
	}
}

func TestBuildFailureReportsLogTail(t *testing.T) {
	cfgPath, top := writeBotConfig(t)

	orig := shell.Default
	shell.Default = shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: `^rpmbuild`, Output: "error: File not found: foo-1.0.tar.gz\n", Error: os.ErrProcessDone},
	})
	t.Cleanup(func() { shell.Default = orig })

	_, err := runCLI(t, "--config", cfgPath, "build", "foo")
	if err == nil {
		t.Fatal("expected build failure")
	}
	if lifecycle.KindOf(err) != lifecycle.External {
		t.Errorf("kind = %v, want external", lifecycle.KindOf(err))
	}

	var buf bytes.Buffer
	if code := reportError(&buf, err); code != exitExternal {
		t.Errorf("exit code = %d, want %d", code, exitExternal)
	}
	if !strings.Contains(buf.String(), "error: File not found: foo-1.0.tar.gz") {
		t.Errorf("log tail missing from report: %s", buf.String())
	}
	if _, err := os.Stat(filepath.Join(top, "logs", "build", "foo", "foo.list")); !os.IsNotExist(err) {
		t.Error("failed build must not leave a pending manifest")
	}
}

func TestRemoveWithoutRepoNeedsPendingBuild(t *testing.T) {
	cfgPath, _ := writeBotConfig(t)

	_, err := runCLI(t, "--config", cfgPath, "remove", "foo")
	if err == nil {
		t.Fatal("expected an error without a pending build")
	}
	if lifecycle.KindOf(err) != lifecycle.Precondition {
		t.Errorf("kind = %v, want precondition", lifecycle.KindOf(err))
	}
	var buf bytes.Buffer
	reportError(&buf, err)
	if !strings.Contains(buf.String(), "HINT: Use the build command") {
		t.Errorf("missing hint: %s", buf.String())
	}
}

func TestMoveNeedsVersion(t *testing.T) {
	cfgPath, _ := writeBotConfig(t)

	if _, err := runCLI(t, "--config", cfgPath, "move", "foo"); err == nil {
		t.Fatal("expected an error for a move without version")
	}
	if _, err := runCLI(t, "--config", cfgPath, "move", "foo:bad"); err == nil {
		t.Fatal("expected an error for a malformed version")
	}
}

func TestCacheCleanDryRun(t *testing.T) {
	cfgPath, top := writeBotConfig(t)
	staged := filepath.Join(top, "SOURCES", "foo")
	if err := os.MkdirAll(staged, 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", cfgPath, "cache", "clean", "--sources", "--dry-run")
	if err != nil {
		t.Fatalf("cache clean: %v", err)
	}
	if !strings.Contains(out, "Would remove:") || !strings.Contains(out, staged) {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("dry run removed %s", staged)
	}
}
