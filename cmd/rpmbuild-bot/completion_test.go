package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runInstallCompletion runs install-completion with HOME pointing at a
// temp dir and returns that dir.
func runInstallCompletion(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("RPMBUILD_BOT_COMPLETION_SCOPE", "")

	out, err := runCLI(t, append([]string{"install-completion"}, args...)...)
	return home, out, err
}

func TestInstallCompletionUnknownShell(t *testing.T) {
	t.Setenv("SHELL", "/bin/unknown-shell")
	t.Setenv("PSModulePath", "")

	_, _, err := runInstallCompletion(t)
	if err == nil || !strings.Contains(err.Error(), "unsupported shell") {
		t.Fatalf("expected unsupported shell error, got %v", err)
	}

	_, _, err = runInstallCompletion(t, "--shell", "tcsh")
	if err == nil || !strings.Contains(err.Error(), "unsupported shell type") {
		t.Fatalf("expected unsupported shell type error, got %v", err)
	}
}

func TestInstallCompletionNoShell(t *testing.T) {
	t.Setenv("SHELL", "")
	t.Setenv("PSModulePath", "")

	if _, _, err := runInstallCompletion(t); err == nil || !strings.Contains(err.Error(), "could not detect shell") {
		t.Fatalf("expected detection error, got %v", err)
	}
}

func TestInstallCompletionDetectsShell(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/zsh")

	home, out, err := runInstallCompletion(t)
	if err != nil {
		t.Fatalf("install-completion: %v", err)
	}
	if !strings.Contains(out, "Shell completion installed for zsh") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(home, ".zsh", "completion", "_rpmbuild-bot")); err != nil {
		t.Errorf("zsh completion not written: %v", err)
	}
}

func TestInstallCompletionPerShell(t *testing.T) {
	tests := []struct {
		shell string
		path  []string
		marks string
	}{
		{"bash", []string{".bash_completion.d", "rpmbuild-bot.bash"}, "rpmbuild-bot"},
		{"zsh", []string{".zsh", "completion", "_rpmbuild-bot"}, "#compdef rpmbuild-bot"},
		{"fish", []string{".config", "fish", "completions", "rpmbuild-bot.fish"}, "complete -c rpmbuild-bot"},
		{"powershell", []string{"Documents", "WindowsPowerShell", "rpmbuild-bot-completion.ps1"}, "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			home, _, err := runInstallCompletion(t, "--shell", tt.shell)
			if err != nil {
				t.Fatalf("install-completion --shell %s: %v", tt.shell, err)
			}
			data, err := os.ReadFile(filepath.Join(append([]string{home}, tt.path...)...))
			if err != nil {
				t.Fatalf("completion file: %v", err)
			}
			if !strings.Contains(string(data), tt.marks) {
				t.Errorf("%s completion does not contain %q", tt.shell, tt.marks)
			}
		})
	}
}

func TestInstallCompletionNeedsForceToOverwrite(t *testing.T) {
	home, _, err := runInstallCompletion(t, "--shell", "fish")
	if err != nil {
		t.Fatalf("first install: %v", err)
	}

	// Same HOME for the following runs.
	t.Setenv("HOME", home)
	if _, err := runCLI(t, "install-completion", "--shell", "fish"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if _, err := runCLI(t, "install-completion", "--shell", "fish", "--force"); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
