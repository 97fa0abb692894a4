package security

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestValidateString(t *testing.T) {
	lim := DefaultLimits()
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"foo:1.0-1", false},
		{"release=archive", false},
		{"foo\nbar", true},
		{"foo\x00", true},
		{"tab\there", true},
		{string([]byte{0xff, 0xfe}), true},
		{strings.Repeat("a", lim.MaxString+1), true},
	}
	for _, tt := range tests {
		err := ValidateString("arg", tt.in, lim)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestAttachRecursiveValidatesArgsAndFlags(t *testing.T) {
	var ran bool
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{
		Use:  "build",
		RunE: func(cmd *cobra.Command, args []string) error { ran = true; return nil },
	}
	var repo string
	child.Flags().StringVar(&repo, "repo", "", "")
	root.AddCommand(child)
	AttachRecursive(root, DefaultLimits())

	root.SetArgs([]string{"build", "foo\x07"})
	if err := root.Execute(); err == nil {
		t.Error("expected control rune in argument to be rejected")
	}
	if ran {
		t.Error("command ran despite invalid argument")
	}

	root.SetArgs([]string{"build", "--repo", "bad\nrepo", "foo"})
	if err := root.Execute(); err == nil {
		t.Error("expected newline in flag to be rejected")
	}

	root.SetArgs([]string{"build", "--repo", "release", "foo"})
	if err := root.Execute(); err != nil {
		t.Errorf("valid invocation failed: %v", err)
	}
	if !ran {
		t.Error("command did not run")
	}
}
