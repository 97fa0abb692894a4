package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config/validate"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/security"
)

// SaveWithComments writes the configuration with descriptive comments. It is
// used by `config init` to create a user-friendly starting file.
func (cfg *Config) SaveWithComments(configPath string) error {
	log := logger.Logger()

	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Errorf("Failed to create config directory: %v", err)
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	jsonData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		log.Errorf("Config validation failed before save: %v", err)
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(cfg.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		log.Errorf("Error writing config file: %v", err)
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func writeList(b *strings.Builder, key string, items []string) {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	fmt.Fprintf(b, "%s: [%s]\n", key, strings.Join(quoted, ", "))
}

// renderCommentedYAML builds a YAML representation of the config with rich comments.
func (cfg *Config) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# rpmbuild-bot configuration\n")
	b.WriteString("# Settings shared by all packages. A rpmbuild-bot.yml placed in a spec\n")
	b.WriteString("# directory or next to a spec file overrides them for those specs.\n\n")

	b.WriteString("# Directories\n")
	fmt.Fprintf(&b, "top_dir: %q\n", cfg.TopDir)
	b.WriteString("# rpmbuild %_topdir. rpm_dir, srpm_dir, source_dir, zip_dir and log_dir\n")
	b.WriteString("# default to RPMS, SRPMS, SOURCES, zip and logs below it.\n")
	for _, d := range []struct{ key, val string }{
		{"rpm_dir", cfg.RPMDir},
		{"srpm_dir", cfg.SRPMDir},
		{"source_dir", cfg.SourceDir},
		{"zip_dir", cfg.ZipDir},
		{"log_dir", cfg.LogDir},
	} {
		if d.val != "" {
			fmt.Fprintf(&b, "%s: %q\n", d.key, d.val)
		}
	}
	if len(cfg.SpecDirs) > 0 {
		writeList(&b, "spec_dirs", cfg.SpecDirs)
	}
	b.WriteString("# Directories searched for NAME.spec and NAME/NAME.spec\n\n")

	b.WriteString("# Targets\n")
	writeList(&b, "archs", cfg.Archs)
	b.WriteString("# Built in order with the LAST one first. The last arch is the base arch:\n")
	b.WriteString("# test builds use it and the ZIP archive is made from its packages.\n")
	fmt.Fprintf(&b, "dist: %q\n", cfg.Dist)
	b.WriteString("# Value of %dist, appended to legacy package versions\n\n")

	b.WriteString("# Builder\n")
	fmt.Fprintf(&b, "rpmbuild: %q\n", cfg.RPMBuild)
	if len(cfg.Environment) > 0 {
		b.WriteString("environment:\n")
		for _, kv := range cfg.Env() {
			k, v, _ := strings.Cut(kv, "=")
			fmt.Fprintf(&b, "  %s: %q\n", k, v)
		}
	} else {
		b.WriteString("# environment:\n")
		b.WriteString("#   LANG: C\n")
	}
	b.WriteString("# Extra environment variables passed to rpmbuild\n\n")

	b.WriteString("# Repositories\n")
	b.WriteString("# Layouts map artifact kinds to directories; ${base} is the repository base\n")
	b.WriteString("# and ${arch} the package architecture.\n")
	if len(cfg.Layouts) > 0 {
		b.WriteString("layouts:\n")
		names := make([]string, 0, len(cfg.Layouts))
		for name := range cfg.Layouts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			l := cfg.Layouts[name]
			fmt.Fprintf(&b, "  %s:\n    srpm: %q\n    rpm: %q\n    zip: %q\n", name, l.SRPM, l.RPM, l.Zip)
		}
	} else {
		b.WriteString("# layouts:\n")
		b.WriteString("#   default:\n")
		b.WriteString("#     srpm: \"${base}/SRPMS\"\n")
		b.WriteString("#     rpm: \"${base}/RPMS/${arch}\"\n")
		b.WriteString("#     zip: \"${base}/zip\"\n")
	}
	if len(cfg.Repositories) > 0 {
		b.WriteString("repositories:\n")
		for _, r := range cfg.Repositories {
			fmt.Fprintf(&b, "  - id: %q\n    base: %q\n    layout: %q\n", r.ID, r.Base, r.Layout)
			if r.GPGKey != "" {
				fmt.Fprintf(&b, "    gpg_key: %q\n", r.GPGKey)
			}
		}
	} else {
		b.WriteString("# repositories:\n")
		b.WriteString("#   - id: exp\n")
		b.WriteString("#     base: /srv/repo/experimental\n")
		b.WriteString("#     layout: default\n")
		b.WriteString("#   - id: release\n")
		b.WriteString("#     base: /srv/repo/release\n")
		b.WriteString("#     layout: default\n")
		b.WriteString("#     gpg_key: /srv/keys/release.asc\n")
	}
	b.WriteString("# Upload and remove default to the first repository; move goes to the next one.\n\n")

	b.WriteString("# Legacy runtime\n")
	b.WriteString("legacy:\n")
	if cfg.Legacy.Repository != "" {
		fmt.Fprintf(&b, "  repository: %q\n", cfg.Legacy.Repository)
	}
	fmt.Fprintf(&b, "  default_mask: %q\n", cfg.Legacy.DefaultMask)
	b.WriteString("# packages:\n")
	b.WriteString("#   foo:\n")
	b.WriteString("#     archs: [\"i686\", \"pentium4\"]\n")
	b.WriteString("#     legacy:\n")
	b.WriteString("#       - {abi: \"abi1\", name: \"foo\", version: \"1.0-1\", mask: \"*.dll\"}\n\n")

	b.WriteString("# Logging configuration\n")
	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", cfg.Logging.Level)
	b.WriteString("  # Log verbosity level (default: info)\n")
	b.WriteString("  # - debug: Most verbose, shows every external command\n")
	b.WriteString("  # - info:  Normal output, shows progress and important events\n")
	b.WriteString("  # - warn:  Only warnings and errors, minimal output\n")
	b.WriteString("  # - error: Only errors, very quiet operation\n")
	if cfg.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", cfg.Logging.File)
		b.WriteString("  # Tee logs to this file in addition to stderr (overwritten on each run)\n")
	}

	return b.String()
}
