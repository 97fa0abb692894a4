// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/rpmbuild-bot/internal/config/validate"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/security"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/slice"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLegacyMask selects the runtime files pulled out of a legacy package
	// when its descriptor leaves the mask empty.
	DefaultLegacyMask = "*.dll"

	// OverlayFileName is looked up next to spec files and in spec directories.
	OverlayFileName = "rpmbuild-bot.yml"
)

// Config is the complete tool configuration. It is built once per invocation and
// handed to every component; nothing reads process-wide settings on its own.
type Config struct {
	TopDir    string `yaml:"top_dir" json:"top_dir"`                           // rpmbuild %_topdir
	RPMDir    string `yaml:"rpm_dir,omitempty" json:"rpm_dir,omitempty"`       // binary packages (default: <top_dir>/RPMS)
	SRPMDir   string `yaml:"srpm_dir,omitempty" json:"srpm_dir,omitempty"`     // source packages (default: <top_dir>/SRPMS)
	SourceDir string `yaml:"source_dir,omitempty" json:"source_dir,omitempty"` // per-package source staging (default: <top_dir>/SOURCES)
	ZipDir    string `yaml:"zip_dir,omitempty" json:"zip_dir,omitempty"`       // combined archives (default: <top_dir>/zip)
	LogDir    string `yaml:"log_dir,omitempty" json:"log_dir,omitempty"`       // build, test and archive logs (default: <top_dir>/logs)

	SpecDirs []string `yaml:"spec_dirs,omitempty" json:"spec_dirs,omitempty"` // where bare spec names are searched
	Archs    []string `yaml:"archs" json:"archs"`                             // target architectures, the last one is the base
	Dist     string   `yaml:"dist,omitempty" json:"dist,omitempty"`           // value of %dist appended to legacy versions

	RPMBuild    string            `yaml:"rpmbuild" json:"rpmbuild"`                           // builder executable
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"` // extra builder environment

	Layouts      map[string]Layout  `yaml:"layouts,omitempty" json:"layouts,omitempty"`
	Repositories []Repository       `yaml:"repositories,omitempty" json:"repositories,omitempty"`
	Packages     map[string]Package `yaml:"packages,omitempty" json:"packages,omitempty"`
	Legacy       LegacyConfig       `yaml:"legacy,omitempty" json:"legacy,omitempty"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// Layout holds the directory templates of one repository layout. Templates may
// use ${base} (the repository base directory) and ${arch}.
type Layout struct {
	SRPM string `yaml:"srpm" json:"srpm"`
	RPM  string `yaml:"rpm" json:"rpm"`
	Zip  string `yaml:"zip" json:"zip"`
}

// Repository is a publishing destination.
type Repository struct {
	ID     string `yaml:"id" json:"id"`
	Base   string `yaml:"base" json:"base"`
	Layout string `yaml:"layout" json:"layout"`
	GPGKey string `yaml:"gpg_key,omitempty" json:"gpg_key,omitempty"` // armored keyring that uploaded packages must be signed with
}

// Package carries per-package overrides.
type Package struct {
	Archs  []string           `yaml:"archs,omitempty" json:"archs,omitempty"`
	Legacy []LegacyDescriptor `yaml:"legacy,omitempty" json:"legacy,omitempty"`
}

// LegacyDescriptor declares a historical package whose runtime files are
// shipped along with the current build.
type LegacyDescriptor struct {
	ABI     string `yaml:"abi" json:"abi"`
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Mask    string `yaml:"mask,omitempty" json:"mask,omitempty"`
	Arch    string `yaml:"arch,omitempty" json:"arch,omitempty"` // extract only this arch instead of all package archs
}

// LegacyConfig selects where legacy packages are taken from.
type LegacyConfig struct {
	Repository  string `yaml:"repository,omitempty" json:"repository,omitempty"`
	DefaultMask string `yaml:"default_mask,omitempty" json:"default_mask,omitempty"`
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	top := "rpmbuild"
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		top = filepath.Join(home, "rpmbuild")
	}
	return &Config{
		TopDir:   top,
		Archs:    []string{"x86_64"},
		RPMBuild: "rpmbuild",
		Legacy: LegacyConfig{
			DefaultMask: DefaultLegacyMask,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration at configPath on top of the defaults. An empty
// path means no file: the defaults are returned after normalization.
func Load(configPath string) (*Config, error) {
	log := logger.Logger()

	cfg := DefaultConfig()
	if configPath != "" {
		if err := cfg.mergeFile(configPath); err != nil {
			log.Errorf("Failed to load config %s: %v", configPath, err)
			return nil, err
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// mergeFile validates a YAML file against the schema and decodes it over cfg.
// Keys absent from the file keep their current values.
func (cfg *Config) mergeFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yml" && ext != ".yaml" {
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := validate.ValidateConfigYAML(data); err != nil {
		return fmt.Errorf("schema validation of %s failed: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing YAML config %s: %w", path, err)
	}
	return nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// Normalize fills directories derived from top_dir and makes every path absolute.
func (cfg *Config) Normalize() error {
	var err error
	if cfg.TopDir, err = expandPath(cfg.TopDir); err != nil {
		return err
	}

	derived := []struct {
		field *string
		sub   string
	}{
		{&cfg.RPMDir, "RPMS"},
		{&cfg.SRPMDir, "SRPMS"},
		{&cfg.SourceDir, "SOURCES"},
		{&cfg.ZipDir, "zip"},
		{&cfg.LogDir, "logs"},
	}
	for _, d := range derived {
		if *d.field == "" {
			*d.field = filepath.Join(cfg.TopDir, d.sub)
			continue
		}
		if *d.field, err = expandPath(*d.field); err != nil {
			return err
		}
	}

	if len(cfg.SpecDirs) == 0 {
		cfg.SpecDirs = []string{filepath.Join(cfg.TopDir, "SPECS")}
	}
	for i, d := range cfg.SpecDirs {
		if cfg.SpecDirs[i], err = expandPath(d); err != nil {
			return err
		}
	}

	for i := range cfg.Repositories {
		if cfg.Repositories[i].Base, err = expandPath(cfg.Repositories[i].Base); err != nil {
			return err
		}
		if key := cfg.Repositories[i].GPGKey; key != "" {
			if cfg.Repositories[i].GPGKey, err = expandPath(key); err != nil {
				return err
			}
		}
	}

	if cfg.Legacy.DefaultMask == "" {
		cfg.Legacy.DefaultMask = DefaultLegacyMask
	}
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	return nil
}

// Validate checks the configuration for consistency.
// Note: This should NOT set defaults - that's done in DefaultConfig() and Normalize()
func (cfg *Config) Validate() error {
	if cfg.TopDir == "" {
		return errors.New("top_dir cannot be empty")
	}
	if cfg.RPMBuild == "" {
		return errors.New("rpmbuild cannot be empty")
	}
	if len(cfg.Archs) == 0 {
		return errors.New("archs cannot be empty")
	}
	if dup := firstDuplicate(cfg.Archs); dup != "" {
		return fmt.Errorf("archs lists %q twice", dup)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, cfg.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			cfg.Logging.Level, strings.Join(validLevels, ", "))
	}

	for name, l := range cfg.Layouts {
		if l.SRPM == "" || l.RPM == "" || l.Zip == "" {
			return fmt.Errorf("layout %q must define srpm, rpm and zip", name)
		}
	}

	seen := make(map[string]bool, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		if r.ID == "" {
			return errors.New("repository id cannot be empty")
		}
		if seen[r.ID] {
			return fmt.Errorf("repository %q is defined twice", r.ID)
		}
		seen[r.ID] = true
		if r.Base == "" {
			return fmt.Errorf("repository %q has no base directory", r.ID)
		}
		if _, ok := cfg.Layouts[r.Layout]; !ok {
			return fmt.Errorf("repository %q refers to unknown layout %q", r.ID, r.Layout)
		}
	}

	hasLegacy := false
	for name, p := range cfg.Packages {
		if dup := firstDuplicate(p.Archs); dup != "" {
			return fmt.Errorf("package %q lists arch %q twice", name, dup)
		}
		for i, d := range p.Legacy {
			if d.ABI == "" || d.Name == "" || d.Version == "" {
				return fmt.Errorf("package %q: legacy entry %d needs abi, name and version", name, i+1)
			}
			hasLegacy = true
		}
	}
	if hasLegacy {
		if cfg.Legacy.Repository == "" {
			return errors.New("legacy.repository must be set when packages declare legacy runtime")
		}
		if !seen[cfg.Legacy.Repository] {
			return fmt.Errorf("legacy.repository refers to unknown repository %q", cfg.Legacy.Repository)
		}
	}
	return nil
}

func firstDuplicate(items []string) string {
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it] {
			return it
		}
		seen[it] = true
	}
	return ""
}

// PackageArchs returns the target architectures of a package, base last.
func (cfg *Config) PackageArchs(name string) []string {
	if p, ok := cfg.Packages[name]; ok && len(p.Archs) > 0 {
		return append([]string(nil), p.Archs...)
	}
	return append([]string(nil), cfg.Archs...)
}

// BaseArch returns the architecture used for test builds and the combined archive.
func (cfg *Config) BaseArch(name string) string {
	archs := cfg.PackageArchs(name)
	return archs[len(archs)-1]
}

// LegacyDescriptors returns the legacy runtime a package declares, if any.
func (cfg *Config) LegacyDescriptors(name string) []LegacyDescriptor {
	return cfg.Packages[name].Legacy
}

// Env renders the extra builder environment as sorted KEY=VALUE pairs.
func (cfg *Config) Env() []string {
	keys := make([]string, 0, len(cfg.Environment))
	for k := range cfg.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+cfg.Environment[k])
	}
	return env
}

// RepositoryIDs lists the configured repositories in configuration order.
func (cfg *Config) RepositoryIDs() []string {
	ids := make([]string, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		ids = append(ids, r.ID)
	}
	return ids
}

// BuildLogDir holds the logs and manifests of the pending build of a package.
func (cfg *Config) BuildLogDir(name string) string {
	return filepath.Join(cfg.LogDir, "build", name)
}

// ArchiveLogDir holds versioned manifests and logs of uploaded builds.
func (cfg *Config) ArchiveLogDir(name string) string {
	return filepath.Join(cfg.LogDir, "archive", name)
}

// TestLogDir holds the logs of test builds.
func (cfg *Config) TestLogDir(name string) string {
	return filepath.Join(cfg.LogDir, "test", name)
}

// PackageSourceDir is passed to the builder as %_sourcedir.
func (cfg *Config) PackageSourceDir(name string) string {
	return filepath.Join(cfg.SourceDir, name)
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"rpmbuild-bot.yml",   // Primary config location (current directory)
		".rpmbuild-bot.yml",  // Hidden file in current directory
		"rpmbuild-bot.yaml",  // Alternative extension
		".rpmbuild-bot.yaml", // Hidden file alternative
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".rpmbuild-bot", "config.yml"),
			filepath.Join(homeDir, ".rpmbuild-bot", "config.yaml"),
			filepath.Join(homeDir, ".config", "rpmbuild-bot", "config.yml"),
			filepath.Join(homeDir, ".config", "rpmbuild-bot", "config.yaml"),
		)
	}

	// System-wide config paths
	paths = append(paths,
		"/etc/rpmbuild-bot/config.yml",
		"/etc/rpmbuild-bot/config.yaml",
	)

	return paths
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
