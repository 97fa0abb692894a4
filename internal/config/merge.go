package config

import (
	"fmt"
	"os"

	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/logger"
)

// Clone returns a deep copy of cfg.
func (cfg *Config) Clone() *Config {
	c := *cfg
	c.SpecDirs = append([]string(nil), cfg.SpecDirs...)
	c.Archs = append([]string(nil), cfg.Archs...)
	c.Repositories = append([]Repository(nil), cfg.Repositories...)

	if cfg.Environment != nil {
		c.Environment = make(map[string]string, len(cfg.Environment))
		for k, v := range cfg.Environment {
			c.Environment[k] = v
		}
	}
	if cfg.Layouts != nil {
		c.Layouts = make(map[string]Layout, len(cfg.Layouts))
		for k, v := range cfg.Layouts {
			c.Layouts[k] = v
		}
	}
	if cfg.Packages != nil {
		c.Packages = make(map[string]Package, len(cfg.Packages))
		for k, v := range cfg.Packages {
			c.Packages[k] = Package{
				Archs:  append([]string(nil), v.Archs...),
				Legacy: append([]LegacyDescriptor(nil), v.Legacy...),
			}
		}
	}
	return &c
}

// WithOverlays returns a copy of cfg with every existing overlay file applied in
// order. Overlays live next to spec files and may adjust package settings or the
// builder environment for the specs they sit with. cfg itself is not modified.
func (cfg *Config) WithOverlays(paths ...string) (*Config, error) {
	log := logger.Logger()

	merged := cfg.Clone()
	applied := 0
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("accessing overlay %s: %w", p, err)
		}
		log.Debugf("Applying config overlay %s", p)
		if err := merged.mergeFile(p); err != nil {
			return nil, err
		}
		applied++
	}
	if applied == 0 {
		return merged, nil
	}

	if err := merged.Normalize(); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("config validation after overlays failed: %w", err)
	}
	return merged, nil
}
