// Package config provides configuration file parsing for pkgcatalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the config file inside Dir.
const FileName = "config.toml"

// Dir returns the pkgcatalog config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/pkgcatalog if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pkgcatalog"), nil
}

// Config holds the defaults the CLI falls back to when a flag is not given.
type Config struct {
	// Database is the catalog file used by most commands.
	Database string `toml:"database"`
	// Output is the directory packaging writes version data to.
	Output string `toml:"output"`
	// Schema is the version new catalogs are created with, "latest" or "major.minor".
	Schema string `toml:"schema"`
	// Manifests is the manifest tree indexed and watched by default.
	Manifests string `toml:"manifests"`
	// InstalledDatabase is the catalog the installed-app mirror writes to.
	InstalledDatabase string `toml:"installed_database"`
	// WatchInterval is how often the watcher applies batched changes.
	WatchInterval Duration `toml:"watch_interval"`
}

// Duration is a time.Duration written as a string such as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		Schema:        "latest",
		WatchInterval: Duration{2 * time.Second},
	}
}

// Load reads {dir}/config.toml over the defaults. If the file does not exist,
// the defaults are returned without an error. Unknown keys are rejected so a
// typo does not silently fall back to a default.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	for _, p := range []*string{&cfg.Database, &cfg.Output, &cfg.Manifests, &cfg.InstalledDatabase} {
		*p = expandHome(*p)
	}
	return cfg, nil
}

// Save writes cfg to {dir}/config.toml, creating dir if needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
