package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/config"
)

var (
	dbPath    string
	configDir string
	verbose   bool

	cfg    = config.Default()
	logger = newLogger(false)

	// RootCmd is the root command for pkgcatalog
	RootCmd = &cobra.Command{
		Use:   "pkgcatalog",
		Short: "Build, search and package a versioned catalog of package manifests",
		Long: `pkgcatalog maintains a SQLite catalog of package manifests.

The catalog stores every indexed manifest under a versioned schema, keeps
search, dependency and installed-version data consistent on each change,
and exports per-package version data for distribution.

Quick Start:
  1. pkgcatalog create --schema latest
  2. pkgcatalog index ./manifests
  3. pkgcatalog search editor
  4. pkgcatalog export --output ./staging

Configuration is read from $XDG_CONFIG_HOME/pkgcatalog/config.toml; flags
override it.`,
		Example: `  # Create a catalog at a specific schema version
  pkgcatalog create --db index.db --schema 1.7

  # Follow a manifest tree and keep the catalog in step
  pkgcatalog watch ./manifests

  # Mirror installed Homebrew packages into a separate catalog
  pkgcatalog sync-installed`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "catalog path (default: ~/.pkgcatalog/index.db)")
	RootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default: $XDG_CONFIG_HOME/pkgcatalog)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(createCmd, infoCmd, migrateCmd)
	RootCmd.AddCommand(addCmd, updateCmd, upsertCmd, removeCmd, indexCmd)
	RootCmd.AddCommand(searchCmd, versionsCmd, depsCmd, changesCmd)
	RootCmd.AddCommand(exportCmd, checkCmd, syncInstalledCmd, watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// setup loads the config file and builds the logger before any subcommand.
func setup(cmd *cobra.Command, args []string) error {
	logger = newLogger(verbose)

	dir := configDir
	if dir == "" {
		var err error
		if dir, err = config.Dir(); err != nil {
			return fmt.Errorf("failed to locate config directory: %w", err)
		}
	}
	loaded, err := config.Load(dir)
	if err != nil {
		return err
	}
	cfg = loaded
	logger.Debug("loaded config", "dir", dir)
	return nil
}

func newLogger(verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}

// getDBPath returns the catalog path: the --db flag, then the config file,
// then ~/.pkgcatalog/index.db.
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if cfg.Database != "" {
		return cfg.Database, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "index.db"), nil
}

// dataDir returns ~/.pkgcatalog, creating it if needed.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	dir := filepath.Join(home, ".pkgcatalog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pkgcatalog directory: %w", err)
	}
	return dir, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}
