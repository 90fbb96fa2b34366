package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/brew"
	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
	"github.com/blackwell-systems/pkgcatalog/internal/scanner"
)

var (
	installedDBPath string
	syncQuiet       bool

	// installedSource is replaced in tests.
	installedSource func() scanner.Source = func() scanner.Source { return brew.NewSource() }

	syncInstalledCmd = &cobra.Command{
		Use:   "sync-installed",
		Short: "Mirror installed Homebrew packages into a catalog",
		Long: `Record every installed Homebrew formula and cask in a separate catalog of
installed applications, with their commands, dependencies and install
metadata. Packages that are no longer installed are removed. The catalog
is created on first use.`,
		Example: `  pkgcatalog sync-installed
  pkgcatalog sync-installed --installed-db ~/installed.db`,
		Args: cobra.NoArgs,
		RunE: runSyncInstalled,
	}
)

func init() {
	syncInstalledCmd.Flags().StringVar(&installedDBPath, "installed-db", "", "installed catalog path (default: ~/.pkgcatalog/installed.db)")
	syncInstalledCmd.Flags().BoolVar(&syncQuiet, "quiet", false, "suppress progress output")
}

func getInstalledDBPath() (string, error) {
	if installedDBPath != "" {
		return installedDBPath, nil
	}
	if cfg.InstalledDatabase != "" {
		return cfg.InstalledDatabase, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "installed.db"), nil
}

// openOrCreate opens the catalog at path, creating it at the configured
// schema if it does not exist yet.
func openOrCreate(path string) (*catalog.Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		v, err := schemaVersion("")
		if err != nil {
			return nil, err
		}
		logger.Info("creating installed catalog", "path", path, "schema", v)
		return catalog.CreateNew(path, v, catalog.WithLogger(logger))
	}
	return openCatalogAt(path, catalog.ReadWrite)
}

func runSyncInstalled(cmd *cobra.Command, args []string) error {
	path, err := getInstalledDBPath()
	if err != nil {
		return err
	}
	c, err := openOrCreate(path)
	if err != nil {
		return fmt.Errorf("failed to open installed catalog: %w", err)
	}
	defer c.Close()

	var spinner *output.Spinner
	if !syncQuiet {
		spinner = output.NewSpinner("Syncing installed packages")
		spinner.SetWriter(cmd.ErrOrStderr())
		spinner.Start()
	}

	result, err := scanner.New(c, installedSource()).Sync()
	if spinner != nil {
		spinner.Stop("")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Synced %s: %d added, %d updated, %d unchanged, %d removed\n",
		path, result.Added, result.Updated, result.Unchanged, result.Removed)
	return nil
}
