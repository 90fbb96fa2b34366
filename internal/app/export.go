package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/snapshots"
)

var (
	exportOutput string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write per-package version data for distribution",
		Long: `Prepare the catalog for packaging: for every package, write a compressed
version data document listing its versions, manifest paths, hashes and
installed-version ranges to <output>/packages/<id>/<hash>/.

Schema 2.0 catalogs export incrementally: only packages changed since the
last export are written, and the export time is recorded in the catalog.`,
		Example: `  pkgcatalog export --output ./staging`,
		Args:    cobra.NoArgs,
		RunE:    runExport,
	}
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output directory (default from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	out := exportOutput
	if out == "" {
		out = cfg.Output
	}
	if out == "" {
		return fmt.Errorf("no output directory given and none configured")
	}

	c, err := openCatalog(catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := snapshots.New(c, out).PrepareForPackaging()
	if err != nil {
		return fmt.Errorf("failed to export catalog: %w", err)
	}

	mode := "full"
	if result.Incremental {
		mode = "incremental"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported to %s (%s): %d packages written, %d removed\n",
		out, mode, len(result.Written), len(result.Removed))
	return nil
}
