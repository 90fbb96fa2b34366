package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
	"github.com/blackwell-systems/pkgcatalog/internal/watcher"
)

var (
	indexQuiet bool

	indexCmd = &cobra.Command{
		Use:   "index [manifest-root]",
		Short: "Add or update every manifest in a directory tree",
		Long: `Walk a manifest tree and write every YAML manifest into the catalog.

Manifests are stored under their path relative to the tree's root. Files
that fail to parse or validate are reported and skipped; the rest are
still indexed.`,
		Example: `  pkgcatalog index ./manifests
  pkgcatalog index --quiet`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIndex,
	}
)

func init() {
	indexCmd.Flags().BoolVar(&indexQuiet, "quiet", false, "suppress progress output")
}

func runIndex(cmd *cobra.Command, args []string) error {
	var root string
	if len(args) == 1 {
		root = args[0]
	}
	root = manifestRoot(root)
	if root == "" {
		return fmt.Errorf("no manifest root given and none configured")
	}

	c, err := openCatalog(catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer c.Close()

	paths, err := watcher.FindManifests(root)
	if err != nil {
		return err
	}

	var progress *output.ProgressBar
	if !indexQuiet {
		progress = output.NewProgress(len(paths), "manifests indexed")
		progress.SetWriter(cmd.ErrOrStderr())
	}

	stats, err := watcher.Index(c, root, func(path string, err error) {
		if progress != nil {
			progress.Increment(err != nil)
		}
	})
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Indexed %s: %d added, %d updated, %d removed, %d failed\n",
		root, stats.Added, stats.Updated, stats.Removed, stats.Errors)
	if stats.Errors > 0 {
		return fmt.Errorf("%d manifests failed to index", stats.Errors)
	}
	return nil
}
