package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var versionsCmd = &cobra.Command{
	Use:   "versions [package-id]",
	Short: "List packages, or the versions of one package",
	Long: `Without an argument, list every package with its newest version. With a
package id, list that package's versions: stable versions first, newest
first, then each channel.`,
	Example: `  pkgcatalog versions
  pkgcatalog versions Contoso.App`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVersions,
}

func runVersions(cmd *cobra.Command, args []string) error {
	c, err := openCatalog(catalog.Read)
	if err != nil {
		return err
	}
	defer c.Close()

	if len(args) == 0 {
		pkgs, err := c.ListPackages()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderPackageTable(pkgs))
		return nil
	}

	id := args[0]
	keys, err := c.GetVersionKeysByID(id)
	if errors.Is(err, catalogerr.ErrInvalidState) {
		keys, err = singleVersionKeys(c, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderVersionTable(id, keys))
	return nil
}

// singleVersionKeys lists the row of a package in a one-version-per-package
// catalog.
func singleVersionKeys(c *catalog.Catalog, id string) ([]catalog.VersionKey, error) {
	manifests, err := c.ManifestsByPackage(id)
	if err != nil {
		return nil, err
	}
	keys := make([]catalog.VersionKey, 0, len(manifests))
	for _, mid := range manifests {
		v, _, err := c.GetPropertyByManifestID(mid, catalog.PropertyVersion)
		if err != nil {
			return nil, err
		}
		keys = append(keys, catalog.VersionKey{Version: v, Manifest: mid})
	}
	return keys, nil
}
