package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
)

var (
	manifestRelPath string
	manifestRootDir string

	removeID      string
	removeVersion string
	removeChannel string

	addCmd = &cobra.Command{
		Use:   "add <manifest.yaml>",
		Short: "Add a manifest to the catalog",
		Long: `Add a manifest to the catalog.

The manifest is stored under a relative path: --path if given, else its
location below the manifest root, else its file name. Adding fails if the
package version or the relative path is already present, or if the
manifest's dependencies or installed-version range do not validate.`,
		Example: `  pkgcatalog add manifests/c/Contoso/App/1.0/Contoso.App.yaml --root manifests
  pkgcatalog add app.yaml --path c/Contoso/App/1.0/Contoso.App.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runAdd,
	}

	updateCmd = &cobra.Command{
		Use:   "update <manifest.yaml>",
		Short: "Update a manifest already in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}

	upsertCmd = &cobra.Command{
		Use:   "upsert <manifest.yaml>",
		Short: "Add a manifest, or update it if already present",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpsert,
	}

	removeCmd = &cobra.Command{
		Use:   "remove [manifest.yaml]",
		Short: "Remove a manifest from the catalog",
		Long: `Remove a manifest from the catalog, either named by its file or by
--id and --version. Removal fails while another manifest depends on the
package and no remaining version satisfies it.`,
		Example: `  pkgcatalog remove manifests/c/Contoso/App/1.0/Contoso.App.yaml --root manifests
  pkgcatalog remove --id Contoso.App --version 1.0`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRemove,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{addCmd, updateCmd, upsertCmd, removeCmd} {
		cmd.Flags().StringVar(&manifestRelPath, "path", "", "relative path to store the manifest under")
		cmd.Flags().StringVar(&manifestRootDir, "root", "", "manifest tree the file lives in (default from config)")
	}
	removeCmd.Flags().StringVar(&removeID, "id", "", "package identifier")
	removeCmd.Flags().StringVar(&removeVersion, "version", "", "package version")
	removeCmd.Flags().StringVar(&removeChannel, "channel", "", "package channel")
}

// withManifest opens the catalog for writing and loads the manifest argument.
func withManifest(path string, fn func(c *catalog.Catalog, m *manifest.Manifest, rel string) error) error {
	m, rel, err := loadManifest(path, manifestRelPath, manifestRoot(manifestRootDir))
	if err != nil {
		return err
	}

	c, err := openCatalog(catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c, m, rel)
}

func runAdd(cmd *cobra.Command, args []string) error {
	return withManifest(args[0], func(c *catalog.Catalog, m *manifest.Manifest, rel string) error {
		id, err := c.AddManifest(m, rel)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s %s at %s (manifest %d)\n", m.ID, m.Version, rel, id)
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withManifest(args[0], func(c *catalog.Catalog, m *manifest.Manifest, rel string) error {
		changed, err := c.UpdateManifest(m, rel)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s %s\n", m.ID, m.Version)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s unchanged\n", m.ID, m.Version)
		}
		return nil
	})
}

func runUpsert(cmd *cobra.Command, args []string) error {
	return withManifest(args[0], func(c *catalog.Catalog, m *manifest.Manifest, rel string) error {
		added, err := c.AddOrUpdateManifest(m, rel)
		if err != nil {
			return err
		}
		verb := "Updated"
		if added {
			verb = "Added"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s %s\n", verb, m.ID, m.Version)
		return nil
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	remove := func(c *catalog.Catalog, m *manifest.Manifest, rel string) error {
		if err := c.RemoveManifest(m, rel); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s %s\n", m.ID, m.Version)
		return nil
	}

	switch {
	case len(args) == 1 && removeID == "":
		return withManifest(args[0], remove)
	case len(args) == 0 && removeID != "" && removeVersion != "":
		c, err := openCatalog(catalog.ReadWrite)
		if err != nil {
			return err
		}
		defer c.Close()
		return remove(c, &manifest.Manifest{ID: removeID, Version: removeVersion, Channel: removeChannel}, "")
	default:
		return fmt.Errorf("give either a manifest file or --id and --version")
	}
}
