package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var (
	depsVersion    string
	depsChannel    string
	depsDependents bool
	depsOrder      bool

	depsCmd = &cobra.Command{
		Use:   "deps <package-id>",
		Short: "Show package dependencies",
		Long: `Show the package dependencies of one version (the newest by default),
the manifests that depend on a package (--dependents), or the order to
install a package and everything it needs (--order).`,
		Example: `  pkgcatalog deps Contoso.App
  pkgcatalog deps Contoso.Runtime --dependents
  pkgcatalog deps Contoso.App --order`,
		Args: cobra.ExactArgs(1),
		RunE: runDeps,
	}
)

func init() {
	depsCmd.Flags().StringVar(&depsVersion, "version", "", "package version (default: newest)")
	depsCmd.Flags().StringVar(&depsChannel, "channel", "", "package channel")
	depsCmd.Flags().BoolVar(&depsDependents, "dependents", false, "list manifests that depend on the package")
	depsCmd.Flags().BoolVar(&depsOrder, "order", false, "print the install order")
}

func runDeps(cmd *cobra.Command, args []string) error {
	if depsDependents && depsOrder {
		return fmt.Errorf("--dependents and --order cannot be combined")
	}

	c, err := openCatalog(catalog.Read)
	if err != nil {
		return err
	}
	defer c.Close()

	id := args[0]
	switch {
	case depsDependents:
		dependents, err := c.Dependents(id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderDependentTable(dependents))
	case depsOrder:
		nodes, err := c.InstallOrder(id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderInstallOrder(nodes))
	default:
		mid, err := resolveManifest(c, id, depsVersion, depsChannel)
		if err != nil {
			return err
		}
		edges, err := c.Dependencies(mid)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), output.RenderDependencyTable(edges))
	}
	return nil
}
