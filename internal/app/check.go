package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var (
	checkFix bool

	errInconsistent = errors.New("catalog is inconsistent")

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Check the catalog's internal consistency",
		Long: `Check that every reference in the catalog resolves: interned values,
multi-value maps, path parts, dependencies and metadata. Each problem is
logged. With --fix, unreferenced rows and dangling references are removed;
manifest rows themselves are never changed.`,
		Example: `  pkgcatalog check
  pkgcatalog check --fix`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
)

func init() {
	checkCmd.Flags().BoolVar(&checkFix, "fix", false, "remove unreferenced rows")
}

func runCheck(cmd *cobra.Command, args []string) error {
	d := catalog.Read
	if checkFix {
		d = catalog.ReadWrite
	}
	c, err := openCatalog(d)
	if err != nil {
		return err
	}
	defer c.Close()

	consistent, err := c.CheckConsistency(checkFix)
	if err != nil {
		return fmt.Errorf("failed to check catalog: %w", err)
	}

	fixed := false
	if !consistent && checkFix {
		if fixed, err = c.CheckConsistency(false); err != nil {
			return fmt.Errorf("failed to re-check catalog: %w", err)
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderCheckResult(consistent, fixed))
	if !consistent && !fixed {
		return errInconsistent
	}
	return nil
}
