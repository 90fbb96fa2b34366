package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var (
	changesSince int64

	changesCmd = &cobra.Command{
		Use:   "changes",
		Short: "List packages changed since a point in time",
		Long: `List the packages whose update tracking entries are newer than --since
(Unix milliseconds). Defaults to the time the last export covered, so the
list shows what the next incremental export will write. Needs a schema 2.0
catalog.`,
		Args: cobra.NoArgs,
		RunE: runChanges,
	}
)

func init() {
	changesCmd.Flags().Int64Var(&changesSince, "since", -1, "Unix milliseconds (default: last export)")
}

func runChanges(cmd *cobra.Command, args []string) error {
	c, err := openCatalog(catalog.Read)
	if err != nil {
		return err
	}
	defer c.Close()

	since := changesSince
	if since < 0 {
		since = 0
		if base := c.Property(catalog.PackageUpdateTrackingBaseTime); base != "" {
			if _, err := fmt.Sscan(base, &since); err != nil {
				return fmt.Errorf("invalid tracking base time %q: %w", base, err)
			}
		}
	}

	changes, err := c.PackagesChangedSince(since)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), output.RenderChangeTable(changes))
	return nil
}
