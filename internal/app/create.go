package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/output"
)

var (
	createSchema string
	migrateTo    string

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create an empty catalog",
		Long: `Create a new, empty catalog at the path given by --db.

The schema version decides the catalog's layout and capabilities: 1.x
catalogs hold every version of a package, 2.0 holds one version per package
and records update tracking for incremental packaging. The file must not
already exist.`,
		Example: `  # Create a catalog at the newest schema
  pkgcatalog create --db index.db

  # Create a multi-version catalog
  pkgcatalog create --db index.db --schema 1.7`,
		Args: cobra.NoArgs,
		RunE: runCreate,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show catalog schema, size and properties",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Migrate a catalog to another schema version",
		Long: `Migrate the catalog forward to the target schema version.

Each step between adjacent versions runs in one transaction. Moving to 2.0
keeps only the newest stable version of every package.`,
		Example: `  pkgcatalog migrate --to latest
  pkgcatalog migrate --to 1.7`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
)

func init() {
	createCmd.Flags().StringVar(&createSchema, "schema", "", "schema version, \"major.minor\" or \"latest\" (default from config)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "latest", "target schema version")
}

func runCreate(cmd *cobra.Command, args []string) error {
	v, err := schemaVersion(createSchema)
	if err != nil {
		return err
	}
	path, err := getDBPath()
	if err != nil {
		return err
	}

	c, err := catalog.CreateNew(path, v, catalog.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	defer c.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created catalog %s (schema %s)\n", path, c.Version())
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	c, err := openCatalog(catalog.Read)
	if err != nil {
		return err
	}
	defer c.Close()

	pkgs, err := c.ListPackages()
	if err != nil {
		return err
	}
	manifests, err := c.ManifestCount()
	if err != nil {
		return err
	}

	fields := []output.Field{
		{Label: "Catalog", Value: c.Property(catalog.DatabaseFilePath)},
		{Label: "Schema", Value: c.Version().String()},
		{Label: "Packages", Value: strconv.Itoa(len(pkgs))},
		{Label: "Manifests", Value: strconv.Itoa(manifests)},
		{Label: "Output path", Value: cfg.Output},
	}

	if c.Version() == catalog.LatestVersion {
		latest, err := c.LatestTrackingTime()
		if err != nil {
			return err
		}
		fields = append(fields,
			output.Field{Label: "Packaged through", Value: formatMillis(c.Property(catalog.PackageUpdateTrackingBaseTime))},
			output.Field{Label: "Latest change", Value: formatMillis(strconv.FormatInt(latest, 10))})
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderFields(fields))
	return nil
}

// formatMillis renders a Unix millisecond string as a timestamp; "" and "0"
// render as empty.
func formatMillis(s string) string {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	target, err := catalog.ParseSchemaVersion(migrateTo)
	if err != nil {
		return err
	}

	c, err := openCatalog(catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer c.Close()

	from := c.Version()
	ok, err := c.MigrateTo(target)
	if err != nil {
		return fmt.Errorf("failed to migrate catalog: %w", err)
	}
	if !ok {
		return fmt.Errorf("no migration path from schema %s to %s", from, target)
	}

	if from == target {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Catalog already at schema %s\n", target)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Migrated catalog from schema %s to %s\n", from, target)
	}
	return nil
}
