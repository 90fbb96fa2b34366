package catalog

import (
	"database/sql"
	"fmt"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

// Metadata keys written for locally installed packages.
const (
	MetadataInstalledType          = "InstalledType"
	MetadataInstalledLocation      = "InstalledLocation"
	MetadataStandardUninstall      = "StandardUninstallCommand"
	MetadataSilentUninstall        = "SilentUninstallCommand"
	MetadataPublisher              = "Publisher"
	MetadataInstalledArchitecture  = "InstalledArchitecture"
	MetadataUserIntentArchitecture = "UserIntentArchitecture"
)

// SetMetadataByManifestID replaces the metadata of a manifest. Empty values
// are dropped.
func (c *Catalog) SetMetadataByManifestID(id ManifestID, metadata map[string]string) error {
	if err := c.writable(); err != nil {
		return err
	}
	if !c.schema.metadata {
		return fmt.Errorf("%w: schema %s has no manifest metadata", catalogerr.ErrInvalidState, c.schema.version)
	}

	return c.store.WithTx(func(tx *sql.Tx) error {
		if _, err := c.schema.readRow(tx, int64(id)); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM manifest_metadata WHERE manifest = ?", int64(id)); err != nil {
			return fmt.Errorf("failed to clear metadata of manifest %d: %w", id, err)
		}
		for name, value := range metadata {
			if value == "" {
				continue
			}
			if _, err := tx.Exec("INSERT INTO manifest_metadata (manifest, metadata, value) VALUES (?, ?, ?)",
				int64(id), name, value); err != nil {
				return fmt.Errorf("failed to write metadata %s of manifest %d: %w", name, id, err)
			}
		}
		return nil
	})
}

// GetMetadataByManifestID returns the metadata of a manifest. Layouts
// without metadata return an empty map.
func (c *Catalog) GetMetadataByManifestID(id ManifestID) (map[string]string, error) {
	out := make(map[string]string)
	if !c.schema.metadata {
		return out, nil
	}
	rows, err := c.db().Query("SELECT metadata, value FROM manifest_metadata WHERE manifest = ?", int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of manifest %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}
