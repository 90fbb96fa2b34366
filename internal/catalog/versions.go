package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// VersionKey addresses one version of a package.
type VersionKey struct {
	Version  string
	Channel  string
	Manifest ManifestID
}

// GetVersionKeysByID lists every version of pkgID. Stable ("" channel)
// versions come first, newest first; named channels follow, grouped by
// channel name and each sorted newest first. Single-version layouts fail
// with ErrInvalidState.
func (c *Catalog) GetVersionKeysByID(pkgID string) ([]VersionKey, error) {
	if !c.schema.channels {
		return nil, fmt.Errorf("%w: schema %s keeps one version per package", catalogerr.ErrInvalidState, c.schema.version)
	}

	rows, err := c.db().Query(`SELECT m.rowid, v.version, ch.channel FROM manifest m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		JOIN channels ch ON ch.rowid = m.channel
		WHERE i.id = ?`, pkgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", pkgID, err)
	}
	defer rows.Close()

	var keys []VersionKey
	for rows.Next() {
		var k VersionKey
		if err := rows.Scan(&k.Manifest, &k.Version, &k.Channel); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortVersionKeys(keys)
	return keys, nil
}

func sortVersionKeys(keys []VersionKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if (a.Channel == "") != (b.Channel == "") {
			return a.Channel == ""
		}
		if ca, cb := strings.ToLower(a.Channel), strings.ToLower(b.Channel); ca != cb {
			return ca < cb
		}
		return version.Compare(a.Version, b.Version) > 0
	})
}

// PackageSummary describes one package in the catalog.
type PackageSummary struct {
	ID            string
	LatestVersion string
	Versions      int
}

// ListPackages returns every package, ordered by id.
func (c *Catalog) ListPackages() ([]PackageSummary, error) {
	rows, err := c.db().Query(fmt.Sprintf(`SELECT i.id, v.version FROM %s m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		ORDER BY i.id COLLATE NOCASE`, c.schema.primary))
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var out []PackageSummary
	for rows.Next() {
		var id, ver string
		if err := rows.Scan(&id, &ver); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && strings.EqualFold(out[n-1].ID, id) {
			out[n-1].Versions++
			if version.Compare(ver, out[n-1].LatestVersion) > 0 {
				out[n-1].LatestVersion = ver
			}
			continue
		}
		out = append(out, PackageSummary{ID: id, LatestVersion: ver, Versions: 1})
	}
	return out, rows.Err()
}

// ManifestsByPackage returns every manifest row of pkgID, newest version
// first. Unlike GetVersionKeysByID it works on every layout.
func (c *Catalog) ManifestsByPackage(pkgID string) ([]ManifestID, error) {
	rows, err := c.db().Query(fmt.Sprintf(`SELECT m.rowid, v.version FROM %s m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		WHERE i.id = ?`, c.schema.primary), pkgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests of %s: %w", pkgID, err)
	}
	defer rows.Close()

	type entry struct {
		id  ManifestID
		ver string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.ver); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := version.Compare(entries[i].ver, entries[j].ver); cmp != 0 {
			return cmp > 0
		}
		return entries[i].id < entries[j].id
	})
	out := make([]ManifestID, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out, nil
}

// GetManifestIDByKey finds the manifest with the given key. Single-version
// layouts match on the id and then require the stored version to match.
func (c *Catalog) GetManifestIDByKey(pkgID, ver, channel string) (ManifestID, bool, error) {
	rowid, ok, err := c.schema.findKey(c.db(), pkgID, ver, channel)
	if err != nil || !ok {
		return 0, false, err
	}
	if !c.schema.channels {
		stored, _, err := c.GetPropertyByManifestID(ManifestID(rowid), PropertyVersion)
		if err != nil {
			return 0, false, err
		}
		if !strings.EqualFold(stored, ver) {
			return 0, false, nil
		}
	}
	return ManifestID(rowid), true, nil
}

// FindManifestByPath finds the manifest stored at path.
func (c *Catalog) FindManifestByPath(path string) (ManifestID, bool, error) {
	rowid, ok, err := c.schema.findPath(c.db(), path)
	return ManifestID(rowid), ok, err
}

// ManifestCount returns the number of indexed manifests.
func (c *Catalog) ManifestCount() (int, error) {
	return store.Count(c.db(), c.schema.primary)
}
