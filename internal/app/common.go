package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// openCatalog opens the catalog named by --db or the config file.
func openCatalog(d catalog.Disposition) (*catalog.Catalog, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog path: %w", err)
	}
	return openCatalogAt(path, d)
}

func openCatalogAt(path string, d catalog.Disposition) (*catalog.Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("catalog %s does not exist (run 'pkgcatalog create' first)", path)
	}
	c, err := catalog.Open(path, d, catalog.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return c, nil
}

// schemaVersion parses s, falling back to the config file's schema.
func schemaVersion(s string) (catalog.SchemaVersion, error) {
	if s == "" {
		s = cfg.Schema
	}
	if s == "" {
		return catalog.LatestVersion, nil
	}
	return catalog.ParseSchemaVersion(s)
}

// manifestRoot returns the manifest tree: the given flag value, then the
// config file.
func manifestRoot(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Manifests
}

// loadManifest reads the manifest file at path and works out the relative
// path it is stored under: rel if given, else its location below root, else
// its base name.
func loadManifest(path, rel, root string) (*manifest.Manifest, string, error) {
	m, err := manifest.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	if rel != "" {
		return m, filepath.ToSlash(rel), nil
	}

	if root != "" {
		absRoot, err1 := filepath.Abs(root)
		absPath, err2 := filepath.Abs(path)
		if err1 == nil && err2 == nil {
			if r, err := filepath.Rel(absRoot, absPath); err == nil && !strings.HasPrefix(r, "..") {
				return m, filepath.ToSlash(r), nil
			}
		}
	}
	return m, filepath.Base(path), nil
}

// resolveManifest finds the manifest row for id. An empty ver selects the
// newest version.
func resolveManifest(c *catalog.Catalog, id, ver, channel string) (catalog.ManifestID, error) {
	if ver != "" {
		mid, ok, err := c.GetManifestIDByKey(id, ver, channel)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%s %s is not in the catalog", id, ver)
		}
		return mid, nil
	}

	ids, err := c.ManifestsByPackage(id)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%s is not in the catalog", id)
	}
	return ids[0], nil
}

// newestVersion returns the highest version among manifests.
func newestVersion(c *catalog.Catalog, manifests []catalog.ManifestID) (catalog.ManifestID, string, error) {
	var best catalog.ManifestID
	var bestVersion string
	for _, mid := range manifests {
		v, _, err := c.GetPropertyByManifestID(mid, catalog.PropertyVersion)
		if err != nil {
			return 0, "", err
		}
		if best == 0 || version.Compare(v, bestVersion) > 0 {
			best, bestVersion = mid, v
		}
	}
	return best, bestVersion, nil
}
