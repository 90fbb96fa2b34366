package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

// setupTestCatalog creates an in-memory catalog for tests and registers
// cleanup with t.Cleanup so callers don't need explicit defer.
func setupTestCatalog(t *testing.T, v catalog.SchemaVersion) *catalog.Catalog {
	t.Helper()
	c, err := catalog.CreateNew(catalog.InMemory, v)
	if err != nil {
		t.Fatalf("setupTestCatalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// writeManifest writes a minimal manifest to root/rel, creating directories.
func writeManifest(t *testing.T, root, rel, id, ver string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := fmt.Sprintf("PackageIdentifier: %s\nPackageVersion: %q\nPackageName: %s App\nPublisher: Contoso Ltd.\n", id, ver, id)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// versionAt returns the version stored at rel, or "" if nothing is.
func versionAt(t *testing.T, c *catalog.Catalog, rel string) string {
	t.Helper()
	id, ok, err := c.FindManifestByPath(rel)
	if err != nil {
		t.Fatalf("FindManifestByPath(%q): %v", rel, err)
	}
	if !ok {
		return ""
	}
	v, _, err := c.GetPropertyByManifestID(id, catalog.PropertyVersion)
	if err != nil {
		t.Fatalf("GetPropertyByManifestID: %v", err)
	}
	return v
}
