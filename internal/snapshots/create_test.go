package snapshots

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
	"github.com/blackwell-systems/pkgcatalog/internal/versiondata"
)

func newTestCatalog(t *testing.T, v catalog.SchemaVersion, opts ...catalog.Option) *catalog.Catalog {
	t.Helper()
	c, err := catalog.CreateNew(catalog.InMemory, v, opts...)
	if err != nil {
		t.Fatalf("CreateNew() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testManifest(id, ver string, arp ...string) *manifest.Manifest {
	m := &manifest.Manifest{
		ID:                  id,
		Version:             ver,
		DefaultLocalization: manifest.Localization{PackageName: id},
		StreamHash:          []byte{0x01, 0x02, byte(len(ver))},
	}
	var entries []manifest.AppsAndFeaturesEntry
	for _, v := range arp {
		entries = append(entries, manifest.AppsAndFeaturesEntry{DisplayVersion: v})
	}
	if len(entries) > 0 {
		m.Installers = []manifest.Installer{{AppsAndFeaturesEntries: entries}}
	}
	return m
}

func add(t *testing.T, c *catalog.Catalog, m *manifest.Manifest) {
	t.Helper()
	path := strings.Join([]string{"manifests", m.ID, m.Version, m.ID + ".yaml"}, "/")
	if _, err := c.AddManifest(m, path); err != nil {
		t.Fatalf("AddManifest(%s %s) failed: %v", m.ID, m.Version, err)
	}
}

func TestPrepareForPackaging_WritesEveryVersion(t *testing.T) {
	c := newTestCatalog(t, catalog.SchemaVersion{Major: 1, Minor: 7})
	add(t, c, testManifest("Contoso.App", "1.9", "1.9"))
	add(t, c, testManifest("Contoso.App", "1.10", "1.10.0", "1.10.2"))
	add(t, c, testManifest("Fabrikam.Tool", "3.0"))

	out := t.TempDir()
	result, err := New(c, out).PrepareForPackaging()
	if err != nil {
		t.Fatalf("PrepareForPackaging() failed: %v", err)
	}
	if result.Incremental {
		t.Errorf("PrepareForPackaging() on 1.7 reported an incremental run")
	}
	if len(result.Written) != 2 {
		t.Fatalf("Written = %v, want 2 packages", result.Written)
	}

	path := result.Written["Contoso.App"]
	rel, _ := filepath.Rel(out, path)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 || parts[0] != PackagesDir || parts[1] != "Contoso.App" || len(parts[2]) != 8 || parts[3] != versiondata.FileName {
		t.Errorf("document path = %s, want packages/Contoso.App/<8 hex>/%s", rel, versiondata.FileName)
	}

	doc, err := ReadVersionData(path)
	if err != nil {
		t.Fatalf("ReadVersionData() failed: %v", err)
	}
	want := &versiondata.Document{
		SchemaVersion: versiondata.FormatVersion,
		Versions: []versiondata.Version{
			{Version: "1.10", RelativePath: "manifests/Contoso.App/1.10/Contoso.App.yaml", SHA256Hash: "010204", ArpMinVersion: "1.10.0", ArpMaxVersion: "1.10.2"},
			{Version: "1.9", RelativePath: "manifests/Contoso.App/1.9/Contoso.App.yaml", SHA256Hash: "010203", ArpMinVersion: "1.9", ArpMaxVersion: "1.9"},
		},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("version data mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareForPackaging_Deterministic(t *testing.T) {
	c := newTestCatalog(t, catalog.SchemaVersion{Major: 1, Minor: 5})
	add(t, c, testManifest("Contoso.App", "1.0", "1.0"))
	add(t, c, testManifest("Contoso.App", "2.0"))

	first, err := New(c, t.TempDir()).PrepareForPackaging()
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(c, t.TempDir()).PrepareForPackaging()
	if err != nil {
		t.Fatal(err)
	}

	a, _ := os.ReadFile(first.Written["Contoso.App"])
	b, _ := os.ReadFile(second.Written["Contoso.App"])
	if len(a) == 0 || !bytes.Equal(a, b) {
		t.Errorf("two runs over the same catalog produced different documents")
	}
	if filepath.Base(filepath.Dir(first.Written["Contoso.App"])) != filepath.Base(filepath.Dir(second.Written["Contoso.App"])) {
		t.Errorf("content hash directories differ")
	}
}

func TestPrepareForPackaging_ReplacesStaleDocuments(t *testing.T) {
	c := newTestCatalog(t, catalog.SchemaVersion{Major: 1, Minor: 4})
	add(t, c, testManifest("Contoso.App", "1.0"))
	add(t, c, testManifest("Gone.Soon", "1.0"))

	m := New(c, t.TempDir())
	first, err := m.PrepareForPackaging()
	if err != nil {
		t.Fatal(err)
	}

	add(t, c, testManifest("Contoso.App", "2.0"))
	if err := c.RemoveManifest(testManifest("Gone.Soon", "1.0"), ""); err != nil {
		t.Fatal(err)
	}
	second, err := m.PrepareForPackaging()
	if err != nil {
		t.Fatal(err)
	}

	if first.Written["Contoso.App"] == second.Written["Contoso.App"] {
		t.Errorf("changed package kept the same document path")
	}
	if _, err := os.Stat(first.Written["Contoso.App"]); !os.IsNotExist(err) {
		t.Errorf("stale document still present: %v", err)
	}
	if diff := cmp.Diff([]string{"Gone.Soon"}, second.Removed); diff != "" {
		t.Errorf("Removed mismatch (-want +got):\n%s", diff)
	}
	ids, _ := m.ListPackaged()
	if diff := cmp.Diff([]string{"Contoso.App"}, ids); diff != "" {
		t.Errorf("ListPackaged() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareForPackaging_IncrementalOnTrackedCatalog(t *testing.T) {
	now := time.UnixMilli(1_000)
	c := newTestCatalog(t, catalog.LatestVersion, catalog.WithClock(func() time.Time { return now }))
	add(t, c, testManifest("Contoso.App", "1.0"))
	add(t, c, testManifest("Fabrikam.Tool", "1.0"))

	m := New(c, t.TempDir())
	first, err := m.PrepareForPackaging()
	if err != nil {
		t.Fatalf("first PrepareForPackaging() failed: %v", err)
	}
	if !first.Incremental || len(first.Written) != 2 {
		t.Fatalf("first run = %+v, want both packages written incrementally", first)
	}
	if got := c.Property(catalog.PackageUpdateTrackingBaseTime); got != "1001" {
		t.Errorf("base time after first run = %q, want 1001", got)
	}

	now = time.UnixMilli(2_000)
	if _, err := c.AddOrUpdateManifest(testManifest("Contoso.App", "2.0"), ""); err != nil {
		t.Fatal(err)
	}
	second, err := m.PrepareForPackaging()
	if err != nil {
		t.Fatalf("second PrepareForPackaging() failed: %v", err)
	}
	if len(second.Written) != 1 || second.Written["Contoso.App"] == "" {
		t.Errorf("second run wrote %v, want only Contoso.App", second.Written)
	}
	if second.BaseTime != 2_000 {
		t.Errorf("BaseTime = %d, want 2000", second.BaseTime)
	}

	doc, err := m.LoadPackage("Contoso.App")
	if err != nil {
		t.Fatalf("LoadPackage() failed: %v", err)
	}
	if len(doc.Versions) != 1 || doc.Versions[0].Version != "2.0" || doc.Versions[0].ArpMinVersion != "" {
		t.Errorf("LoadPackage() = %+v, want a single 2.0 entry without ARP range", doc.Versions)
	}

	third, err := m.PrepareForPackaging()
	if err != nil {
		t.Fatal(err)
	}
	if len(third.Written) != 0 {
		t.Errorf("unchanged catalog rewrote %v", third.Written)
	}
}

func TestPrepareForPackaging_RequiresOutputDir(t *testing.T) {
	c := newTestCatalog(t, catalog.LatestVersion)
	if _, err := New(c, "").PrepareForPackaging(); err == nil {
		t.Errorf("PrepareForPackaging() without an output directory succeeded")
	}

	out := t.TempDir()
	if err := c.SetProperty(catalog.IntermediateFileOutputPath, out); err != nil {
		t.Fatal(err)
	}
	if got := New(c, "").OutputDir(); got != out {
		t.Errorf("OutputDir() = %q, want %q", got, out)
	}
}
