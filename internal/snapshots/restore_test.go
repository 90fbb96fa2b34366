package snapshots

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

func TestDocumentPath_Missing(t *testing.T) {
	c := newTestCatalog(t, catalog.LatestVersion)
	m := New(c, t.TempDir())
	if _, err := m.DocumentPath("Contoso.App"); !errors.Is(err, catalogerr.ErrNotFound) {
		t.Errorf("DocumentPath() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentPath_RejectsEscapingIDs(t *testing.T) {
	c := newTestCatalog(t, catalog.LatestVersion)
	m := New(c, t.TempDir())
	for _, id := range []string{"..", ".", ""} {
		if _, err := m.DocumentPath(id); !errors.Is(err, catalogerr.ErrInvalidArgument) {
			t.Errorf("DocumentPath(%q) error = %v, want ErrInvalidArgument", id, err)
		}
	}
}

func TestPackageDir_EncodesUnsafeCharacters(t *testing.T) {
	out := t.TempDir()
	tests := []struct {
		id   string
		want string
	}{
		{"Contoso.App", "Contoso.App"},
		{"Microsoft.VCRedist:x64", "Microsoft.VCRedist%3Ax64"},
		{"a/b", "a%2Fb"},
		{`a\b`, "a%5Cb"},
		{"100%", "100%25"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			dir, err := packageDir(out, tt.id)
			if err != nil {
				t.Fatalf("packageDir(%q) failed: %v", tt.id, err)
			}
			if want := filepath.Join(out, PackagesDir, tt.want); dir != want {
				t.Errorf("packageDir(%q) = %s, want %s", tt.id, dir, want)
			}
		})
	}
}

func TestPrepareForPackaging_IDWithColon(t *testing.T) {
	c := newTestCatalog(t, catalog.SchemaVersion{Major: 1, Minor: 7})
	id := "Microsoft.VCRedist:x64"
	if _, err := c.AddManifest(testManifest(id, "14.0"), "manifests/vcredist.yaml"); err != nil {
		t.Fatalf("AddManifest() failed: %v", err)
	}

	m := New(c, t.TempDir())
	if _, err := m.PrepareForPackaging(); err != nil {
		t.Fatalf("PrepareForPackaging() failed: %v", err)
	}
	doc, err := m.LoadPackage(id)
	if err != nil {
		t.Fatalf("LoadPackage(%q) failed: %v", id, err)
	}
	if len(doc.Versions) != 1 || doc.Versions[0].Version != "14.0" {
		t.Errorf("LoadPackage(%q) = %+v, want version 14.0", id, doc.Versions)
	}

	ids, err := m.ListPackaged()
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Errorf("ListPackaged() = %v, %v; want [%s]", ids, err, id)
	}

	// A second full run must not treat the encoded directory as stale.
	result, err := m.PrepareForPackaging()
	if err != nil || len(result.Removed) != 0 {
		t.Errorf("second PrepareForPackaging() = %+v, %v; want nothing removed", result, err)
	}
}

func TestReadVersionData_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versionData.yml.lzma")
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVersionData(path); err == nil {
		t.Errorf("ReadVersionData() of a corrupt file succeeded")
	}
}

func TestListPackaged_Empty(t *testing.T) {
	c := newTestCatalog(t, catalog.LatestVersion)
	ids, err := New(c, filepath.Join(t.TempDir(), "missing")).ListPackaged()
	if err != nil || len(ids) != 0 {
		t.Errorf("ListPackaged() = %v, %v; want nothing", ids, err)
	}
}
