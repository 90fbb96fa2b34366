package catalog

import (
	"errors"
	"testing"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

func TestAddThenRemove_LeavesNoRows(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		m := newManifest("Contoso.Widget", "1.2.3",
			withMoniker("widget"),
			withTags("tools", "editor"),
			withInstaller(manifest.Installer{
				Commands:          []string{"widget", "wdg"},
				PackageFamilyName: "Contoso.Widget_8wekyb3d8bbwe",
				ProductCode:       "{11111111-2222-3333-4444-555555555555}",
			}),
			withArp("1.2.3"),
		)
		m.StreamHash = []byte{0xde, 0xad, 0xbe, 0xef}

		id := mustAdd(t, c, m, "manifests/c/Contoso/Widget/1.2.3/Contoso.Widget.yaml")
		if c.schema.metadata {
			if err := c.SetMetadataByManifestID(id, map[string]string{MetadataInstalledType: "msi"}); err != nil {
				t.Fatalf("SetMetadataByManifestID() failed: %v", err)
			}
		}
		if err := c.RemoveManifest(m, "manifests/c/Contoso/Widget/1.2.3/Contoso.Widget.yaml"); err != nil {
			t.Fatalf("RemoveManifest() failed: %v", err)
		}

		for table, n := range rowCounts(t, c) {
			if n != 0 {
				t.Errorf("table %s has %d rows after removing the only manifest", table, n)
			}
		}
	})
}

func TestAddManifest_DuplicateKeyIgnoresIDCase(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		mustAdd(t, c, newManifest("Contoso.App", "1.0"), "")

		_, err := c.AddManifest(newManifest("contoso.app", "1.0"), "")
		if !errors.Is(err, catalogerr.ErrAlreadyExists) {
			t.Errorf("AddManifest() with recased id error = %v, want ErrAlreadyExists", err)
		}
	})
}

func TestAddManifest_PathCollision(t *testing.T) {
	c := newTestCatalog(t, SchemaVersion{1, 4})
	mustAdd(t, c, newManifest("Contoso.App", "1.0"), `manifests\c\app.yaml`)

	_, err := c.AddManifest(newManifest("Contoso.Other", "1.0"), "manifests/c/app.yaml")
	if !errors.Is(err, catalogerr.ErrAlreadyExists) {
		t.Errorf("AddManifest() on used path error = %v, want ErrAlreadyExists", err)
	}
}

func TestAddManifest_RequiresIDAndVersion(t *testing.T) {
	c := newTestCatalog(t, LatestVersion)
	for _, m := range []*manifest.Manifest{
		newManifest("", "1.0"),
		newManifest("Contoso.App", "  "),
	} {
		if _, err := c.AddManifest(m, ""); !errors.Is(err, catalogerr.ErrInvalidArgument) {
			t.Errorf("AddManifest(%q, %q) error = %v, want ErrInvalidArgument", m.ID, m.Version, err)
		}
	}
}

func TestMultipleVersions_KeepVerbatimVersionText(t *testing.T) {
	c := newTestCatalog(t, SchemaVersion{1, 7})
	mustAdd(t, c, newManifest("Contoso.App", "1.9"), "")
	id := mustAdd(t, c, newManifest("Contoso.App", "1.10"), "")

	got, ok, err := c.GetPropertyByManifestID(id, PropertyVersion)
	if err != nil || !ok {
		t.Fatalf("GetPropertyByManifestID(Version) = %q, %v, %v", got, ok, err)
	}
	if got != "1.10" {
		t.Errorf("version = %q, want %q", got, "1.10")
	}

	pkgs, err := c.ListPackages()
	if err != nil {
		t.Fatalf("ListPackages() failed: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].LatestVersion != "1.10" || pkgs[0].Versions != 2 {
		t.Errorf("ListPackages() = %+v, want one package at 1.10 with 2 versions", pkgs)
	}
}

func TestUpdateManifest_ChangeDetection(t *testing.T) {
	base := func(opts ...manifestOption) *manifest.Manifest {
		all := append([]manifestOption{withTags("tools"), withDescription("A widget")}, opts...)
		return newManifest("Contoso.Widget", "2.0", all...)
	}
	const path = "manifests/c/widget.yaml"

	tests := []struct {
		name        string
		update      *manifest.Manifest
		path        string
		wantChanged bool
	}{
		{name: "identical", update: base(), path: path, wantChanged: false},
		{name: "description only", update: base(withDescription("A better widget")), path: path, wantChanged: false},
		{name: "new tag", update: base(withTags("editor")), path: path, wantChanged: true},
		{name: "moved", update: base(), path: "manifests/c/widget-2.yaml", wantChanged: true},
		{name: "renamed", update: base(withName("Contoso Widget")), path: path, wantChanged: true},
		{name: "name case only", update: base(withName("contoso.widget app")), path: path, wantChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCatalog(t, SchemaVersion{1, 6})
			id := mustAdd(t, c, base(), path)

			changed, err := c.UpdateManifest(tt.update, tt.path)
			if err != nil {
				t.Fatalf("UpdateManifest() failed: %v", err)
			}
			if changed != tt.wantChanged {
				t.Errorf("UpdateManifest() changed = %v, want %v", changed, tt.wantChanged)
			}

			name, _, err := c.GetPropertyByManifestID(id, PropertyName)
			if err != nil {
				t.Fatalf("GetPropertyByManifestID(Name) failed: %v", err)
			}
			if want := tt.update.DefaultLocalization.PackageName; name != want {
				t.Errorf("name after update = %q, want %q", name, want)
			}
		})
	}
}

func TestUpdateManifest_RecasesID(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		id := mustAdd(t, c, newManifest("contoso.app", "1.0", withName("Contoso App")), "")

		changed, err := c.UpdateManifest(newManifest("Contoso.App", "1.0", withName("Contoso App")), "")
		if err != nil {
			t.Fatalf("UpdateManifest() failed: %v", err)
		}
		if !changed {
			t.Errorf("UpdateManifest() with recased id reported no change")
		}
		got, _, err := c.GetPropertyByManifestID(id, PropertyID)
		if err != nil {
			t.Fatalf("GetPropertyByManifestID(Id) failed: %v", err)
		}
		if got != "Contoso.App" {
			t.Errorf("id = %q, want %q", got, "Contoso.App")
		}
	})
}

func TestUpdateManifest_Missing(t *testing.T) {
	c := newTestCatalog(t, LatestVersion)
	_, err := c.UpdateManifest(newManifest("Contoso.App", "1.0"), "")
	if !errors.Is(err, catalogerr.ErrNotFound) {
		t.Errorf("UpdateManifest() error = %v, want ErrNotFound", err)
	}
}

func TestAddOrUpdateManifest(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		m := newManifest("Contoso.App", "1.0")

		added, err := c.AddOrUpdateManifest(m, "")
		if err != nil || !added {
			t.Fatalf("first AddOrUpdateManifest() = %v, %v; want true, nil", added, err)
		}
		m.DefaultLocalization.Tags = []string{"new"}
		added, err = c.AddOrUpdateManifest(m, "")
		if err != nil || added {
			t.Fatalf("second AddOrUpdateManifest() = %v, %v; want false, nil", added, err)
		}
		if n, _ := c.ManifestCount(); n != 1 {
			t.Errorf("ManifestCount() = %d, want 1", n)
		}
	})
}

func TestRemoveManifest_NotSet(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		mustAdd(t, c, newManifest("Contoso.App", "1.0"), "manifests/app.yaml")

		tests := []struct {
			name string
			m    *manifest.Manifest
			path string
		}{
			{name: "unknown id", m: newManifest("Contoso.Other", "1.0")},
			{name: "unknown version", m: newManifest("Contoso.App", "2.0")},
			{name: "other path", m: newManifest("Contoso.App", "1.0"), path: "manifests/other.yaml"},
		}
		for _, tt := range tests {
			if err := c.RemoveManifest(tt.m, tt.path); !errors.Is(err, catalogerr.ErrNotSet) {
				t.Errorf("%s: RemoveManifest() error = %v, want ErrNotSet", tt.name, err)
			}
		}
		if n, _ := c.ManifestCount(); n != 1 {
			t.Errorf("ManifestCount() after failed removals = %d, want 1", n)
		}
	})
}

func TestSingleVersionLayout_OneRowPerPackage(t *testing.T) {
	c := newTestCatalog(t, LatestVersion)
	mustAdd(t, c, newManifest("Contoso.App", "1.0"), "")

	if _, err := c.AddManifest(newManifest("Contoso.App", "2.0"), ""); !errors.Is(err, catalogerr.ErrAlreadyExists) {
		t.Errorf("AddManifest() of a second version error = %v, want ErrAlreadyExists", err)
	}
	if _, err := c.AddOrUpdateManifest(newManifest("Contoso.App", "2.0"), ""); err != nil {
		t.Fatalf("AddOrUpdateManifest() failed: %v", err)
	}

	id, ok, err := c.GetManifestIDByKey("Contoso.App", "2.0", "")
	if err != nil || !ok {
		t.Fatalf("GetManifestIDByKey(2.0) = %d, %v, %v", id, ok, err)
	}
	if _, ok, _ := c.GetManifestIDByKey("Contoso.App", "1.0", ""); ok {
		t.Errorf("GetManifestIDByKey(1.0) found a replaced version")
	}

	versions, err := store.Strings(c.db(), "SELECT version FROM versions")
	if err != nil {
		t.Fatalf("reading versions failed: %v", err)
	}
	if len(versions) != 1 || versions[0] != "2.0" {
		t.Errorf("versions table = %v, want [2.0]", versions)
	}
}

func TestFolding_SharesScopedValuesAcrossVersions(t *testing.T) {
	inst := manifest.Installer{ProductCode: "{PC}", PackageFamilyName: "Contoso.App_abc"}
	for _, v := range versionsWhere(func(s *schema) bool { return s.channels && s.productCodes }) {
		t.Run(v.String(), func(t *testing.T) {
			c := newTestCatalog(t, v)
			mustAdd(t, c, newManifest("Contoso.App", "1.0", withInstaller(inst)), "")
			mustAdd(t, c, newManifest("Contoso.App", "2.0", withInstaller(inst)), "")

			n, err := store.Count(c.db(), productCodeTable.Name)
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			want := 2
			if c.schema.foldsMultiValueAcrossVersions {
				want = 1
			}
			if n != want {
				t.Errorf("productcodes rows = %d, want %d", n, want)
			}
		})
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	c := newTestCatalog(t, SchemaVersion{1, 1})
	id := mustAdd(t, c, newManifest("Contoso.App", "1.0"), "")

	in := map[string]string{
		MetadataInstalledType: "msi",
		MetadataPublisher:     "Contoso",
	}
	if err := c.SetMetadataByManifestID(id, in); err != nil {
		t.Fatalf("SetMetadataByManifestID() failed: %v", err)
	}
	got, err := c.GetMetadataByManifestID(id)
	if err != nil {
		t.Fatalf("GetMetadataByManifestID() failed: %v", err)
	}
	if len(got) != 2 || got[MetadataInstalledType] != "msi" || got[MetadataPublisher] != "Contoso" {
		t.Errorf("GetMetadataByManifestID() = %v, want %v", got, in)
	}

	if err := c.SetMetadataByManifestID(id, map[string]string{MetadataInstalledType: "exe"}); err != nil {
		t.Fatalf("second SetMetadataByManifestID() failed: %v", err)
	}
	got, _ = c.GetMetadataByManifestID(id)
	if len(got) != 1 {
		t.Errorf("metadata after replace = %v, want a single entry", got)
	}
}

func TestMetadata_UnsupportedLayout(t *testing.T) {
	c := newTestCatalog(t, SchemaVersion{1, 0})
	id := mustAdd(t, c, newManifest("Contoso.App", "1.0"), "")
	if err := c.SetMetadataByManifestID(id, map[string]string{"k": "v"}); err == nil {
		t.Errorf("SetMetadataByManifestID() on 1.0 succeeded, want error")
	}
}

func TestReplaceManifest(t *testing.T) {
	c := newTestCatalog(t, SchemaVersion{1, 7})
	mustAdd(t, c, newManifest("Lib", "1.0"), "lib.yaml")
	mustAdd(t, c, newManifest("App", "1.0", withDeps(dep("Lib", "1.0"))), "app.yaml")

	removed, added, err := c.ReplaceManifest(newManifest("Lib", "1.0"), newManifest("Lib", "2.0"), "lib.yaml")
	if err != nil || !removed || !added {
		t.Fatalf("ReplaceManifest(Lib 1.0 -> 2.0) = %v, %v, %v; want true, true, nil", removed, added, err)
	}

	_, _, err = c.ReplaceManifest(newManifest("Lib", "2.0"), newManifest("Other", "1.0"), "lib.yaml")
	if !errors.Is(err, catalogerr.ErrDependenciesValidationFailed) {
		t.Fatalf("ReplaceManifest() dropping a needed package error = %v, want ErrDependenciesValidationFailed", err)
	}
	_, _, err = c.ReplaceManifest(newManifest("Lib", "2.0"), newManifest("Lib", "3.0", withDeps(dep("Nowhere", ""))), "lib.yaml")
	if !errors.Is(err, catalogerr.ErrMissingPackage) {
		t.Fatalf("ReplaceManifest() with a missing dependency error = %v, want ErrMissingPackage", err)
	}

	id, ok, err := c.FindManifestByPath("lib.yaml")
	if err != nil || !ok {
		t.Fatalf("FindManifestByPath(lib.yaml) = %v, %v", ok, err)
	}
	if got, _, _ := c.GetPropertyByManifestID(id, PropertyVersion); got != "2.0" {
		t.Errorf("version at lib.yaml after rejected replacements = %q, want 2.0", got)
	}
	if n, _ := c.ManifestCount(); n != 2 {
		t.Errorf("ManifestCount() = %d, want 2", n)
	}
}

func TestReplaceManifest_SingleVersionLayoutRewritesInPlace(t *testing.T) {
	c := newTestCatalog(t, LatestVersion)
	mustAdd(t, c, newManifest("Foo", "2.0"), "foo.yaml")

	removed, added, err := c.ReplaceManifest(newManifest("Foo", "2.0"), newManifest("Foo", "2.1"), "foo.yaml")
	if err != nil || removed || added {
		t.Fatalf("ReplaceManifest() = %v, %v, %v; want false, false, nil", removed, added, err)
	}
	if got := versionOf(t, c, "foo.yaml"); got != "2.1" {
		t.Errorf("version at foo.yaml = %q, want 2.1", got)
	}

	if _, _, err := c.ReplaceManifest(newManifest("Foo", "2.0"), newManifest("Foo", "3.0"), "foo.yaml"); !errors.Is(err, catalogerr.ErrNotSet) {
		t.Errorf("ReplaceManifest() of a stale key error = %v, want ErrNotSet", err)
	}
}

func versionOf(t *testing.T, c *Catalog, path string) string {
	t.Helper()
	id, ok, err := c.FindManifestByPath(path)
	if err != nil || !ok {
		t.Fatalf("FindManifestByPath(%s) = %v, %v", path, ok, err)
	}
	v, _, err := c.GetPropertyByManifestID(id, PropertyVersion)
	if err != nil {
		t.Fatalf("GetPropertyByManifestID() failed: %v", err)
	}
	return v
}
