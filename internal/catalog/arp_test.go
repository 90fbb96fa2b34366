package catalog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

func TestArp_OverlapRejected(t *testing.T) {
	for _, v := range versionsWhere(func(s *schema) bool { return s.arp && s.channels }) {
		t.Run(v.String(), func(t *testing.T) {
			c := newTestCatalog(t, v)
			mustAdd(t, c, newManifest("Foo", "1.0", withArp("1.0", "1.1")), "")

			_, err := c.AddManifest(newManifest("Foo", "2.0", withArp("1.1", "2.0")), "")
			if !errors.Is(err, catalogerr.ErrArpVersionValidationFailed) {
				t.Errorf("AddManifest() overlapping range error = %v, want ErrArpVersionValidationFailed", err)
			}

			mustAdd(t, c, newManifest("Foo", "2.0", withArp("1.2", "2.0")), "")
			mustAdd(t, c, newManifest("Foo", "1.0", withChannel("beta"), withArp("1.0")), "")
			mustAdd(t, c, newManifest("Other", "1.0", withArp("1.0", "1.1")), "")
		})
	}
}

func TestArp_RemovingPackageKeepsSharedVersions(t *testing.T) {
	c := newTestCatalog(t, LatestVersion)
	foo := newManifest("Foo", "10.0", withArp("1.0", "1.1"))
	mustAdd(t, c, foo, "")
	mustAdd(t, c, newManifest("Foo2", "1.0", withArp("10.0")), "")

	if err := c.RemoveManifest(foo, ""); err != nil {
		t.Fatalf("RemoveManifest() failed: %v", err)
	}

	got, err := store.Strings(c.db(), "SELECT version FROM versions ORDER BY version")
	if err != nil {
		t.Fatalf("reading versions failed: %v", err)
	}
	if diff := cmp.Diff([]string{"1.0", "10.0"}, got); diff != "" {
		t.Errorf("versions after remove mismatch (-want +got):\n%s", diff)
	}
}

func TestArp_PropertyPresence(t *testing.T) {
	forEachVersion(t, func(t *testing.T, v SchemaVersion) {
		c := newTestCatalog(t, v)
		with := mustAdd(t, c, newManifest("Foo", "1.0", withArp("1.0.1", "1.0.0")), "")
		without := mustAdd(t, c, newManifest("Bar", "1.0"), "")

		lo, loOK, err := c.GetPropertyByManifestID(with, PropertyArpMinVersion)
		if err != nil {
			t.Fatalf("GetPropertyByManifestID() failed: %v", err)
		}
		hi, hiOK, _ := c.GetPropertyByManifestID(with, PropertyArpMaxVersion)
		empty, emptyOK, _ := c.GetPropertyByManifestID(without, PropertyArpMinVersion)

		switch {
		case !c.schema.arp:
			if loOK || hiOK || emptyOK {
				t.Errorf("ARP properties reported on a layout without them")
			}
		case c.schema.channels:
			if lo != "1.0.0" || hi != "1.0.1" || !loOK || !hiOK {
				t.Errorf("ARP range = [%q, %q], want [1.0.0, 1.0.1]", lo, hi)
			}
			if !emptyOK || empty != "" {
				t.Errorf("ARP min without entries = %q, %v; want empty and present", empty, emptyOK)
			}
		default:
			if lo != "1.0.0" || hi != "1.0.1" {
				t.Errorf("ARP range = [%q, %q], want [1.0.0, 1.0.1]", lo, hi)
			}
			if emptyOK {
				t.Errorf("ARP min without entries reported present: %q", empty)
			}
		}
	})
}
