package brew

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

func fakeRunner(outputs map[string]string) Runner {
	return func(args ...string) ([]byte, error) {
		key := strings.Join(args, " ")
		out, ok := outputs[key]
		if !ok {
			return nil, fmt.Errorf("unexpected brew %s", key)
		}
		return []byte(out), nil
	}
}

func TestPackageID(t *testing.T) {
	tests := []struct {
		name string
		cask bool
		want string
	}{
		{"node", false, "Homebrew.node"},
		{"firefox", true, "Homebrew.Cask.firefox"},
		{"user/tap/tool", false, "user.tap.tool"},
	}
	for _, tt := range tests {
		if got := PackageID(tt.name, tt.cask); got != tt.want {
			t.Errorf("PackageID(%q, %v) = %q, want %q", tt.name, tt.cask, got, tt.want)
		}
	}
}

func TestSource_InstalledApps(t *testing.T) {
	src := &Source{
		run:    fakeRunner(map[string]string{"info --json=v2 --installed": infoJSON}),
		prefix: "/opt/homebrew",
	}
	apps, err := src.InstalledApps()
	if err != nil {
		t.Fatalf("InstalledApps() failed: %v", err)
	}
	if len(apps) != 3 {
		t.Fatalf("InstalledApps() = %d apps, want 3", len(apps))
	}

	node := apps[2]
	if node.ID != "Homebrew.node" || node.Version != "20.10.0" {
		t.Errorf("node app = %s %s", node.ID, node.Version)
	}
	if diff := cmp.Diff([]string{"Homebrew.icu4c", "Homebrew.openssl@3"}, node.Dependencies); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
	if got := node.Metadata[catalog.MetadataInstalledLocation]; got != "/opt/homebrew/Cellar/node/20.10.0" {
		t.Errorf("install location = %q", got)
	}
	if got := node.Metadata[catalog.MetadataSilentUninstall]; got != "brew uninstall --force --formula node" {
		t.Errorf("silent uninstall = %q", got)
	}

	icu := apps[1]
	if diff := cmp.Diff([]string{"homebrew", "formula", "dependency"}, icu.Tags); diff != "" {
		t.Errorf("icu4c tags mismatch (-want +got):\n%s", diff)
	}
	if got := apps[0].Metadata[catalog.MetadataInstalledType]; got != "cask" {
		t.Errorf("firefox installed type = %q, want cask", got)
	}
}

func TestSource_BrewFailure(t *testing.T) {
	src := &Source{run: fakeRunner(nil)}
	if _, err := src.InstalledApps(); err == nil {
		t.Error("InstalledApps() succeeded although brew failed")
	}
}
