package brew

import (
	"runtime"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/scanner"
)

// Source reports installed Homebrew packages as installed apps.
type Source struct {
	run Runner
	// prefix overrides `brew --prefix` when set.
	prefix string
}

// NewSource returns a Source that runs the brew executable.
func NewSource() *Source {
	return &Source{run: execRunner}
}

// InstalledApps implements scanner.Source.
func (s *Source) InstalledApps() ([]scanner.InstalledApp, error) {
	pkgs, err := ListInstalled(s.run)
	if err != nil {
		return nil, err
	}

	prefix := s.prefix
	if prefix == "" {
		// Without a prefix apps are still reported, only without
		// commands or install locations.
		prefix, _ = GetBrewPrefix(s.run)
	}
	commands := map[string][]string{}
	if prefix != "" {
		if linked, err := linkedCommands(prefix); err == nil {
			commands = linked
		}
	}

	apps := make([]scanner.InstalledApp, 0, len(pkgs))
	for _, pkg := range pkgs {
		if !pkg.IsCask {
			pkg.Commands = commands[pkg.Name]
		}
		apps = append(apps, toInstalledApp(pkg, prefix))
	}
	return apps, nil
}

// PackageID returns the catalog id of a formula or cask full name.
// "node" becomes "Homebrew.node", cask "firefox" becomes
// "Homebrew.Cask.firefox" and "user/tap/tool" becomes "user.tap.tool".
func PackageID(fullName string, cask bool) string {
	if strings.Contains(fullName, "/") {
		return strings.ReplaceAll(fullName, "/", ".")
	}
	if cask {
		return "Homebrew.Cask." + fullName
	}
	return "Homebrew." + fullName
}

func toInstalledApp(pkg *Package, prefix string) scanner.InstalledApp {
	kind := "formula"
	if pkg.IsCask {
		kind = "cask"
	}
	standard, silent := uninstallCommands(pkg)

	app := scanner.InstalledApp{
		ID:        PackageID(pkg.FullName, pkg.IsCask),
		Name:      pkg.Name,
		Publisher: pkg.Tap,
		Version:   pkg.Version,
		Moniker:   pkg.Name,
		Commands:  pkg.Commands,
		Tags:      []string{"homebrew", kind},
		Metadata: map[string]string{
			catalog.MetadataInstalledType:         kind,
			catalog.MetadataInstalledLocation:     installLocation(prefix, pkg),
			catalog.MetadataStandardUninstall:     standard,
			catalog.MetadataSilentUninstall:       silent,
			catalog.MetadataPublisher:             pkg.Tap,
			catalog.MetadataInstalledArchitecture: runtime.GOARCH,
		},
	}
	if !pkg.OnRequest {
		app.Tags = append(app.Tags, "dependency")
	}
	for _, dep := range pkg.Dependencies {
		app.Dependencies = append(app.Dependencies, PackageID(dep, false))
	}
	return app
}
