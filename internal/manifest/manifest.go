// Package manifest defines the package manifest consumed by the catalog.
//
// The struct mirrors a singleton YAML manifest so files can be loaded
// directly with LoadFile; the catalog itself only reads the struct.
package manifest

import (
	"strings"
)

// DependencyType classifies a dependency. Only package dependencies are
// indexed by the catalog.
type DependencyType string

const (
	PackageDependency        DependencyType = "Package"
	WindowsFeatureDependency DependencyType = "WindowsFeature"
	WindowsLibraryDependency DependencyType = "WindowsLibrary"
	ExternalDependency       DependencyType = "External"
)

// Localization holds the locale dependent descriptive fields.
type Localization struct {
	Locale           string   `yaml:"PackageLocale,omitempty"`
	PackageName      string   `yaml:"PackageName,omitempty"`
	Publisher        string   `yaml:"Publisher,omitempty"`
	ShortDescription string   `yaml:"ShortDescription,omitempty"`
	Description      string   `yaml:"Description,omitempty"`
	Tags             []string `yaml:"Tags,omitempty"`
}

// Dependency is a single dependency declared by an installer.
type Dependency struct {
	Type       DependencyType `yaml:"Type,omitempty"`
	ID         string         `yaml:"PackageIdentifier"`
	MinVersion string         `yaml:"MinimumVersion,omitempty"`
}

// AppsAndFeaturesEntry describes how an installed copy shows up in the
// installed-applications registry (ARP).
type AppsAndFeaturesEntry struct {
	DisplayName    string `yaml:"DisplayName,omitempty"`
	Publisher      string `yaml:"Publisher,omitempty"`
	DisplayVersion string `yaml:"DisplayVersion,omitempty"`
	ProductCode    string `yaml:"ProductCode,omitempty"`
	UpgradeCode    string `yaml:"UpgradeCode,omitempty"`
}

// Installer is one installer entry of a manifest.
type Installer struct {
	Architecture           string                 `yaml:"Architecture,omitempty"`
	InstallerType          string                 `yaml:"InstallerType,omitempty"`
	Commands               []string               `yaml:"Commands,omitempty"`
	PackageFamilyName      string                 `yaml:"PackageFamilyName,omitempty"`
	ProductCode            string                 `yaml:"ProductCode,omitempty"`
	Dependencies           []Dependency           `yaml:"Dependencies,omitempty"`
	AppsAndFeaturesEntries []AppsAndFeaturesEntry `yaml:"AppsAndFeaturesEntries,omitempty"`
}

// Manifest describes one package version.
type Manifest struct {
	ID      string `yaml:"PackageIdentifier"`
	Version string `yaml:"PackageVersion"`
	Channel string `yaml:"Channel,omitempty"`
	Moniker string `yaml:"Moniker,omitempty"`

	DefaultLocalization Localization   `yaml:",inline"`
	Localizations       []Localization `yaml:"Localizations,omitempty"`
	Installers          []Installer    `yaml:"Installers,omitempty"`

	// StreamHash is the SHA-256 of the manifest file, when known.
	StreamHash []byte `yaml:"-"`
}

// Names returns the package name of every localization, default first.
func (m *Manifest) Names() []string {
	return m.collect(func(l Localization) []string { return []string{l.PackageName} })
}

// Publishers returns the publisher of every localization, default first.
func (m *Manifest) Publishers() []string {
	return m.collect(func(l Localization) []string { return []string{l.Publisher} })
}

// Tags returns the tags of every localization without exact duplicates.
func (m *Manifest) Tags() []string {
	return m.collect(func(l Localization) []string { return l.Tags })
}

func (m *Manifest) collect(get func(Localization) []string) []string {
	var out []string
	out = append(out, get(m.DefaultLocalization)...)
	for _, l := range m.Localizations {
		out = append(out, get(l)...)
	}
	return Unique(out)
}

// Commands returns the commands of all installers.
func (m *Manifest) Commands() []string {
	var out []string
	for _, inst := range m.Installers {
		out = append(out, inst.Commands...)
	}
	return Unique(out)
}

// PackageFamilyNames returns the package family names of all installers.
func (m *Manifest) PackageFamilyNames() []string {
	var out []string
	for _, inst := range m.Installers {
		out = append(out, inst.PackageFamilyName)
	}
	return Unique(out)
}

// ProductCodes returns installer product codes followed by those of the ARP
// entries.
func (m *Manifest) ProductCodes() []string {
	var out []string
	for _, inst := range m.Installers {
		out = append(out, inst.ProductCode)
		for _, e := range inst.AppsAndFeaturesEntries {
			out = append(out, e.ProductCode)
		}
	}
	return Unique(out)
}

// UpgradeCodes returns the upgrade codes of all ARP entries.
func (m *Manifest) UpgradeCodes() []string {
	var out []string
	for _, e := range m.ArpEntries() {
		out = append(out, e.UpgradeCode)
	}
	return Unique(out)
}

// ArpEntries returns the ARP entries of all installers.
func (m *Manifest) ArpEntries() []AppsAndFeaturesEntry {
	var out []AppsAndFeaturesEntry
	for _, inst := range m.Installers {
		out = append(out, inst.AppsAndFeaturesEntries...)
	}
	return out
}

// ArpDisplayVersions returns the display versions of all ARP entries.
func (m *Manifest) ArpDisplayVersions() []string {
	var out []string
	for _, e := range m.ArpEntries() {
		out = append(out, e.DisplayVersion)
	}
	return Unique(out)
}

// PackageDependencies returns the package dependencies of all installers.
// Ids are compared case-insensitively; when the same id appears more than
// once the first spelling is kept along with the highest minimum version.
func (m *Manifest) PackageDependencies() []Dependency {
	var out []Dependency
	index := make(map[string]int)
	for _, inst := range m.Installers {
		for _, dep := range inst.Dependencies {
			if dep.Type != "" && dep.Type != PackageDependency {
				continue
			}
			id := strings.TrimSpace(dep.ID)
			if id == "" {
				continue
			}
			key := strings.ToLower(id)
			if i, ok := index[key]; ok {
				if higherMin(dep.MinVersion, out[i].MinVersion) {
					out[i].MinVersion = dep.MinVersion
				}
				continue
			}
			index[key] = len(out)
			out = append(out, Dependency{Type: PackageDependency, ID: id, MinVersion: dep.MinVersion})
		}
	}
	return out
}

// Unique drops blank strings and exact duplicates, keeping first occurrences.
func Unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
