// Package scanner mirrors locally installed applications into an
// "installed" catalog so they can be matched against available packages.
package scanner

import (
	"github.com/charmbracelet/log"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

// InstalledApp is one application found on the machine.
type InstalledApp struct {
	ID        string
	Name      string
	Publisher string
	Version   string
	Moniker   string
	Tags      []string
	Commands  []string
	// ProductCode identifies the install in the platform's registry.
	ProductCode string
	// Dependencies are ids of other installed apps this one needs.
	Dependencies []string
	// Metadata uses the catalog.Metadata* keys.
	Metadata map[string]string
}

// Source lists the applications currently installed.
type Source interface {
	InstalledApps() ([]InstalledApp, error)
}

// Scanner keeps an installed catalog in sync with a Source.
type Scanner struct {
	catalog *catalog.Catalog
	source  Source
	logger  *log.Logger
}

// New creates a Scanner writing to c.
func New(c *catalog.Catalog, src Source) *Scanner {
	return &Scanner{catalog: c, source: src, logger: c.Logger()}
}
