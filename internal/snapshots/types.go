// Package snapshots exports a catalog as per-package version documents that
// can be published alongside it.
package snapshots

import (
	"github.com/charmbracelet/log"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

// PackagesDir is the directory under the output root holding one directory
// per package.
const PackagesDir = "packages"

// Result summarizes one packaging run.
type Result struct {
	// Written maps package ids to the document written for them.
	Written map[string]string
	// Removed lists packages whose directories were deleted.
	Removed []string
	// Incremental is set when only changed packages were considered.
	Incremental bool
	// BaseTime is the update-tracking base time after the run.
	BaseTime int64
}

// Manager writes version documents for a catalog.
type Manager struct {
	catalog   *catalog.Catalog
	outputDir string
	logger    *log.Logger
}

// New creates a Manager. When outputDir is empty the catalog's
// IntermediateFileOutputPath property is used.
func New(c *catalog.Catalog, outputDir string) *Manager {
	return &Manager{
		catalog:   c,
		outputDir: outputDir,
		logger:    c.Logger(),
	}
}

// OutputDir returns the directory documents are written under.
func (m *Manager) OutputDir() string {
	if m.outputDir != "" {
		return m.outputDir
	}
	return m.catalog.Property(catalog.IntermediateFileOutputPath)
}
