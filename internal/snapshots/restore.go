package snapshots

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/versiondata"
)

// ReadVersionData decodes a document written by PrepareForPackaging.
func ReadVersionData(path string) (*versiondata.Document, error) {
	doc, err := versiondata.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read version data %s: %w", path, err)
	}
	return doc, nil
}

// LoadPackage finds and decodes the current document of package id under
// the output directory.
func (m *Manager) LoadPackage(id string) (*versiondata.Document, error) {
	path, err := m.DocumentPath(id)
	if err != nil {
		return nil, err
	}
	return ReadVersionData(path)
}

// DocumentPath returns the path of the current document of package id.
func (m *Manager) DocumentPath(id string) (string, error) {
	dir, err := packageDir(m.OutputDir(), id)
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*", versiondata.FileName))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no version data for %s", catalogerr.ErrNotFound, id)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %d version documents for %s", catalogerr.ErrInvalidState, len(matches), id)
}

// ListPackaged returns the ids that have a package directory.
func (m *Manager) ListPackaged() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.OutputDir(), PackagesDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			id = e.Name()
		}
		ids = append(ids, id)
	}
	return ids, nil
}
