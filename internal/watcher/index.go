package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

// FindManifests returns every manifest file below root. Hidden directories
// are skipped.
func FindManifests(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isManifest(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return paths, nil
}

// Index writes every manifest below root into c. progress, if not nil, is
// called once per file with the error that file produced, if any.
func Index(c *catalog.Catalog, root string, progress func(path string, err error)) (Stats, error) {
	paths, err := FindManifests(root)
	if err != nil {
		return Stats{}, err
	}

	a := &applier{catalog: c, root: root}
	stats := a.apply(paths, func(path string, err error) {
		if err != nil {
			c.Logger().Warn("failed to index manifest", "path", path, "err", err)
		}
		if progress != nil {
			progress(path, err)
		}
	})
	return stats, nil
}
