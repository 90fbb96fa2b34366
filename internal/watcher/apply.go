package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
)

// Stats counts what applying a batch of changes did to the catalog.
type Stats struct {
	Added   int
	Updated int
	Removed int
	Errors  int
}

func (s *Stats) add(o Stats) {
	s.Added += o.Added
	s.Updated += o.Updated
	s.Removed += o.Removed
	s.Errors += o.Errors
}

// isManifest reports whether path names a YAML manifest file.
func isManifest(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// relativePath converts a file path below root into the catalog's
// slash-separated relative path.
func relativePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

// applier writes file changes below root into a catalog.
type applier struct {
	catalog *catalog.Catalog
	root    string
}

// apply writes or removes each path and reports each outcome through done,
// if not nil. A path that no longer exists is removed. A manifest rejected
// because a dependency is not indexed yet is retried after the rest of the
// batch, until a pass makes no progress.
func (a *applier) apply(paths []string, done func(path string, err error)) Stats {
	sort.Strings(paths)

	var stats Stats
	for len(paths) > 0 {
		var retry []string
		failed := make(map[string]error)
		for _, path := range paths {
			err := a.applyOne(path, &stats)
			if dependencyNotReady(err) {
				retry = append(retry, path)
				failed[path] = err
				continue
			}
			if err != nil {
				stats.Errors++
			}
			if done != nil {
				done(path, err)
			}
		}

		if len(retry) == len(paths) {
			for _, path := range retry {
				stats.Errors++
				if done != nil {
					done(path, failed[path])
				}
			}
			break
		}
		paths = retry
	}
	return stats
}

// dependencyNotReady reports whether err may clear once other manifests of
// the batch are applied.
func dependencyNotReady(err error) bool {
	return errors.Is(err, catalogerr.ErrMissingPackage) || errors.Is(err, catalogerr.ErrDependenciesValidationFailed)
}

func (a *applier) applyOne(path string, stats *Stats) error {
	rel, err := relativePath(a.root, path)
	if err != nil {
		return err
	}

	m, err := manifest.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		removed, err := a.remove(rel)
		if removed {
			stats.Removed++
		}
		return err
	}
	if err != nil {
		return err
	}

	// A file whose key changed replaces the old version stored at its path.
	old, ok, err := a.manifestAt(rel)
	if err != nil {
		return err
	}
	if ok && !sameKey(old, m) {
		removed, added, err := a.catalog.ReplaceManifest(old, m, rel)
		if err != nil {
			return err
		}
		switch {
		case removed && added:
			stats.Removed++
			stats.Added++
		case removed:
			stats.Removed++
			stats.Updated++
		default:
			stats.Updated++
		}
		return nil
	}

	added, err := a.catalog.AddOrUpdateManifest(m, rel)
	if err != nil {
		return err
	}
	if added {
		stats.Added++
	} else {
		stats.Updated++
	}
	return nil
}

// remove drops the manifest stored at rel, if any.
func (a *applier) remove(rel string) (bool, error) {
	m, ok, err := a.manifestAt(rel)
	if err != nil || !ok {
		return false, err
	}
	if err := a.catalog.RemoveManifest(m, rel); err != nil {
		return false, err
	}
	return true, nil
}

// manifestAt returns the key of the manifest stored at rel.
func (a *applier) manifestAt(rel string) (*manifest.Manifest, bool, error) {
	id, ok, err := a.catalog.FindManifestByPath(rel)
	if err != nil || !ok {
		return nil, false, err
	}

	m := &manifest.Manifest{}
	for _, f := range []struct {
		prop catalog.PackageVersionProperty
		dst  *string
	}{
		{catalog.PropertyID, &m.ID},
		{catalog.PropertyVersion, &m.Version},
		{catalog.PropertyChannel, &m.Channel},
	} {
		if *f.dst, _, err = a.catalog.GetPropertyByManifestID(id, f.prop); err != nil {
			return nil, false, err
		}
	}
	return m, true, nil
}

func sameKey(a, b *manifest.Manifest) bool {
	return strings.EqualFold(a.ID, b.ID) && a.Version == b.Version && strings.EqualFold(a.Channel, b.Channel)
}
