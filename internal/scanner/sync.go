package scanner

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
)

// SyncResult counts what a Sync changed.
type SyncResult struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
}

// installed is a catalog row of the mirror.
type installed struct {
	id      catalog.ManifestID
	pkg     string
	version string
	channel string
}

// Sync writes every installed app into the catalog as a pathless package
// version and removes entries for apps that are gone. Apps are written
// dependencies first; dependencies on apps that are not installed, or that
// would close a cycle, are dropped.
func (s *Scanner) Sync() (*SyncResult, error) {
	apps, err := s.source.InstalledApps()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed apps: %w", err)
	}
	ordered := s.dependencyOrder(apps)

	existing, err := s.existing()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	current := make(map[catalog.ManifestID]bool, len(ordered))
	for _, app := range ordered {
		id, err := s.write(app, result)
		if err != nil {
			return nil, fmt.Errorf("failed to sync %s: %w", app.ID, err)
		}
		current[id] = true
	}

	var stale []installed
	for _, e := range existing {
		if !current[e.id] {
			stale = append(stale, e)
		}
	}
	removed, err := s.removeAll(stale)
	result.Removed = removed
	if err != nil {
		return result, err
	}

	s.logger.Info("synced installed apps", "added", result.Added, "updated", result.Updated,
		"unchanged", result.Unchanged, "removed", result.Removed)
	return result, nil
}

// toManifest converts app into the manifest stored for it.
func toManifest(app InstalledApp, deps []string) *manifest.Manifest {
	m := &manifest.Manifest{
		ID:      app.ID,
		Version: app.Version,
		Moniker: app.Moniker,
		DefaultLocalization: manifest.Localization{
			PackageName: app.Name,
			Publisher:   app.Publisher,
			Tags:        app.Tags,
		},
	}
	if m.DefaultLocalization.PackageName == "" {
		m.DefaultLocalization.PackageName = app.ID
	}

	inst := manifest.Installer{
		Commands:    app.Commands,
		ProductCode: app.ProductCode,
		AppsAndFeaturesEntries: []manifest.AppsAndFeaturesEntry{{
			DisplayName:    app.Name,
			Publisher:      app.Publisher,
			DisplayVersion: app.Version,
			ProductCode:    app.ProductCode,
		}},
	}
	for _, d := range deps {
		inst.Dependencies = append(inst.Dependencies, manifest.Dependency{Type: manifest.PackageDependency, ID: d})
	}
	m.Installers = []manifest.Installer{inst}
	return m
}

func (s *Scanner) write(app InstalledApp, result *SyncResult) (catalog.ManifestID, error) {
	m := toManifest(app, app.Dependencies)

	id, ok, err := s.catalog.GetManifestIDByKey(app.ID, app.Version, "")
	if err != nil {
		return 0, err
	}
	if ok {
		changed, err := s.catalog.UpdateManifest(m, "")
		if err != nil {
			return 0, err
		}
		if changed {
			result.Updated++
		} else {
			result.Unchanged++
		}
	} else {
		added, err := s.catalog.AddOrUpdateManifest(m, "")
		if err != nil {
			return 0, err
		}
		if added {
			result.Added++
		} else {
			result.Updated++
		}
		if id, ok, err = s.catalog.GetManifestIDByKey(app.ID, app.Version, ""); err != nil {
			return 0, err
		} else if !ok {
			return 0, fmt.Errorf("%w: %s %s after write", catalogerr.ErrNotFound, app.ID, app.Version)
		}
	}

	if len(app.Metadata) > 0 && s.catalog.Version() != (catalog.SchemaVersion{Major: 1, Minor: 0}) {
		if err := s.catalog.SetMetadataByManifestID(id, app.Metadata); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// existing lists every row currently in the mirror.
func (s *Scanner) existing() ([]installed, error) {
	pkgs, err := s.catalog.ListPackages()
	if err != nil {
		return nil, err
	}
	var out []installed
	for _, p := range pkgs {
		ids, err := s.catalog.ManifestsByPackage(p.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			e := installed{id: id, pkg: p.ID}
			if e.version, _, err = s.catalog.GetPropertyByManifestID(id, catalog.PropertyVersion); err != nil {
				return nil, err
			}
			if e.channel, _, err = s.catalog.GetPropertyByManifestID(id, catalog.PropertyChannel); err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// removeAll removes stale rows, retrying those still needed by another
// stale row until no further progress is made.
func (s *Scanner) removeAll(stale []installed) (int, error) {
	removed := 0
	for len(stale) > 0 {
		var blocked []installed
		var lastErr error
		for _, e := range stale {
			m := &manifest.Manifest{ID: e.pkg, Version: e.version, Channel: e.channel}
			err := s.catalog.RemoveManifest(m, "")
			switch {
			case err == nil:
				removed++
			case errors.Is(err, catalogerr.ErrDependenciesValidationFailed):
				blocked = append(blocked, e)
				lastErr = err
			case errors.Is(err, catalogerr.ErrNotSet):
				// Already replaced by a newer version of the same package.
			default:
				return removed, err
			}
		}
		if len(blocked) == len(stale) {
			return removed, fmt.Errorf("failed to remove %d stale entries: %w", len(blocked), lastErr)
		}
		stale = blocked
	}
	return removed, nil
}

// dependencyOrder sorts apps so every app follows its dependencies and
// prunes dependencies that cannot be honored.
func (s *Scanner) dependencyOrder(apps []InstalledApp) []InstalledApp {
	byID := make(map[string]int, len(apps))
	for i, app := range apps {
		byID[strings.ToLower(app.ID)] = i
	}
	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(apps))
	var out []InstalledApp

	var visit func(key string)
	visit = func(key string) {
		color[key] = gray
		app := apps[byID[key]]
		var deps []string
		for _, d := range app.Dependencies {
			dk := strings.ToLower(d)
			if _, ok := byID[dk]; !ok {
				s.logger.Debug("dropping dependency on app that is not installed", "app", app.ID, "dependency", d)
				continue
			}
			if color[dk] == gray || dk == key {
				s.logger.Warn("dropping cyclic dependency", "app", app.ID, "dependency", d)
				continue
			}
			if color[dk] == white {
				visit(dk)
			}
			deps = append(deps, d)
		}
		app.Dependencies = deps
		color[key] = black
		out = append(out, app)
	}

	for _, k := range keys {
		if color[k] == white {
			visit(k)
		}
	}
	return out
}
