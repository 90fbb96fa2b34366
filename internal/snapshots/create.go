package snapshots

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/versiondata"
)

// PrepareForPackaging writes one version document per package to
// <output>/packages/<id>/<hash>/versionData.yml.lzma, where hash is the
// first 8 hex digits of the document's SHA-256.
//
// Catalogs with update tracking only rewrite packages changed since the
// PackageUpdateTrackingBaseTime property and then advance it. Other catalogs
// always write every package.
func (m *Manager) PrepareForPackaging() (*Result, error) {
	out := m.OutputDir()
	if out == "" {
		return nil, fmt.Errorf("%w: no output directory configured", catalogerr.ErrInvalidArgument)
	}
	if err := os.MkdirAll(filepath.Join(out, PackagesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &Result{Written: make(map[string]string)}
	ids, removed, err := m.selectPackages(result)
	if err != nil {
		return nil, err
	}

	for _, id := range removed {
		dir, err := packageDir(out, id)
		if err != nil {
			return nil, err
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		result.Removed = append(result.Removed, id)
	}

	for _, id := range ids {
		path, err := m.writePackage(out, id)
		if err != nil {
			return nil, fmt.Errorf("failed to package %s: %w", id, err)
		}
		result.Written[id] = path
	}

	if result.Incremental {
		if err := m.advanceBaseTime(result); err != nil {
			return nil, err
		}
	}

	m.logger.Info("prepared catalog for packaging", "written", len(result.Written),
		"removed", len(result.Removed), "incremental", result.Incremental)
	return result, nil
}

// selectPackages returns the packages to write and those to delete.
func (m *Manager) selectPackages(result *Result) (write, remove []string, err error) {
	base, err := m.baseTime()
	if err != nil {
		return nil, nil, err
	}
	changes, err := m.catalog.PackagesChangedSince(base)
	if errors.Is(err, catalogerr.ErrInvalidState) {
		pkgs, err := m.catalog.ListPackages()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list packages: %w", err)
		}
		keep := make(map[string]bool, len(pkgs))
		for _, p := range pkgs {
			write = append(write, p.ID)
			keep[strings.ToLower(p.ID)] = true
		}
		packaged, err := m.ListPackaged()
		if err != nil {
			return nil, nil, err
		}
		for _, id := range packaged {
			if !keep[strings.ToLower(id)] {
				remove = append(remove, id)
			}
		}
		return write, remove, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read changed packages: %w", err)
	}

	result.Incremental = true
	result.BaseTime = base
	for _, ch := range changes {
		// The latest entry wins, but a package may be gone without one.
		ids, err := m.catalog.ManifestsByPackage(ch.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) == 0 {
			remove = append(remove, ch.ID)
			continue
		}
		write = append(write, ch.ID)
	}
	return write, remove, nil
}

func (m *Manager) baseTime() (int64, error) {
	raw := m.catalog.Property(catalog.PackageUpdateTrackingBaseTime)
	if raw == "" {
		return 0, nil
	}
	base, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed base time %q", catalogerr.ErrInvalidState, raw)
	}
	return base, nil
}

func (m *Manager) advanceBaseTime(result *Result) error {
	latest, err := m.catalog.LatestTrackingTime()
	if err != nil {
		return err
	}
	if latest <= result.BaseTime {
		return nil
	}
	if m.catalog.Disposition() != catalog.ReadWrite {
		m.logger.Warn("catalog is read-only, base time not advanced", "latest", latest)
		return nil
	}
	if err := m.catalog.SetProperty(catalog.PackageUpdateTrackingBaseTime, strconv.FormatInt(latest, 10)); err != nil {
		return fmt.Errorf("failed to advance base time: %w", err)
	}
	result.BaseTime = latest
	return nil
}

// document builds the version document of one package.
func (m *Manager) document(id string) (*versiondata.Document, error) {
	manifests, err := m.catalog.ManifestsByPackage(id)
	if err != nil {
		return nil, err
	}
	doc := &versiondata.Document{SchemaVersion: versiondata.FormatVersion}
	for _, mid := range manifests {
		var (
			v      versiondata.Version
			fields = []struct {
				prop catalog.PackageVersionProperty
				dst  *string
			}{
				{catalog.PropertyVersion, &v.Version},
				{catalog.PropertyRelativePath, &v.RelativePath},
				{catalog.PropertyManifestSHA256Hash, &v.SHA256Hash},
				{catalog.PropertyArpMinVersion, &v.ArpMinVersion},
				{catalog.PropertyArpMaxVersion, &v.ArpMaxVersion},
			}
		)
		for _, f := range fields {
			value, _, err := m.catalog.GetPropertyByManifestID(mid, f.prop)
			if err != nil {
				return nil, err
			}
			*f.dst = value
		}
		doc.Versions = append(doc.Versions, v)
	}
	return doc, nil
}

// writePackage writes the document of id and removes any stale document
// of the same package.
func (m *Manager) writePackage(out, id string) (string, error) {
	dir, err := packageDir(out, id)
	if err != nil {
		return "", err
	}
	doc, err := m.document(id)
	if err != nil {
		return "", err
	}
	data, err := versiondata.Encode(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])[:8]

	target := filepath.Join(dir, hash)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(target, versiondata.FileName)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name() == hash {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return "", err
		}
	}

	m.logger.Debug("wrote version data", "package", id, "versions", len(doc.Versions), "path", path)
	return path, nil
}

// packageDir returns the directory of package id. Ids that would name the
// packages directory itself or its parent are refused.
func packageDir(out, id string) (string, error) {
	if id == "" || id == "." || id == ".." {
		return "", fmt.Errorf("%w: package id %q is not a valid directory name", catalogerr.ErrInvalidArgument, id)
	}
	return filepath.Join(out, PackagesDir, dirName(id)), nil
}

// unsafeNameBytes are written as %XX in directory names, along with control
// characters. '%' is included so names decode unambiguously.
const unsafeNameBytes = `%/\:*?"<>|`

// dirName encodes id as a single portable directory name.
func dirName(id string) string {
	var sb strings.Builder
	for i := 0; i < len(id); i++ {
		b := id[i]
		if b < 0x20 || b == 0x7f || strings.IndexByte(unsafeNameBytes, b) >= 0 {
			fmt.Fprintf(&sb, "%%%02X", b)
			continue
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".versiondata-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
