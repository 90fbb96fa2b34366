package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/depgraph"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

// AddManifest indexes a new manifest. path is the manifest's location
// relative to the catalog root and may be empty for packages with no file.
//
// It fails with ErrAlreadyExists when the key is already present (ids
// compare case-insensitively) or another manifest uses path.
func (c *Catalog) AddManifest(m *manifest.Manifest, path string) (ManifestID, error) {
	if err := c.writable(); err != nil {
		return 0, err
	}
	rec, err := c.schema.newRecord(m, path)
	if err != nil {
		return 0, err
	}

	var rowid int64
	err = c.store.WithTx(func(tx *sql.Tx) error {
		_, exists, err := c.schema.findKey(tx, rec.id, rec.version, rec.channel)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", catalogerr.ErrAlreadyExists, rec.key())
		}
		rowid, err = c.add(tx, rec)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add %s: %w", rec.key(), err)
	}

	c.logger.Debug("added manifest", "key", rec.key(), "path", rec.path, "manifest", rowid)
	return ManifestID(rowid), nil
}

// UpdateManifest rewrites the indexed data of an existing manifest. It
// reports whether anything indexed changed; fields the catalog does not
// index never count. It fails with ErrNotFound when the key is absent.
func (c *Catalog) UpdateManifest(m *manifest.Manifest, path string) (bool, error) {
	if err := c.writable(); err != nil {
		return false, err
	}
	rec, err := c.schema.newRecord(m, path)
	if err != nil {
		return false, err
	}

	var changed bool
	err = c.store.WithTx(func(tx *sql.Tx) error {
		rowid, ok, err := c.schema.findKey(tx, rec.id, rec.version, rec.channel)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", catalogerr.ErrNotFound, rec.key())
		}
		changed, err = c.update(tx, rowid, rec)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", rec.key(), err)
	}

	c.logger.Debug("updated manifest", "key", rec.key(), "changed", changed)
	return changed, nil
}

// AddOrUpdateManifest adds the manifest or updates it in place. It reports
// whether a new row was created, not whether anything changed.
func (c *Catalog) AddOrUpdateManifest(m *manifest.Manifest, path string) (bool, error) {
	if err := c.writable(); err != nil {
		return false, err
	}
	rec, err := c.schema.newRecord(m, path)
	if err != nil {
		return false, err
	}

	var added bool
	err = c.store.WithTx(func(tx *sql.Tx) error {
		rowid, ok, err := c.schema.findKey(tx, rec.id, rec.version, rec.channel)
		if err != nil {
			return err
		}
		if ok {
			_, err = c.update(tx, rowid, rec)
			return err
		}
		added = true
		_, err = c.add(tx, rec)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to add or update %s: %w", rec.key(), err)
	}

	c.logger.Debug("upserted manifest", "key", rec.key(), "added", added)
	return added, nil
}

// RemoveManifest removes a manifest. When path is not empty it must match
// the stored path. It fails with ErrNotSet when no such manifest exists and
// with ErrDependenciesValidationFailed when a dependent still needs it.
func (c *Catalog) RemoveManifest(m *manifest.Manifest, path string) error {
	if err := c.writable(); err != nil {
		return err
	}
	rec, err := c.schema.newRecord(m, path)
	if err != nil {
		return err
	}

	err = c.store.WithTx(func(tx *sql.Tx) error {
		rowid, stored, err := c.findStored(tx, rec)
		if err != nil {
			return err
		}

		if c.schema.dependencies {
			node := depgraph.Node{ID: stored.id, Version: stored.version, Key: rowid}
			if err := depgraph.VerifyDependenciesStructureForManifestDelete(c.graph(tx), node); err != nil {
				return err
			}
		}
		if err := c.schema.remove(tx, rowid); err != nil {
			return err
		}
		return c.track(tx, stored.id, true)
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", rec.key(), err)
	}

	c.logger.Debug("removed manifest", "key", rec.key())
	return nil
}

// ReplaceManifest swaps the manifest old for m at path in one transaction,
// as when a manifest file is edited to a different key. removed reports
// whether old's row was deleted rather than rewritten in place; added
// reports whether m got a new row. On any error nothing changes.
func (c *Catalog) ReplaceManifest(old, m *manifest.Manifest, path string) (removed, added bool, err error) {
	if err := c.writable(); err != nil {
		return false, false, err
	}
	oldRec, err := c.schema.newRecord(old, path)
	if err != nil {
		return false, false, err
	}
	rec, err := c.schema.newRecord(m, path)
	if err != nil {
		return false, false, err
	}

	err = c.store.WithTx(func(tx *sql.Tx) error {
		oldID, stored, err := c.findStored(tx, oldRec)
		if err != nil {
			return err
		}
		newID, exists, err := c.schema.findKey(tx, rec.id, rec.version, rec.channel)
		if err != nil {
			return err
		}
		if exists && newID == oldID {
			_, err = c.update(tx, oldID, rec)
			return err
		}

		if err := c.schema.remove(tx, oldID); err != nil {
			return err
		}
		if err := c.track(tx, stored.id, true); err != nil {
			return err
		}
		removed = true
		if exists {
			_, err = c.update(tx, newID, rec)
		} else {
			added = true
			_, err = c.add(tx, rec)
		}
		if err != nil {
			return err
		}

		if c.schema.dependencies {
			node := depgraph.Node{ID: stored.id, Version: stored.version, Key: oldID}
			return depgraph.VerifyDependenciesStructureForManifestDelete(c.graph(tx), node)
		}
		return nil
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to replace %s with %s: %w", oldRec.key(), rec.key(), err)
	}

	c.logger.Debug("replaced manifest", "old", oldRec.key(), "key", rec.key(), "path", rec.path)
	return removed, added, nil
}

// findStored returns the row holding rec's key. The stored version must
// match rec's and, when rec has a path, so must the stored path.
func (c *Catalog) findStored(tx *sql.Tx, rec *record) (int64, *record, error) {
	rowid, ok, err := c.schema.findKey(tx, rec.id, rec.version, rec.channel)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", catalogerr.ErrNotSet, rec.key())
	}
	stored, _, err := c.schema.readRecord(tx, rowid)
	if err != nil {
		return 0, nil, err
	}
	if !strings.EqualFold(stored.version, rec.version) {
		return 0, nil, fmt.Errorf("%w: %s is at version %s", catalogerr.ErrNotSet, stored.id, stored.version)
	}
	if rec.path != "" && rec.path != stored.path {
		return 0, nil, fmt.Errorf("%w: %s is not at %s", catalogerr.ErrNotSet, rec.key(), rec.path)
	}
	return rowid, stored, nil
}

func (c *Catalog) add(tx *sql.Tx, rec *record) (int64, error) {
	if rec.path != "" {
		other, ok, err := c.schema.findPath(tx, rec.path)
		if err != nil {
			return 0, err
		}
		if ok {
			return 0, fmt.Errorf("%w: path %s is used by manifest %d", catalogerr.ErrAlreadyExists, rec.path, other)
		}
	}
	if err := c.schema.validateArp(tx, rec, 0); err != nil {
		return 0, err
	}
	if err := c.validateDependencies(tx, rec); err != nil {
		return 0, err
	}

	rowid, err := c.schema.insert(tx, rec)
	if err != nil {
		return 0, err
	}
	return rowid, c.track(tx, rec.id, false)
}

func (c *Catalog) update(tx *sql.Tx, rowid int64, rec *record) (bool, error) {
	old, oldRow, err := c.schema.readRecord(tx, rowid)
	if err != nil {
		return false, err
	}
	if old.equal(rec) {
		return false, nil
	}

	if rec.path != "" && rec.path != old.path {
		other, ok, err := c.schema.findPath(tx, rec.path)
		if err != nil {
			return false, err
		}
		if ok && other != rowid {
			return false, fmt.Errorf("%w: path %s is used by manifest %d", catalogerr.ErrAlreadyExists, rec.path, other)
		}
	}
	if err := c.schema.validateArp(tx, rec, rowid); err != nil {
		return false, err
	}
	if err := c.validateDependencies(tx, rec); err != nil {
		return false, err
	}
	if c.schema.dependencies && old.version != rec.version {
		node := depgraph.Node{ID: old.id, Version: old.version, Key: rowid}
		if err := depgraph.VerifyDependenciesStructureForManifestReplace(c.graph(tx), node, rec.version); err != nil {
			return false, err
		}
	}

	if err := c.schema.rewrite(tx, oldRow, rec); err != nil {
		return false, err
	}
	return true, c.track(tx, rec.id, false)
}

func (r *record) key() string {
	if r.channel != "" {
		return fmt.Sprintf("%s %s [%s]", r.id, r.version, r.channel)
	}
	return r.id + " " + r.version
}

// insert writes rec as a new row without any validation.
func (s *schema) insert(q store.Querier, rec *record) (int64, error) {
	r, err := s.intern(q, rec)
	if err != nil {
		return 0, err
	}
	rowid, err := s.writeRow(q, r)
	if err != nil {
		return 0, err
	}
	if err := s.writeMulti(q, rowid, r.id, rec); err != nil {
		return 0, err
	}
	if s.dependencies {
		if _, err := setDependencies(q, rowid, rec.deps); err != nil {
			return 0, err
		}
	}
	return rowid, nil
}

// rewrite overwrites the row old with rec and prunes values it no longer uses.
func (s *schema) rewrite(q store.Querier, old *row, rec *record) error {
	r, err := s.intern(q, rec)
	if err != nil {
		return err
	}
	r.rowid = old.rowid

	// The key matched case-insensitively; an explicit update may recase the id.
	stored, err := idTable.Value(q, r.id)
	if err != nil {
		return err
	}
	if stored != rec.id {
		if err := idTable.SetValue(q, r.id, rec.id); err != nil {
			return err
		}
	}

	if _, err := s.writeRow(q, r); err != nil {
		return err
	}
	if err := s.writeMulti(q, r.rowid, r.id, rec); err != nil {
		return err
	}
	var oldDeps []depRow
	if s.dependencies {
		if oldDeps, err = setDependencies(q, r.rowid, rec.deps); err != nil {
			return err
		}
	}
	return s.prune(q, old, oldDeps)
}

// remove deletes the row at rowid along with everything only it used.
func (s *schema) remove(q store.Querier, rowid int64) error {
	old, err := s.readRow(q, rowid)
	if err != nil {
		return err
	}
	for _, f := range s.multiFields() {
		if err := f.table.Remove(q, rowid); err != nil {
			return err
		}
	}
	if s.metadata {
		if _, err := q.Exec("DELETE FROM manifest_metadata WHERE manifest = ?", rowid); err != nil {
			return fmt.Errorf("failed to delete metadata of manifest %d: %w", rowid, err)
		}
	}
	var oldDeps []depRow
	if s.dependencies {
		if oldDeps, err = setDependencies(q, rowid, nil); err != nil {
			return err
		}
	}
	if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", s.primary), rowid); err != nil {
		return fmt.Errorf("failed to delete manifest %d: %w", rowid, err)
	}
	return s.prune(q, old, oldDeps)
}

func (s *schema) writeMulti(q store.Querier, rowid, pkg int64, rec *record) error {
	for _, f := range s.multiFields() {
		if err := f.table.Set(q, rowid, s.scope(rowid, pkg), rec.multi[f.property]); err != nil {
			return err
		}
	}
	return nil
}
