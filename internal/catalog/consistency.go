package catalog

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// CheckConsistency scans the catalog for broken references and returns
// false when it finds any. Every violation is logged at warn level. With
// fix set, orphaned value rows and dangling association rows are deleted;
// manifest rows are never rewritten, so it can still report false.
func (c *Catalog) CheckConsistency(fix bool) (bool, error) {
	if fix {
		if err := c.writable(); err != nil {
			return false, err
		}
	}

	k := &checker{s: c.schema, fix: fix, logger: c.logger}
	run := func(q store.Querier) error {
		k.q = q
		return k.run()
	}

	var err error
	if fix {
		err = c.store.WithTx(func(tx *sql.Tx) error { return run(tx) })
	} else {
		err = run(c.db())
	}
	if err != nil {
		return false, fmt.Errorf("failed to check consistency: %w", err)
	}

	c.logger.Debug("consistency check finished", "violations", k.found, "fixed", k.fixed)
	return k.found == 0, nil
}

type checker struct {
	q      store.Querier
	s      *schema
	fix    bool
	logger *log.Logger
	found  int
	fixed  int
}

func (k *checker) report(check string, keyvals ...any) {
	k.found++
	k.logger.Warn("consistency violation", append([]any{"check", check}, keyvals...)...)
}

func (k *checker) run() error {
	for _, step := range []func() error{
		k.danglingPrimaryColumns,
		k.orphanValues,
		k.multiValues,
		k.scopes,
		k.dependencies,
		k.unmetBounds,
		k.metadata,
		k.paths,
		k.embeddedNuls,
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// danglingPrimaryColumns finds manifest columns naming missing value rows.
// These are reported only.
func (k *checker) danglingPrimaryColumns() error {
	type column struct {
		name  string
		table string
	}
	cols := []column{
		{"id", idTable.Name},
		{"name", nameTable.Name},
		{"moniker", monikerTable.Name},
		{"version", versionTable.Name},
		{"pathpart", "pathparts"},
	}
	if k.s.channels {
		cols = append(cols, column{"channel", channelTable.Name})
	}
	if k.s.arp {
		cols = append(cols, column{"arp_min_version", versionTable.Name}, column{"arp_max_version", versionTable.Name})
	}

	for _, col := range cols {
		rows, err := store.Int64s(k.q, fmt.Sprintf(
			"SELECT m.rowid FROM %[1]s m WHERE m.%[2]s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %[3]s v WHERE v.rowid = m.%[2]s)",
			k.s.primary, col.name, col.table))
		if err != nil {
			return err
		}
		for _, r := range rows {
			k.report("dangling reference", "manifest", r, "column", col.name)
		}
	}
	return nil
}

func (k *checker) orphanValues() error {
	for _, t := range k.s.valueTables() {
		orphans, err := t.Orphans(k.q, k.s.refs(t.Name)...)
		if err != nil {
			return err
		}
		for _, r := range orphans {
			k.report("orphaned value", "table", t.Name, "row", r)
		}
		if k.fix && len(orphans) > 0 {
			if err := t.Delete(k.q, orphans); err != nil {
				return err
			}
			k.fixed += len(orphans)
		}
	}
	return nil
}

func (k *checker) multiValues() error {
	for _, f := range k.s.multiFields() {
		dangling, err := f.table.DanglingMaps(k.q, k.s.primary)
		if err != nil {
			return err
		}
		for _, m := range dangling {
			k.report("dangling association", "table", f.table.MapName(), "manifest", m.Manifest, "value", m.Value)
		}
		if k.fix && len(dangling) > 0 {
			if err := f.table.DeleteMaps(k.q, dangling); err != nil {
				return err
			}
			k.fixed += len(dangling)
		}

		orphans, err := f.table.Orphans(k.q)
		if err != nil {
			return err
		}
		for _, r := range orphans {
			k.report("orphaned value", "table", f.table.Name, "row", r)
		}
		if k.fix && len(orphans) > 0 {
			if err := f.table.DeleteValues(k.q, orphans); err != nil {
				return err
			}
			k.fixed += len(orphans)
		}
	}
	return nil
}

// scopes finds scoped values associated with a manifest outside their
// scope. These are reported only.
func (k *checker) scopes() error {
	owner := "m.rowid"
	if k.s.foldsMultiValueAcrossVersions {
		owner = "m.id"
	}
	for _, f := range k.s.multiFields() {
		if !f.table.Scoped {
			continue
		}
		rows, err := store.Int64s(k.q, fmt.Sprintf(`SELECT mp.manifest FROM %[1]s mp
			JOIN %[2]s v ON v.rowid = mp.%[3]s
			JOIN %[4]s m ON m.rowid = mp.manifest
			WHERE v.scope <> %[5]s`, f.table.MapName(), f.table.Name, f.table.Column, k.s.primary, owner))
		if err != nil {
			return err
		}
		for _, r := range rows {
			k.report("scope mismatch", "table", f.table.Name, "manifest", r)
		}
	}
	return nil
}

func (k *checker) dependencies() error {
	if !k.s.dependencies {
		return nil
	}
	rows, err := k.q.Query(fmt.Sprintf(`SELECT d.manifest, d.package_id FROM dependencies d
		WHERE NOT EXISTS (SELECT 1 FROM %s m WHERE m.rowid = d.manifest)
		   OR NOT EXISTS (SELECT 1 FROM ids i WHERE i.rowid = d.package_id)
		   OR (d.min_version IS NOT NULL AND NOT EXISTS (SELECT 1 FROM versions v WHERE v.rowid = d.min_version))`,
		k.s.primary))
	if err != nil {
		return err
	}
	var bad [][2]int64
	for rows.Next() {
		var r [2]int64
		if err := rows.Scan(&r[0], &r[1]); err != nil {
			rows.Close()
			return err
		}
		bad = append(bad, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range bad {
		k.report("dangling dependency", "manifest", r[0], "package", r[1])
		if k.fix {
			if _, err := k.q.Exec("DELETE FROM dependencies WHERE manifest = ? AND package_id = ?", r[0], r[1]); err != nil {
				return err
			}
			k.fixed++
		}
	}
	return nil
}

// unmetBounds finds dependencies that no stored version of the required
// package satisfies. These are reported only.
func (k *checker) unmetBounds() error {
	if !k.s.dependencies {
		return nil
	}
	type bound struct {
		manifest int64
		pkg      string
		min      string
	}
	rows, err := k.q.Query(fmt.Sprintf(`SELECT d.manifest, i.id, COALESCE(v.version, '') FROM dependencies d
		JOIN %s m ON m.rowid = d.manifest
		JOIN ids i ON i.rowid = d.package_id
		LEFT JOIN versions v ON v.rowid = d.min_version
		ORDER BY d.manifest`, k.s.primary))
	if err != nil {
		return err
	}
	var bounds []bound
	for rows.Next() {
		var b bound
		if err := rows.Scan(&b.manifest, &b.pkg, &b.min); err != nil {
			rows.Close()
			return err
		}
		bounds = append(bounds, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	src := graphSource{q: k.q, s: k.s}
	for _, b := range bounds {
		nodes, _, err := src.Versions(b.pkg)
		if err != nil {
			return err
		}
		met := false
		for _, n := range nodes {
			if b.min == "" || version.Compare(n.Version, b.min) >= 0 {
				met = true
				break
			}
		}
		if !met {
			k.report("unmet dependency", "manifest", b.manifest, "package", b.pkg, "min_version", b.min)
		}
	}
	return nil
}

func (k *checker) metadata() error {
	if !k.s.metadata {
		return nil
	}
	rows, err := store.Int64s(k.q, fmt.Sprintf(
		"SELECT DISTINCT md.manifest FROM manifest_metadata md WHERE NOT EXISTS (SELECT 1 FROM %s m WHERE m.rowid = md.manifest)",
		k.s.primary))
	if err != nil {
		return err
	}
	for _, r := range rows {
		k.report("dangling metadata", "manifest", r)
		if k.fix {
			if _, err := k.q.Exec("DELETE FROM manifest_metadata WHERE manifest = ?", r); err != nil {
				return err
			}
			k.fixed++
		}
	}
	return nil
}

func (k *checker) paths() error {
	bad, err := pathParts.BadParents(k.q)
	if err != nil {
		return err
	}
	for _, r := range bad {
		k.report("missing path parent", "pathpart", r)
	}

	orphans, err := pathParts.Orphans(k.q, k.s.refs("pathparts")...)
	if err != nil {
		return err
	}
	for _, r := range orphans {
		k.report("orphaned path part", "pathpart", r)
		if k.fix {
			if err := pathParts.Prune(k.q, r, k.s.refs("pathparts")...); err != nil {
				return err
			}
			k.fixed++
		}
	}
	return nil
}

// embeddedNuls finds indexed text containing NUL characters. These are
// reported only.
func (k *checker) embeddedNuls() error {
	type column struct{ table, name string }
	var cols []column
	for _, t := range k.s.valueTables() {
		cols = append(cols, column{t.Name, t.Column})
	}
	for _, f := range k.s.multiFields() {
		cols = append(cols, column{f.table.Name, f.table.Column})
	}
	cols = append(cols, column{"pathparts", "pathpart"})

	for _, col := range cols {
		rows, err := store.Int64s(k.q, fmt.Sprintf(
			"SELECT rowid FROM %s WHERE instr(CAST(%s AS BLOB), X'00') > 0", col.table, col.name))
		if err != nil {
			return err
		}
		for _, r := range rows {
			k.report("embedded NUL", "table", col.table, "row", r)
		}
	}
	return nil
}
