package catalog

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// migration upgrades a catalog from one layout to the next.
type migration struct {
	to    SchemaVersion
	apply func(c *Catalog, q store.Querier, from, to *schema) error
}

// migrations holds every supported transition, keyed by source version.
// Anything not reachable through this table is refused.
var migrations = map[SchemaVersion]migration{
	{1, 0}: {to: SchemaVersion{1, 1}, apply: addInstallerCodes},
	{1, 1}: {to: SchemaVersion{1, 2}, apply: addNormalizedNames},
	{1, 2}: {to: SchemaVersion{1, 3}, apply: addManifestHash},
	{1, 3}: {to: SchemaVersion{1, 4}, apply: addDependencies},
	{1, 4}: {to: SchemaVersion{1, 5}, apply: addArpVersions},
	{1, 5}: {to: SchemaVersion{1, 6}, apply: addUpgradeCodes},
	{1, 6}: {to: SchemaVersion{1, 7}, apply: foldInstallerCodes},
	{1, 7}: {to: SchemaVersion{2, 0}, apply: collapseToPackages},
}

// MigrateTo upgrades the catalog to target. It returns false without
// touching the database when no chain of supported migrations leads there,
// which includes every older version. All steps commit together.
func (c *Catalog) MigrateTo(target SchemaVersion) (bool, error) {
	if err := c.writable(); err != nil {
		return false, err
	}
	if target == c.schema.version {
		return true, nil
	}

	var steps [][2]*schema
	for cur := c.schema.version; cur != target; {
		m, ok := migrations[cur]
		if !ok || target.Less(m.to) {
			c.logger.Debug("no migration path", "from", c.schema.version, "to", target)
			return false, nil
		}
		from, _ := schemaFor(cur)
		to, _ := schemaFor(m.to)
		steps = append(steps, [2]*schema{from, to})
		cur = m.to
	}

	err := c.store.WithTx(func(tx *sql.Tx) error {
		for _, step := range steps {
			from, to := step[0], step[1]
			c.logger.Debug("migrating", "from", from.version, "to", to.version)
			if err := migrations[from.version].apply(c, tx, from, to); err != nil {
				return fmt.Errorf("failed to migrate %s to %s: %w", from.version, to.version, err)
			}
			if err := writeSchemaVersion(tx, to.version); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	c.schema, _ = schemaFor(target)
	c.logger.Info("migrated catalog", "version", target)
	return true, nil
}

func addInstallerCodes(_ *Catalog, q store.Querier, _, _ *schema) error {
	if err := pfnTable.Create(q); err != nil {
		return err
	}
	if err := productCodeTable.Create(q); err != nil {
		return err
	}
	return execAll(q, createManifestMetadata)
}

// addNormalizedNames creates the normalized tables and fills names from the
// stored package names. Publishers were never stored, so publishers and
// name/publisher pairs stay empty until a manifest is updated.
func addNormalizedNames(_ *Catalog, q store.Querier, from, _ *schema) error {
	if err := normNameTable.Create(q); err != nil {
		return err
	}
	if err := normPublisherTable.Create(q); err != nil {
		return err
	}
	if err := normPairTable.Create(q); err != nil {
		return err
	}

	type named struct {
		rowid int64
		name  string
	}
	rows, err := q.Query(fmt.Sprintf("SELECT m.rowid, n.name FROM %s m JOIN names n ON n.rowid = m.name", from.primary))
	if err != nil {
		return err
	}
	var all []named
	for rows.Next() {
		var n named
		if err := rows.Scan(&n.rowid, &n.name); err != nil {
			rows.Close()
			return err
		}
		all = append(all, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, n := range all {
		if err := normNameTable.Set(q, n.rowid, 0, sortedSet([]string{normalize.Name(n.name)})); err != nil {
			return err
		}
	}
	return nil
}

func addManifestHash(_ *Catalog, q store.Querier, from, _ *schema) error {
	return execAll(q, fmt.Sprintf("ALTER TABLE %s ADD COLUMN hash BLOB", from.primary))
}

func addDependencies(_ *Catalog, q store.Querier, _, _ *schema) error {
	return execAll(q, createDependencies)
}

func addArpVersions(_ *Catalog, q store.Querier, from, _ *schema) error {
	return execAll(q,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN arp_min_version INT", from.primary),
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN arp_max_version INT", from.primary),
	)
}

func addUpgradeCodes(_ *Catalog, q store.Querier, _, _ *schema) error {
	return upgradeCodeTable.Create(q)
}

// foldInstallerCodes moves scoped values from manifest scope to package
// scope, merging equal values across versions of a package.
func foldInstallerCodes(_ *Catalog, q store.Querier, from, to *schema) error {
	type owned struct {
		rowid, pkg int64
	}
	rows, err := q.Query(fmt.Sprintf("SELECT rowid, id FROM %s ORDER BY rowid", from.primary))
	if err != nil {
		return err
	}
	var manifests []owned
	for rows.Next() {
		var o owned
		if err := rows.Scan(&o.rowid, &o.pkg); err != nil {
			rows.Close()
			return err
		}
		manifests = append(manifests, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range []store.MultiValueTable{pfnTable, productCodeTable, upgradeCodeTable} {
		values := make(map[int64][]string, len(manifests))
		for _, m := range manifests {
			v, err := t.Values(q, m.rowid)
			if err != nil {
				return err
			}
			values[m.rowid] = v
		}
		for _, m := range manifests {
			if err := t.Remove(q, m.rowid); err != nil {
				return err
			}
		}
		for _, m := range manifests {
			if err := t.Set(q, m.rowid, to.scope(m.rowid, m.pkg), values[m.rowid]); err != nil {
				return err
			}
		}
	}
	return nil
}

// collapseToPackages rebuilds the catalog with one row per package. Each
// package keeps its newest stable version, or its newest version of any
// channel when it has no stable one.
func collapseToPackages(c *Catalog, q store.Querier, from, to *schema) error {
	type candidate struct {
		rowid   int64
		id      string
		version string
		channel string
	}
	rows, err := q.Query(`SELECT m.rowid, i.id, v.version, ch.channel FROM manifest m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		JOIN channels ch ON ch.rowid = m.channel`)
	if err != nil {
		return err
	}
	chosen := make(map[string]candidate)
	for rows.Next() {
		var cand candidate
		if err := rows.Scan(&cand.rowid, &cand.id, &cand.version, &cand.channel); err != nil {
			rows.Close()
			return err
		}
		key := strings.ToLower(cand.id)
		cur, ok := chosen[key]
		switch {
		case !ok:
			chosen[key] = cand
		case (cand.channel == "") != (cur.channel == ""):
			if cand.channel == "" {
				chosen[key] = cand
			}
		case version.Compare(cand.version, cur.version) > 0:
			chosen[key] = cand
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	type kept struct {
		rec      *record
		deps     []dependency
		metadata map[string]string
	}
	keys := make([]string, 0, len(chosen))
	for k := range chosen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	packages := make([]kept, 0, len(keys))
	for _, k := range keys {
		rowid := chosen[k].rowid
		rec, _, err := from.readRecord(q, rowid)
		if err != nil {
			return err
		}
		md, err := readMetadata(q, rowid)
		if err != nil {
			return err
		}
		deps := rec.deps
		rec.deps = nil
		rec.channel = ""
		packages = append(packages, kept{rec: rec, deps: deps, metadata: md})
	}

	if err := dropTables(q, from); err != nil {
		return err
	}
	if err := to.create(q); err != nil {
		return err
	}

	rowids := make([]int64, len(packages))
	for i, p := range packages {
		if rowids[i], err = to.insert(q, p.rec); err != nil {
			return err
		}
		for name, value := range p.metadata {
			if _, err := q.Exec("INSERT INTO manifest_metadata (manifest, metadata, value) VALUES (?, ?, ?)", rowids[i], name, value); err != nil {
				return err
			}
		}
	}

	keptVersion := make(map[string]string, len(packages))
	for _, p := range packages {
		keptVersion[strings.ToLower(p.rec.id)] = p.rec.version
	}

	now := c.now().UnixMilli()
	for i, p := range packages {
		var deps []dependency
		for _, d := range p.deps {
			if _, ok, err := idTable.Find(q, d.id); err != nil {
				return err
			} else if !ok {
				c.logger.Warn("dropping dependency on missing package", "package", p.rec.id, "dependency", d.id)
				continue
			}
			if d.minVersion != "" && version.Compare(keptVersion[strings.ToLower(d.id)], d.minVersion) < 0 {
				c.logger.Warn("dependency bound not met after collapsing versions",
					"package", p.rec.id, "dependency", d.id, "min_version", d.minVersion, "kept", keptVersion[strings.ToLower(d.id)])
			}
			deps = append(deps, d)
		}
		if _, err := setDependencies(q, rowids[i], deps); err != nil {
			return err
		}
		if err := appendTracking(q, p.rec.id, false, now); err != nil {
			return err
		}
	}
	return nil
}

func readMetadata(q store.Querier, rowid int64) (map[string]string, error) {
	rows, err := q.Query("SELECT metadata, value FROM manifest_metadata WHERE manifest = ?", rowid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	md := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		md[name] = value
	}
	return md, rows.Err()
}

func dropTables(q store.Querier, s *schema) error {
	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", s.primary)}
	if s.metadata {
		stmts = append(stmts, "DROP TABLE IF EXISTS manifest_metadata")
	}
	if s.dependencies {
		stmts = append(stmts, "DROP TABLE IF EXISTS dependencies")
	}
	if err := execAll(q, stmts...); err != nil {
		return err
	}
	for _, f := range s.multiFields() {
		if err := f.table.Drop(q); err != nil {
			return err
		}
	}
	for _, t := range s.valueTables() {
		if err := t.Drop(q); err != nil {
			return err
		}
	}
	return pathParts.Drop(q)
}
