package catalog

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/manifest"
	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

type dependency struct {
	id         string
	minVersion string
}

// record is everything a layout indexes for one manifest. Two records are
// equal exactly when writing one over the other changes nothing.
type record struct {
	id      string
	version string
	channel string
	name    string
	moniker string
	path    string
	hash    []byte
	arpMin  string
	arpMax  string
	multi   map[MultiProperty][]string
	deps    []dependency
}

// sortedSet drops blanks and duplicates and sorts. Empty input yields nil.
func sortedSet(values []string) []string {
	out := manifest.Unique(values)
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func sortDependencies(deps []dependency) {
	sort.Slice(deps, func(i, j int) bool {
		return strings.ToLower(deps[i].id) < strings.ToLower(deps[j].id)
	})
}

func (s *schema) newRecord(m *manifest.Manifest, path string) (*record, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manifest", catalogerr.ErrInvalidArgument)
	}
	r := &record{
		id:      strings.TrimSpace(m.ID),
		version: strings.TrimSpace(m.Version),
		moniker: m.Moniker,
		multi:   make(map[MultiProperty][]string),
	}
	if r.id == "" || r.version == "" {
		return nil, fmt.Errorf("%w: manifest needs both an id and a version", catalogerr.ErrInvalidArgument)
	}
	if s.channels {
		r.channel = strings.TrimSpace(m.Channel)
	}
	if names := m.Names(); len(names) > 0 {
		r.name = names[0]
	}
	if path != "" {
		parts, err := store.SplitPath(path)
		if err != nil {
			return nil, err
		}
		r.path = strings.Join(parts, "/")
	}
	if s.hash && len(m.StreamHash) > 0 {
		r.hash = append([]byte(nil), m.StreamHash...)
	}
	if s.arp {
		if rng := version.RangeOf(m.ArpDisplayVersions()); !rng.IsEmpty() {
			r.arpMin, r.arpMax = rng.Min.String(), rng.Max.String()
		}
	}

	for _, f := range s.multiFields() {
		var values []string
		switch f.property {
		case MultiPropertyTag:
			values = m.Tags()
		case MultiPropertyCommand:
			values = m.Commands()
		case MultiPropertyPackageFamilyName:
			values = m.PackageFamilyNames()
		case MultiPropertyProductCode:
			values = m.ProductCodes()
		case MultiPropertyUpgradeCode:
			values = m.UpgradeCodes()
		case MultiPropertyNormalizedName:
			for _, n := range m.Names() {
				values = append(values, normalize.Name(n))
			}
			for _, e := range m.ArpEntries() {
				values = append(values, normalize.Name(e.DisplayName))
			}
		case MultiPropertyNormalizedPublisher:
			for _, p := range m.Publishers() {
				values = append(values, normalize.Publisher(p))
			}
			for _, e := range m.ArpEntries() {
				values = append(values, normalize.Publisher(e.Publisher))
			}
		case MultiPropertyNormalizedNamePublisher:
			values = namePublisherPairs(m)
		}
		if set := sortedSet(values); set != nil {
			r.multi[f.property] = set
		}
	}

	if s.dependencies {
		for _, d := range m.PackageDependencies() {
			r.deps = append(r.deps, dependency{id: d.ID, minVersion: strings.TrimSpace(d.MinVersion)})
		}
		sortDependencies(r.deps)
	}
	return r, nil
}

func (r *record) equal(o *record) bool {
	if r.id != o.id || r.version != o.version || r.channel != o.channel ||
		r.name != o.name || r.moniker != o.moniker || r.path != o.path ||
		r.arpMin != o.arpMin || r.arpMax != o.arpMax || !bytes.Equal(r.hash, o.hash) {
		return false
	}
	if len(r.multi) != len(o.multi) {
		return false
	}
	for p, values := range r.multi {
		other := o.multi[p]
		if len(values) != len(other) {
			return false
		}
		for i := range values {
			if values[i] != other[i] {
				return false
			}
		}
	}
	if len(r.deps) != len(o.deps) {
		return false
	}
	for i := range r.deps {
		if !strings.EqualFold(r.deps[i].id, o.deps[i].id) || r.deps[i].minVersion != o.deps[i].minVersion {
			return false
		}
	}
	return true
}

// row is a primary table row: rowids into the value tables.
type row struct {
	rowid    int64
	id       int64
	name     int64
	moniker  sql.NullInt64
	version  int64
	channel  int64
	pathpart sql.NullInt64
	hash     []byte
	arpMin   sql.NullInt64
	arpMax   sql.NullInt64
}

func (s *schema) columns() []string {
	cols := []string{"id", "name", "moniker", "version"}
	if s.channels {
		cols = append(cols, "channel")
	}
	cols = append(cols, "pathpart")
	if s.hash {
		cols = append(cols, "hash")
	}
	if s.arp {
		cols = append(cols, "arp_min_version", "arp_max_version")
	}
	return cols
}

// fields returns pointers to r's fields in column order.
func (r *row) fields(s *schema) []any {
	f := []any{&r.id, &r.name, &r.moniker, &r.version}
	if s.channels {
		f = append(f, &r.channel)
	}
	f = append(f, &r.pathpart)
	if s.hash {
		f = append(f, &r.hash)
	}
	if s.arp {
		f = append(f, &r.arpMin, &r.arpMax)
	}
	return f
}

func (r *row) values(s *schema) []any {
	v := []any{r.id, r.name, r.moniker, r.version}
	if s.channels {
		v = append(v, r.channel)
	}
	v = append(v, r.pathpart)
	if s.hash {
		v = append(v, r.hash)
	}
	if s.arp {
		v = append(v, r.arpMin, r.arpMax)
	}
	return v
}

func (s *schema) readRow(q store.Querier, rowid int64) (*row, error) {
	r := &row{rowid: rowid}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", strings.Join(s.columns(), ", "), s.primary)
	err := q.QueryRow(query, rowid).Scan(r.fields(s)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: manifest %d", catalogerr.ErrNotFound, rowid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %d: %w", rowid, err)
	}
	return r, nil
}

// writeRow inserts r when r.rowid is zero and overwrites the row otherwise.
func (s *schema) writeRow(q store.Querier, r *row) (int64, error) {
	cols := s.columns()
	if r.rowid == 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		res, err := q.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.primary, strings.Join(cols, ", "), marks), r.values(s)...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert manifest: %w", err)
		}
		return res.LastInsertId()
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	args := append(r.values(s), r.rowid)
	if _, err := q.Exec(fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", s.primary, strings.Join(sets, ", ")), args...); err != nil {
		return 0, fmt.Errorf("failed to update manifest %d: %w", r.rowid, err)
	}
	return r.rowid, nil
}

func nullID(v int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: valid}
}

// intern resolves rec's scalar values to value rows, inserting missing ones.
func (s *schema) intern(q store.Querier, rec *record) (*row, error) {
	var (
		r   row
		err error
	)
	if r.id, err = idTable.Ensure(q, rec.id); err != nil {
		return nil, err
	}
	if r.name, err = nameTable.Ensure(q, rec.name); err != nil {
		return nil, err
	}
	if rec.moniker != "" {
		id, err := monikerTable.Ensure(q, rec.moniker)
		if err != nil {
			return nil, err
		}
		r.moniker = nullID(id, true)
	}
	if r.version, err = versionTable.Ensure(q, rec.version); err != nil {
		return nil, err
	}
	if s.channels {
		if r.channel, err = channelTable.Ensure(q, rec.channel); err != nil {
			return nil, err
		}
	}
	if rec.path != "" {
		id, err := pathParts.Ensure(q, rec.path)
		if err != nil {
			return nil, err
		}
		r.pathpart = nullID(id, true)
	}
	if s.hash {
		r.hash = rec.hash
	}
	if s.arp && rec.arpMin != "" {
		lo, err := versionTable.Ensure(q, rec.arpMin)
		if err != nil {
			return nil, err
		}
		hi, err := versionTable.Ensure(q, rec.arpMax)
		if err != nil {
			return nil, err
		}
		r.arpMin, r.arpMax = nullID(lo, true), nullID(hi, true)
	}
	return &r, nil
}

// readRecord rebuilds the record stored at rowid.
func (s *schema) readRecord(q store.Querier, rowid int64) (*record, *row, error) {
	r, err := s.readRow(q, rowid)
	if err != nil {
		return nil, nil, err
	}
	rec := &record{multi: make(map[MultiProperty][]string), hash: r.hash}
	if len(rec.hash) == 0 {
		rec.hash = nil
	}

	if rec.id, err = idTable.Value(q, r.id); err != nil {
		return nil, nil, err
	}
	if rec.name, err = nameTable.Value(q, r.name); err != nil {
		return nil, nil, err
	}
	if r.moniker.Valid {
		if rec.moniker, err = monikerTable.Value(q, r.moniker.Int64); err != nil {
			return nil, nil, err
		}
	}
	if rec.version, err = versionTable.Value(q, r.version); err != nil {
		return nil, nil, err
	}
	if s.channels {
		if rec.channel, err = channelTable.Value(q, r.channel); err != nil {
			return nil, nil, err
		}
	}
	if r.pathpart.Valid {
		if rec.path, err = pathParts.Path(q, r.pathpart.Int64); err != nil {
			return nil, nil, err
		}
	}
	if r.arpMin.Valid {
		if rec.arpMin, err = versionTable.Value(q, r.arpMin.Int64); err != nil {
			return nil, nil, err
		}
	}
	if r.arpMax.Valid {
		if rec.arpMax, err = versionTable.Value(q, r.arpMax.Int64); err != nil {
			return nil, nil, err
		}
	}

	for _, f := range s.multiFields() {
		values, err := f.table.Values(q, rowid)
		if err != nil {
			return nil, nil, err
		}
		if len(values) > 0 {
			rec.multi[f.property] = values
		}
	}

	if s.dependencies {
		if rec.deps, err = readDependencies(q, rowid); err != nil {
			return nil, nil, err
		}
	}
	return rec, r, nil
}

func readDependencies(q store.Querier, manifest int64) ([]dependency, error) {
	rows, err := q.Query(`SELECT i.id, COALESCE(v.version, '') FROM dependencies d
		JOIN ids i ON i.rowid = d.package_id
		LEFT JOIN versions v ON v.rowid = d.min_version
		WHERE d.manifest = ?`, manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to read dependencies of manifest %d: %w", manifest, err)
	}
	defer rows.Close()

	var deps []dependency
	for rows.Next() {
		var d dependency
		if err := rows.Scan(&d.id, &d.minVersion); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortDependencies(deps)
	return deps, nil
}

// depRow is a dependencies row as stored.
type depRow struct {
	pkg int64
	min sql.NullInt64
}

func dependencyRows(q store.Querier, manifest int64) ([]depRow, error) {
	rows, err := q.Query("SELECT package_id, min_version FROM dependencies WHERE manifest = ?", manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to read dependencies of manifest %d: %w", manifest, err)
	}
	defer rows.Close()

	var out []depRow
	for rows.Next() {
		var d depRow
		if err := rows.Scan(&d.pkg, &d.min); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// setDependencies replaces the dependency rows of manifest and returns the
// rows it removed.
func setDependencies(q store.Querier, manifest int64, deps []dependency) ([]depRow, error) {
	old, err := dependencyRows(q, manifest)
	if err != nil {
		return nil, err
	}
	if _, err := q.Exec("DELETE FROM dependencies WHERE manifest = ?", manifest); err != nil {
		return nil, fmt.Errorf("failed to clear dependencies of manifest %d: %w", manifest, err)
	}

	for _, d := range deps {
		pkg, ok, err := idTable.Find(q, d.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &catalogerr.DependencyError{Kind: catalogerr.ErrMissingPackage, Package: d.id}
		}
		var minVersion sql.NullInt64
		if d.minVersion != "" {
			id, err := versionTable.Ensure(q, d.minVersion)
			if err != nil {
				return nil, err
			}
			minVersion = nullID(id, true)
		}
		if _, err := q.Exec("INSERT INTO dependencies (manifest, package_id, min_version) VALUES (?, ?, ?)", manifest, pkg, minVersion); err != nil {
			return nil, fmt.Errorf("failed to insert dependency on %s: %w", d.id, err)
		}
	}
	return old, nil
}

// prune drops every value row of old, and of the removed dependency rows,
// that nothing references any more.
func (s *schema) prune(q store.Querier, old *row, deps []depRow) error {
	type value struct {
		table store.ValueTable
		id    int64
	}
	values := []value{
		{idTable, old.id},
		{nameTable, old.name},
		{versionTable, old.version},
	}
	if old.moniker.Valid {
		values = append(values, value{monikerTable, old.moniker.Int64})
	}
	if s.channels {
		values = append(values, value{channelTable, old.channel})
	}
	if old.arpMin.Valid {
		values = append(values, value{versionTable, old.arpMin.Int64})
	}
	if old.arpMax.Valid {
		values = append(values, value{versionTable, old.arpMax.Int64})
	}
	for _, d := range deps {
		values = append(values, value{idTable, d.pkg})
		if d.min.Valid {
			values = append(values, value{versionTable, d.min.Int64})
		}
	}

	for _, v := range values {
		if _, err := v.table.Prune(q, v.id, s.refs(v.table.Name)...); err != nil {
			return err
		}
	}
	if old.pathpart.Valid {
		if err := pathParts.Prune(q, old.pathpart.Int64, s.refs("pathparts")...); err != nil {
			return err
		}
	}
	return nil
}

// findKey returns the row holding the manifest key. Ids, versions and
// channels all compare case-insensitively. Single-version layouts key by id
// alone.
func (s *schema) findKey(q store.Querier, id, ver, channel string) (int64, bool, error) {
	var (
		rowid int64
		ok    bool
		err   error
	)
	if s.channels {
		rowid, ok, err = store.OptionalInt64(q, `SELECT m.rowid FROM manifest m
			JOIN ids i ON i.rowid = m.id
			JOIN versions v ON v.rowid = m.version
			JOIN channels c ON c.rowid = m.channel
			WHERE i.id = ? AND v.version = ? COLLATE NOCASE AND c.channel = ? COLLATE NOCASE`, id, ver, channel)
	} else {
		rowid, ok, err = store.OptionalInt64(q, fmt.Sprintf(`SELECT m.rowid FROM %s m
			JOIN ids i ON i.rowid = m.id WHERE i.id = ?`, s.primary), id)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s %s: %w", id, ver, err)
	}
	return rowid, ok, nil
}

// findPath returns the row whose relative path is path.
func (s *schema) findPath(q store.Querier, path string) (int64, bool, error) {
	part, ok, err := pathParts.Find(q, path)
	if err != nil || !ok {
		return 0, false, err
	}
	rowid, ok, err := store.OptionalInt64(q, fmt.Sprintf("SELECT rowid FROM %s WHERE pathpart = ?", s.primary), part)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up path %s: %w", path, err)
	}
	return rowid, ok, nil
}

const pairSeparator = "|"

// namePublisherPairs returns the normalized name and publisher of every
// localization and ARP entry, joined as one key. A localization without a
// publisher takes the default localization's.
func namePublisherPairs(m *manifest.Manifest) []string {
	var out []string
	add := func(name, publisher string) {
		if n := normalize.Name(name); n != "" {
			out = append(out, n+pairSeparator+normalize.Publisher(publisher))
		}
	}
	def := m.DefaultLocalization
	add(def.PackageName, def.Publisher)
	for _, l := range m.Localizations {
		publisher := l.Publisher
		if publisher == "" {
			publisher = def.Publisher
		}
		name := l.PackageName
		if name == "" {
			name = def.PackageName
		}
		add(name, publisher)
	}
	for _, e := range m.ArpEntries() {
		add(e.DisplayName, e.Publisher)
	}
	return out
}

func splitPair(pair string) (name, publisher string) {
	name, publisher, _ = strings.Cut(pair, pairSeparator)
	return name, publisher
}
