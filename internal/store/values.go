package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Reference names a column in another table that holds rowids of a value
// table. A value row is only pruned when no reference points at it.
type Reference struct {
	Table  string
	Column string
}

func notReferenced(refs []Reference) (string, int) {
	var b strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&b, " AND NOT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", r.Table, r.Column)
	}
	return b.String(), len(refs)
}

// ValueTable interns one string column. Every distinct value is stored once
// and referenced by rowid.
type ValueTable struct {
	Name   string
	Column string
	NoCase bool
}

// Create creates the table and its unique index.
func (t ValueTable) Create(q Querier) error {
	collate := ""
	if t.NoCase {
		collate = " COLLATE NOCASE"
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (rowid INTEGER PRIMARY KEY, %s TEXT NOT NULL%s)", t.Name, t.Column, collate),
		fmt.Sprintf("CREATE UNIQUE INDEX %s_pkindex ON %s(%s)", t.Name, t.Name, t.Column),
	}
	for _, stmt := range stmts {
		if _, err := q.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.Name, err)
		}
	}
	return nil
}

// Drop removes the table.
func (t ValueTable) Drop(q Querier) error {
	if _, err := q.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t.Name)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", t.Name, err)
	}
	return nil
}

// Find returns the rowid holding value.
func (t ValueTable) Find(q Querier, value string) (int64, bool, error) {
	id, ok, err := OptionalInt64(q, fmt.Sprintf("SELECT rowid FROM %s WHERE %s = ?", t.Name, t.Column), value)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s %q: %w", t.Column, value, err)
	}
	return id, ok, nil
}

// Ensure returns the rowid holding value, inserting it when absent.
func (t ValueTable) Ensure(q Querier, value string) (int64, error) {
	id, ok, err := t.Find(q, value)
	if err != nil || ok {
		return id, err
	}
	res, err := q.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", t.Name, t.Column), value)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s %q: %w", t.Column, value, err)
	}
	return res.LastInsertId()
}

// Value returns the string stored at rowid.
func (t ValueTable) Value(q Querier, rowid int64) (string, error) {
	var v string
	err := q.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", t.Column, t.Name), rowid).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s row %d does not exist", t.Name, rowid)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s row %d: %w", t.Name, rowid, err)
	}
	return v, nil
}

// SetValue overwrites the string stored at rowid.
func (t ValueTable) SetValue(q Querier, rowid int64, value string) error {
	if _, err := q.Exec(fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", t.Name, t.Column), value, rowid); err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", t.Name, rowid, err)
	}
	return nil
}

// Prune deletes the row at rowid when none of refs point at it. It reports
// whether the row was deleted.
func (t ValueTable) Prune(q Querier, rowid int64, refs ...Reference) (bool, error) {
	cond, n := notReferenced(refs)
	args := make([]any, 0, n+1)
	args = append(args, rowid)
	for i := 0; i < n; i++ {
		args = append(args, rowid)
	}
	res, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ?%s", t.Name, cond), args...)
	if err != nil {
		return false, fmt.Errorf("failed to prune %s row %d: %w", t.Name, rowid, err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// Orphans lists the rows no reference points at.
func (t ValueTable) Orphans(q Querier, refs ...Reference) ([]int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT v.rowid FROM %s v WHERE 1 = 1", t.Name)
	for _, r := range refs {
		fmt.Fprintf(&b, " AND NOT EXISTS (SELECT 1 FROM %s WHERE %s = v.rowid)", r.Table, r.Column)
	}
	b.WriteString(" ORDER BY v.rowid")
	return Int64s(q, b.String())
}

// Delete removes the rows at rowids unconditionally.
func (t ValueTable) Delete(q Querier, rowids []int64) error {
	for _, id := range rowids {
		if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", t.Name), id); err != nil {
			return fmt.Errorf("failed to delete %s row %d: %w", t.Name, id, err)
		}
	}
	return nil
}

// MultiValueTable stores a set of strings per manifest: a value table plus
// an association table named Name + "_map". When Scoped is set each value
// row also carries a scope, so equal strings in different scopes are
// distinct rows.
type MultiValueTable struct {
	Name   string
	Column string
	Scoped bool
}

// MapName returns the association table name.
func (t MultiValueTable) MapName() string {
	return t.Name + "_map"
}

// Create creates the value table, the association table, and their indexes.
func (t MultiValueTable) Create(q Querier) error {
	var stmts []string
	if t.Scoped {
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE %s (rowid INTEGER PRIMARY KEY, %s TEXT NOT NULL, scope INT NOT NULL)", t.Name, t.Column),
			fmt.Sprintf("CREATE UNIQUE INDEX %s_pkindex ON %s(%s, scope)", t.Name, t.Name, t.Column),
		)
	} else {
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE %s (rowid INTEGER PRIMARY KEY, %s TEXT NOT NULL)", t.Name, t.Column),
			fmt.Sprintf("CREATE UNIQUE INDEX %s_pkindex ON %s(%s)", t.Name, t.Name, t.Column),
		)
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE TABLE %s (manifest INT NOT NULL, %s INT NOT NULL, PRIMARY KEY(%s, manifest)) WITHOUT ROWID", t.MapName(), t.Column, t.Column),
		fmt.Sprintf("CREATE INDEX %s_index ON %s(manifest)", t.MapName(), t.MapName()),
	)
	for _, stmt := range stmts {
		if _, err := q.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.Name, err)
		}
	}
	return nil
}

// Drop removes both tables.
func (t MultiValueTable) Drop(q Querier) error {
	for _, name := range []string{t.MapName(), t.Name} {
		if _, err := q.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}
	return nil
}

// Values returns the values associated with manifest, sorted.
func (t MultiValueTable) Values(q Querier, manifest int64) ([]string, error) {
	values, err := Strings(q, fmt.Sprintf(
		"SELECT DISTINCT v.%s FROM %s m JOIN %s v ON v.rowid = m.%s WHERE m.manifest = ? ORDER BY v.%s",
		t.Column, t.MapName(), t.Name, t.Column, t.Column), manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s for manifest %d: %w", t.Name, manifest, err)
	}
	return values, nil
}

func (t MultiValueTable) ensure(q Querier, value string, scope int64) (int64, error) {
	var (
		id  int64
		ok  bool
		err error
	)
	if t.Scoped {
		id, ok, err = OptionalInt64(q, fmt.Sprintf("SELECT rowid FROM %s WHERE %s = ? AND scope = ?", t.Name, t.Column), value, scope)
	} else {
		id, ok, err = OptionalInt64(q, fmt.Sprintf("SELECT rowid FROM %s WHERE %s = ?", t.Name, t.Column), value)
	}
	if err != nil || ok {
		return id, err
	}

	var res sql.Result
	if t.Scoped {
		res, err = q.Exec(fmt.Sprintf("INSERT INTO %s (%s, scope) VALUES (?, ?)", t.Name, t.Column), value, scope)
	} else {
		res, err = q.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", t.Name, t.Column), value)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s %q: %w", t.Column, value, err)
	}
	return res.LastInsertId()
}

// Set makes the values associated with manifest exactly values. scope is
// ignored for unscoped tables. Value rows left without any association are
// deleted.
func (t MultiValueTable) Set(q Querier, manifest, scope int64, values []string) error {
	current, err := Int64s(q, fmt.Sprintf("SELECT %s FROM %s WHERE manifest = ?", t.Column, t.MapName()), manifest)
	if err != nil {
		return fmt.Errorf("failed to read %s for manifest %d: %w", t.Name, manifest, err)
	}

	want := make(map[int64]bool, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		id, err := t.ensure(q, v, scope)
		if err != nil {
			return err
		}
		want[id] = true
	}

	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
		if want[id] {
			continue
		}
		if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE manifest = ? AND %s = ?", t.MapName(), t.Column), manifest, id); err != nil {
			return fmt.Errorf("failed to unmap %s row %d: %w", t.Name, id, err)
		}
		if err := t.prune(q, id); err != nil {
			return err
		}
	}

	added := make([]int64, 0, len(want))
	for id := range want {
		if !have[id] {
			added = append(added, id)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	for _, id := range added {
		if _, err := q.Exec(fmt.Sprintf("INSERT INTO %s (manifest, %s) VALUES (?, ?)", t.MapName(), t.Column), manifest, id); err != nil {
			return fmt.Errorf("failed to map %s row %d: %w", t.Name, id, err)
		}
	}
	return nil
}

// Remove drops every association of manifest and prunes the freed values.
func (t MultiValueTable) Remove(q Querier, manifest int64) error {
	return t.Set(q, manifest, 0, nil)
}

func (t MultiValueTable) prune(q Querier, rowid int64) error {
	_, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ? AND NOT EXISTS (SELECT 1 FROM %s WHERE %s = ?)",
		t.Name, t.MapName(), t.Column), rowid, rowid)
	if err != nil {
		return fmt.Errorf("failed to prune %s row %d: %w", t.Name, rowid, err)
	}
	return nil
}

// Orphans lists value rows with no association.
func (t MultiValueTable) Orphans(q Querier) ([]int64, error) {
	return Int64s(q, fmt.Sprintf(
		"SELECT v.rowid FROM %s v WHERE NOT EXISTS (SELECT 1 FROM %s m WHERE m.%s = v.rowid) ORDER BY v.rowid",
		t.Name, t.MapName(), t.Column))
}

// MapRow is one association row.
type MapRow struct {
	Manifest int64
	Value    int64
}

// DanglingMaps lists association rows whose manifest is missing from
// manifests or whose value row is missing.
func (t MultiValueTable) DanglingMaps(q Querier, manifests string) ([]MapRow, error) {
	rows, err := q.Query(fmt.Sprintf(
		`SELECT m.manifest, m.%[1]s FROM %[2]s m
		 WHERE NOT EXISTS (SELECT 1 FROM %[3]s WHERE rowid = m.manifest)
		    OR NOT EXISTS (SELECT 1 FROM %[4]s WHERE rowid = m.%[1]s)
		 ORDER BY m.manifest, m.%[1]s`,
		t.Column, t.MapName(), manifests, t.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", t.MapName(), err)
	}
	defer rows.Close()

	var out []MapRow
	for rows.Next() {
		var r MapRow
		if err := rows.Scan(&r.Manifest, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMaps removes the given association rows.
func (t MultiValueTable) DeleteMaps(q Querier, maps []MapRow) error {
	for _, r := range maps {
		if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE manifest = ? AND %s = ?", t.MapName(), t.Column), r.Manifest, r.Value); err != nil {
			return fmt.Errorf("failed to delete %s row: %w", t.MapName(), err)
		}
	}
	return nil
}

// DeleteValues removes value rows unconditionally.
func (t MultiValueTable) DeleteValues(q Querier, rowids []int64) error {
	for _, id := range rowids {
		if _, err := q.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", t.Name), id); err != nil {
			return fmt.Errorf("failed to delete %s row %d: %w", t.Name, id, err)
		}
	}
	return nil
}
