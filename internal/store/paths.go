package store

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
)

// SplitPath splits a relative path into its parts. Both '/' and '\' act as
// separators. Rooted paths, drive letters, empty segments and the "." and
// ".." segments are rejected.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", catalogerr.ErrInvalidArgument)
	}
	p := strings.ReplaceAll(path, `\`, "/")
	if strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: path %q is rooted", catalogerr.ErrInvalidArgument, path)
	}

	parts := strings.Split(p, "/")
	for i, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("%w: path %q has an empty segment", catalogerr.ErrInvalidArgument, path)
		case part == "." || part == "..":
			return nil, fmt.Errorf("%w: path %q has a relative segment", catalogerr.ErrInvalidArgument, path)
		case i == 0 && isDriveLetter(part):
			return nil, fmt.Errorf("%w: path %q starts with a drive letter", catalogerr.ErrInvalidArgument, path)
		}
	}
	return parts, nil
}

func isDriveLetter(part string) bool {
	if len(part) < 2 || part[1] != ':' {
		return false
	}
	c := part[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// PathPartTable is the tree of path segments. Each row holds one segment and
// the rowid of its parent; top-level segments have parent 0. A full path is
// referenced by the rowid of its last segment.
type PathPartTable struct{}

// Create creates the pathparts table.
func (PathPartTable) Create(q Querier) error {
	stmts := []string{
		"CREATE TABLE pathparts (rowid INTEGER PRIMARY KEY, parent INT NOT NULL DEFAULT 0, pathpart TEXT NOT NULL)",
		"CREATE UNIQUE INDEX pathparts_pkindex ON pathparts(parent, pathpart)",
	}
	for _, stmt := range stmts {
		if _, err := q.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create pathparts: %w", err)
		}
	}
	return nil
}

// Drop removes the pathparts table.
func (PathPartTable) Drop(q Querier) error {
	if _, err := q.Exec("DROP TABLE IF EXISTS pathparts"); err != nil {
		return fmt.Errorf("failed to drop pathparts: %w", err)
	}
	return nil
}

// Find returns the rowid of the last segment of path.
func (PathPartTable) Find(q Querier, path string) (int64, bool, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return 0, false, err
	}
	var parent int64
	for _, part := range parts {
		id, ok, err := OptionalInt64(q, "SELECT rowid FROM pathparts WHERE parent = ? AND pathpart = ?", parent, part)
		if err != nil {
			return 0, false, fmt.Errorf("failed to look up path %q: %w", path, err)
		}
		if !ok {
			return 0, false, nil
		}
		parent = id
	}
	return parent, true, nil
}

// Ensure inserts the missing segments of path and returns the rowid of its
// last segment.
func (PathPartTable) Ensure(q Querier, path string) (int64, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return 0, err
	}
	var parent int64
	for _, part := range parts {
		id, ok, err := OptionalInt64(q, "SELECT rowid FROM pathparts WHERE parent = ? AND pathpart = ?", parent, part)
		if err != nil {
			return 0, fmt.Errorf("failed to look up path %q: %w", path, err)
		}
		if !ok {
			res, err := q.Exec("INSERT INTO pathparts (parent, pathpart) VALUES (?, ?)", parent, part)
			if err != nil {
				return 0, fmt.Errorf("failed to insert path part %q: %w", part, err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return 0, err
			}
		}
		parent = id
	}
	return parent, nil
}

// Path rebuilds the '/'-joined path ending at rowid.
func (PathPartTable) Path(q Querier, rowid int64) (string, error) {
	var parts []string
	seen := map[int64]bool{}
	for id := rowid; id != 0; {
		if seen[id] {
			return "", fmt.Errorf("path part %d has a cyclic parent chain", rowid)
		}
		seen[id] = true

		var (
			parent int64
			part   string
		)
		if err := q.QueryRow("SELECT parent, pathpart FROM pathparts WHERE rowid = ?", id).Scan(&parent, &part); err != nil {
			return "", fmt.Errorf("failed to read path part %d: %w", id, err)
		}
		parts = append(parts, part)
		id = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), nil
}

// Prune deletes the segment at rowid and then its ancestors, stopping at the
// first one that still has children or is named by any of refs.
func (PathPartTable) Prune(q Querier, rowid int64, refs ...Reference) error {
	cond, n := notReferenced(refs)
	for id := rowid; id != 0; {
		parent, ok, err := OptionalInt64(q, "SELECT parent FROM pathparts WHERE rowid = ?", id)
		if err != nil {
			return fmt.Errorf("failed to read path part %d: %w", id, err)
		}
		if !ok {
			return nil
		}

		args := []any{id, id}
		for i := 0; i < n; i++ {
			args = append(args, id)
		}
		res, err := q.Exec("DELETE FROM pathparts WHERE rowid = ? AND NOT EXISTS (SELECT 1 FROM pathparts WHERE parent = ?)"+cond, args...)
		if err != nil {
			return fmt.Errorf("failed to prune path part %d: %w", id, err)
		}
		if affected, err := res.RowsAffected(); err != nil || affected == 0 {
			return err
		}
		id = parent
	}
	return nil
}

// BadParents lists segments whose parent is neither 0 nor an existing row.
func (PathPartTable) BadParents(q Querier) ([]int64, error) {
	return Int64s(q, `SELECT p.rowid FROM pathparts p
		WHERE p.parent <> 0 AND NOT EXISTS (SELECT 1 FROM pathparts pp WHERE pp.rowid = p.parent)
		ORDER BY p.rowid`)
}

// Orphans lists leaf segments that none of refs name.
func (PathPartTable) Orphans(q Querier, refs ...Reference) ([]int64, error) {
	var b strings.Builder
	b.WriteString("SELECT p.rowid FROM pathparts p WHERE NOT EXISTS (SELECT 1 FROM pathparts c WHERE c.parent = p.rowid)")
	for _, r := range refs {
		fmt.Fprintf(&b, " AND NOT EXISTS (SELECT 1 FROM %s WHERE %s = p.rowid)", r.Table, r.Column)
	}
	b.WriteString(" ORDER BY p.rowid")
	return Int64s(q, b.String())
}
