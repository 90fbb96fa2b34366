package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Int64s runs query and collects the first column of every row.
func Int64s(q Querier, query string, args ...any) ([]int64, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Strings runs query and collects the first column of every row.
func Strings(q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// OptionalInt64 runs a single-row query. ok is false when no row matched.
func OptionalInt64(q Querier, query string, args ...any) (v int64, ok bool, err error) {
	err = q.QueryRow(query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Count returns the number of rows in table.
func Count(q Querier, table string) (int, error) {
	var n int
	if err := q.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// TableExists reports whether a table named name exists.
func TableExists(q Querier, name string) (bool, error) {
	_, ok, err := OptionalInt64(q, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	return ok, err
}

// ColumnExists reports whether table has a column named column.
func ColumnExists(q Querier, table, column string) (bool, error) {
	_, ok, err := OptionalInt64(q, fmt.Sprintf("SELECT 1 FROM pragma_table_info('%s') WHERE name = ?", table), column)
	return ok, err
}
