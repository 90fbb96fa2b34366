package store

import (
	"database/sql/driver"
	"fmt"

	"modernc.org/sqlite"

	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
)

// MatchFunction is the SQL function evaluating a match type against a
// stored value: catalog_match(type, value, query) returns 1 or 0.
const MatchFunction = "catalog_match"

// FoldFunction returns the case-folded form of its argument.
const FoldFunction = "catalog_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(MatchFunction, 3, matchFunc)
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunction, 1, foldFunc)
}

func textArg(v driver.Value) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(s), true
	}
}

func matchFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	name, _ := textArg(args[0])
	t, ok := normalize.ParseMatchType(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown match type %q", MatchFunction, name)
	}
	value, present := textArg(args[1])
	if !present {
		return int64(0), nil
	}
	query, _ := textArg(args[2])
	if normalize.Match(t, value, query) {
		return int64(1), nil
	}
	return int64(0), nil
}

func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	s, ok := textArg(args[0])
	if !ok {
		return nil, nil
	}
	return normalize.Fold(s), nil
}
