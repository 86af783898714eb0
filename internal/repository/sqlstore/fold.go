package sqlstore

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// foldFunc is a SQLite function that lower-cases with Go's Unicode rules.
// The built-in LOWER and LIKE only fold ASCII, so "Émile" would never match
// a search for "émile".
const foldFunc = "bookshelf_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return foldText(v), nil
			case []byte:
				return foldText(string(v)), nil
			default:
				return v, nil
			}
		})
}

// foldText is the Go side of foldFunc. Search terms are folded with it
// before they are bound, so both sides of LIKE agree.
func foldText(s string) string {
	return strings.ToLower(s)
}
