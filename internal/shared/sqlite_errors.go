// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// sqliteConflictIndicators are the error strings modernc.org/sqlite produces
// when the database is locked by another connection.
var sqliteConflictIndicators = []string{
	"SQLITE_BUSY",
	"database is locked",
}

// IsSQLiteConflictError checks if the error is a SQLite concurrency error
// that warrants retry logic.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, indicator := range sqliteConflictIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
