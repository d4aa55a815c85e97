package store

import "strings"

// SQLite reports lock contention through error text only; these are the two
// spellings modernc surfaces.
var conflictMarkers = []string{"SQLITE_BUSY", "database is locked"}

// isConflict reports whether err is lock contention that a short wait and
// retry can resolve.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range conflictMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
