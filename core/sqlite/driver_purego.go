//go:build !cgo_sqlite

package sqlite

import (
	"errors"

	modernc "modernc.org/sqlite" // registers "sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

// driverBusy reports SQLITE_BUSY and SQLITE_LOCKED, including their
// extended codes.
func driverBusy(err error) bool {
	var se *modernc.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
		return true
	}
	return false
}
