package engine

import (
	"database/sql/driver"
	"errors"

	"github.com/mattn/go-sqlite3"
)

// SQLite3 returns an [Engine] backed by github.com/mattn/go-sqlite3.
//
// Requires cgo. Without cgo the driver compiles but every Open fails.
func SQLite3() Engine {
	drv := &sqlite3.SQLiteDriver{}

	return &driverEngine{
		name: "sqlite3",
		open: func(dsn string) (driver.Conn, error) {
			return drv.Open(dsn)
		},
		classify: classifySQLite3,
		rawRows:  keepStoredValues,
	}
}

// keepStoredValues blanks the declared column types the driver caches for a
// result set. Next converts integers and text in DATE, DATETIME and
// TIMESTAMP columns to time.Time and integers in BOOLEAN columns to bool by
// consulting that cache; with it blank every value arrives as stored.
func keepStoredValues(rows driver.Rows) {
	r, ok := rows.(*sqlite3.SQLiteRows)
	if !ok {
		return
	}

	declared := r.DeclTypes()
	for i := range declared {
		declared[i] = ""
	}
}

func classifySQLite3(err error) (int, int, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return 0, 0, false
	}

	return int(sqliteErr.Code), int(sqliteErr.ExtendedCode), true
}
