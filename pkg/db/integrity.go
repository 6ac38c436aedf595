package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
)

// mysqlConstraintCodes are the MySQL error numbers for constraint
// violations: duplicate entry, foreign key on insert/update, foreign key
// on delete, and duplicate entry with key name.
var mysqlConstraintCodes = map[uint16]bool{
	1062: true,
	1216: true,
	1217: true,
	1451: true,
	1452: true,
	1586: true,
}

// isIntegrityError reports whether err is a driver-reported constraint
// violation. Each supported driver is inspected natively; unrecognized
// errors fall back to a message scan so third-party drivers still
// classify.
func isIntegrityError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23 is integrity constraint violation.
		return strings.HasPrefix(pgErr.Code, "23")
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlConstraintCodes[myErr.Number]
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// Primary result code 19 is SQLITE_CONSTRAINT; extended codes
		// keep it in the low byte.
		return liteErr.Code()&0xff == 19
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unique constraint", "unique violation", "duplicate", "constraint failed", "foreign key constraint"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
