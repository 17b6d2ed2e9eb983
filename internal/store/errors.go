package store

import (
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/pipeline"
)

// MySQL server error numbers that no retry can fix.
var mysqlPermanent = map[uint16]bool{
	1048: true, // column cannot be null
	1054: true, // unknown column
	1064: true, // syntax error
	1146: true, // table doesn't exist
	1366: true, // incorrect value for column
	1406: true, // data too long
}

// classify marks schema, syntax and data errors as permanent so the batch retrier
// stops at once. Busy, locked, and connection errors pass through and are retried.
func classify(err error) error {
	if err == nil || errors.Is(err, pipeline.ErrPermanent) {
		return err
	}
	var lite sqlite3.Error
	if errors.As(err, &lite) {
		switch lite.Code {
		case sqlite3.ErrError, sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrReadonly:
			return pipeline.Permanent(err)
		}
		return err
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		// 22 data exception, 23 integrity constraint, 42 syntax error or access rule
		switch class := pg.Code[:min(2, len(pg.Code))]; class {
		case "22", "23", "42":
			return pipeline.Permanent(err)
		}
		return err
	}
	var my *mysql.MySQLError
	if errors.As(err, &my) && mysqlPermanent[my.Number] {
		return pipeline.Permanent(err)
	}
	return err
}
