package store

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

// OpenSQLite opens (creating if needed) a sqlite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite %s", path)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "opening sqlite %s", path)
	}
	return db, nil
}

const sqliteTripTable = `
CREATE TABLE IF NOT EXISTS taxi_trips (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trip_id TEXT UNIQUE NOT NULL,
	vendor_id INTEGER NOT NULL,
	pickup_datetime TEXT NOT NULL,
	dropoff_datetime TEXT NOT NULL,
	passenger_count INTEGER NOT NULL,
	pickup_longitude REAL NOT NULL,
	pickup_latitude REAL NOT NULL,
	dropoff_longitude REAL NOT NULL,
	dropoff_latitude REAL NOT NULL,
	store_and_fwd_flag TEXT,
	trip_duration INTEGER NOT NULL,
	distance_km REAL NOT NULL,
	speed_kmh REAL NOT NULL,
	time_of_day TEXT NOT NULL,
	trip_distance_category TEXT NOT NULL,
	hour INTEGER NOT NULL,
	day_of_week INTEGER NOT NULL,
	month INTEGER NOT NULL,
	pickup_geohash TEXT,
	dropoff_geohash TEXT
);`

// SQLiteSink writes trips to the taxi_trips table of a sqlite database.
type SQLiteSink struct {
	db   *sql.DB
	path string
}

// NewSQLiteSink opens path and creates the trip table and its indexes. With reset set,
// an existing trip table is dropped first.
func NewSQLiteSink(ctx context.Context, path string, reset bool) (*SQLiteSink, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteSink{db: db, path: path}
	if err := s.migrate(ctx, reset); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate(ctx context.Context, reset bool) error {
	if reset {
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS taxi_trips`); err != nil {
			return errors.Wrap(err, "dropping taxi_trips")
		}
	}
	if _, err := s.db.ExecContext(ctx, sqliteTripTable); err != nil {
		return errors.Wrap(err, "creating taxi_trips")
	}
	for _, idx := range tripIndexes {
		q := "CREATE INDEX IF NOT EXISTS " + idx[0] + " ON " + TripTable + "(" + idx[1] + ")"
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "creating index %s", idx[0])
		}
	}
	return nil
}

// AppendBatch inserts the batch in one transaction. Trips whose id is already stored
// are skipped.
func (s *SQLiteSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO "+TripTable+" ("+columnList()+") VALUES "+placeholders(len(tripColumns)))
	if err != nil {
		return 0, classify(errors.Wrap(err, "preparing insert"))
	}
	defer stmt.Close()

	written := 0
	for _, r := range batch {
		res, err := stmt.ExecContext(ctx, tripArgs(r, textTime)...)
		if err != nil {
			return 0, classify(errors.Wrapf(err, "inserting trip %s", r.TripID))
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, classify(errors.Wrap(err, "committing batch"))
	}
	return written, nil
}

// CountTrips returns the number of stored trips.
func (s *SQLiteSink) CountTrips(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM taxi_trips`).Scan(&n)
	return n, errors.Wrap(err, "counting trips")
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
