package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

const mysqlTripTable = `
CREATE TABLE IF NOT EXISTS taxi_trips (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	trip_id VARCHAR(64) NOT NULL,
	vendor_id INT NOT NULL,
	pickup_datetime DATETIME NOT NULL,
	dropoff_datetime DATETIME NOT NULL,
	passenger_count INT NOT NULL,
	pickup_longitude DOUBLE NOT NULL,
	pickup_latitude DOUBLE NOT NULL,
	dropoff_longitude DOUBLE NOT NULL,
	dropoff_latitude DOUBLE NOT NULL,
	store_and_fwd_flag VARCHAR(1),
	trip_duration INT NOT NULL,
	distance_km DOUBLE NOT NULL,
	speed_kmh DOUBLE NOT NULL,
	time_of_day VARCHAR(16) NOT NULL,
	trip_distance_category VARCHAR(16) NOT NULL,
	hour TINYINT NOT NULL,
	day_of_week TINYINT NOT NULL,
	month TINYINT NOT NULL,
	pickup_geohash VARCHAR(12),
	dropoff_geohash VARCHAR(12),
	UNIQUE KEY uq_trip_id (trip_id)%s
) CHARACTER SET utf8mb4`

// MySQLDSN normalizes a go-sql-driver DSN: times are parsed and written as UTC.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "mysql parse dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg.FormatDSN(), nil
}

// MySQLSink writes trips to MySQL.
type MySQLSink struct {
	db *sql.DB
}

// NewMySQLSink connects with dsn and creates the trip table (dropping it first with reset).
func NewMySQLSink(ctx context.Context, dsn string, reset bool) (*MySQLSink, error) {
	normalized, err := MySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, errors.Wrap(err, "opening mysql")
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(4)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "mysql ping")
	}

	if reset {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS taxi_trips`); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "dropping taxi_trips")
		}
	}
	var idx strings.Builder
	for _, i := range tripIndexes {
		idx.WriteString(",\n\tINDEX " + i[0] + " (" + i[1] + ")")
	}
	if _, err := db.ExecContext(ctx, strings.Replace(mysqlTripTable, "%s", idx.String(), 1)); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating taxi_trips")
	}
	return &MySQLSink{db: db}, nil
}

// AppendBatch inserts the batch as one multi-row INSERT IGNORE in a transaction.
func (s *MySQLSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	// stay well below the 65535 placeholder limit
	const rowsPerStatement = 1000

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	written := 0
	row := placeholders(len(tripColumns))
	for start := 0; start < len(batch); start += rowsPerStatement {
		end := min(start+rowsPerStatement, len(batch))
		chunk := batch[start:end]

		values := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(tripColumns))
		for i, r := range chunk {
			values[i] = row
			args = append(args, tripArgs(r, nativeTime)...)
		}
		q := "INSERT IGNORE INTO " + TripTable + " (" + columnList() + ") VALUES " + strings.Join(values, ", ")
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, classify(errors.Wrapf(err, "inserting rows %d-%d", start, end))
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

func (s *MySQLSink) Close() error {
	return s.db.Close()
}
