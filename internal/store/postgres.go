package store

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

const postgresTripTable = `
CREATE TABLE IF NOT EXISTS taxi_trips (
	id BIGSERIAL PRIMARY KEY,
	trip_id TEXT UNIQUE NOT NULL,
	vendor_id INTEGER NOT NULL,
	pickup_datetime TIMESTAMP NOT NULL,
	dropoff_datetime TIMESTAMP NOT NULL,
	passenger_count INTEGER NOT NULL,
	pickup_longitude DOUBLE PRECISION NOT NULL,
	pickup_latitude DOUBLE PRECISION NOT NULL,
	dropoff_longitude DOUBLE PRECISION NOT NULL,
	dropoff_latitude DOUBLE PRECISION NOT NULL,
	store_and_fwd_flag TEXT,
	trip_duration INTEGER NOT NULL,
	distance_km DOUBLE PRECISION NOT NULL,
	speed_kmh DOUBLE PRECISION NOT NULL,
	time_of_day TEXT NOT NULL,
	trip_distance_category TEXT NOT NULL,
	hour INTEGER NOT NULL,
	day_of_week INTEGER NOT NULL,
	month INTEGER NOT NULL,
	pickup_geohash TEXT,
	dropoff_geohash TEXT
)`

// NewPostgresPool parses dsn, tunes the pool, and verifies connectivity.
func NewPostgresPool(ctx context.Context, dsn string, log *slog.Logger) (*pgxpool.Pool, error) {
	start := time.Now()

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres parse dsn")
	}
	pcfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 1)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute

	logger.Info(ctx, log, "db_config_check", "effective postgres connection parameters",
		"host", pcfg.ConnConfig.Host,
		"port", pcfg.ConnConfig.Port,
		"user", pcfg.ConnConfig.User,
		"database", pcfg.ConnConfig.Database,
		"password_empty", pcfg.ConnConfig.Password == "")

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.NewWithConfig")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres ping")
	}

	logger.Info(ctx, log, "db_connected", "connected to postgres", "duration_ms", time.Since(start).Milliseconds())
	return pool, nil
}

// PostgresSink writes trips to Postgres through a pgx pool.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates the trip table and indexes (dropping the table first with
// reset) and returns a sink that owns pool.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool, reset bool) (*PostgresSink, error) {
	if reset {
		if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS taxi_trips`); err != nil {
			return nil, errors.Wrap(err, "dropping taxi_trips")
		}
	}
	if _, err := pool.Exec(ctx, postgresTripTable); err != nil {
		return nil, errors.Wrap(err, "creating taxi_trips")
	}
	for _, idx := range tripIndexes {
		q := "CREATE INDEX IF NOT EXISTS " + idx[0] + " ON " + TripTable + " (" + idx[1] + ")"
		if _, err := pool.Exec(ctx, q); err != nil {
			return nil, errors.Wrapf(err, "creating index %s", idx[0])
		}
	}
	return &PostgresSink{pool: pool}, nil
}

func postgresInsert() string {
	ph := make([]string, len(tripColumns))
	for i := range ph {
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	return "INSERT INTO " + TripTable + " (" + columnList() + ") VALUES (" + strings.Join(ph, ", ") +
		") ON CONFLICT (trip_id) DO NOTHING"
}

// AppendBatch sends the batch as one pgx.Batch inside a transaction.
func (s *PostgresSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	q := postgresInsert()
	b := &pgx.Batch{}
	for _, r := range batch {
		b.Queue(q, tripArgs(r, nativeTime)...)
	}
	br := tx.SendBatch(ctx, b)
	written := 0
	for _, r := range batch {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, classify(errors.Wrapf(err, "inserting trip %s", r.TripID))
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, classify(errors.Wrap(err, "closing batch"))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classify(errors.Wrap(err, "committing batch"))
	}
	return written, nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
