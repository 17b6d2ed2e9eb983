package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
)

func trip(id string, hour int) model.EnrichedRecord {
	pickup := time.Date(2016, 3, 14, hour, 0, 0, 0, time.UTC)
	flag := "N"
	return model.EnrichedRecord{
		CandidateRecord: model.CandidateRecord{
			TripID:         id,
			VendorID:       2,
			PickupAt:       pickup,
			DropoffAt:      pickup.Add(15 * time.Minute),
			PassengerCount: 1,
			Pickup:         model.Coordinate{Lat: 40.7128, Lon: -74.0060},
			Dropoff:        model.Coordinate{Lat: 40.7580, Lon: -73.9855},
			StoreAndFwd:    &flag,
		},
		DurationSeconds:  900,
		DistanceKM:       5.315,
		SpeedKMH:         21.26,
		TimeOfDay:        model.TimeOfDayFor(hour),
		DistanceCategory: model.Medium,
		Hour:             hour,
		DayOfWeek:        0,
		Month:            3,
		PickupGeohash:    "dr5reg",
		DropoffGeohash:   "dr5ru7",
	}
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "taxi_data.db")
	sink, err := NewSQLiteSink(ctx, path, false)
	if err != nil {
		t.Fatal(err)
	}

	n, err := sink.AppendBatch(ctx, []model.EnrichedRecord{trip("a", 8), trip("b", 13)})
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	// a retried batch only adds what is new
	n, err = sink.AppendBatch(ctx, []model.EnrichedRecord{trip("b", 13), trip("c", 18)})
	if err != nil || n != 1 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
	if got, err := sink.CountTrips(ctx); err != nil || got != 3 {
		t.Fatalf("count=%d err=%v", got, err)
	}

	var pickup, tod string
	var flag *string
	err = sink.db.QueryRowContext(ctx,
		`SELECT pickup_datetime, time_of_day, store_and_fwd_flag FROM taxi_trips WHERE trip_id = 'c'`).
		Scan(&pickup, &tod, &flag)
	if err != nil {
		t.Fatal(err)
	}
	if pickup != "2016-03-14 18:00:00" || tod != "evening" || flag == nil || *flag != "N" {
		t.Fatalf("unexpected row %q %q %v", pickup, tod, flag)
	}

	var indexes int
	if err := sink.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes); err != nil {
		t.Fatal(err)
	}
	if indexes != len(tripIndexes) {
		t.Fatalf("got %d indexes, want %d", indexes, len(tripIndexes))
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening keeps the rows; reset drops them
	again, err := NewSQLiteSink(ctx, path, false)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := again.CountTrips(ctx); got != 3 {
		t.Fatalf("reopen count=%d", got)
	}
	again.Close()

	reset, err := NewSQLiteSink(ctx, path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer reset.Close()
	if got, _ := reset.CountTrips(ctx); got != 0 {
		t.Fatalf("reset count=%d", got)
	}
}

func TestRunStore(t *testing.T) {
	ctx := context.Background()
	runs, err := NewRunStore(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer runs.Close()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	run := model.RunReport{
		RunID:     "run-1",
		Source:    "train.csv",
		Sink:      "sqlite",
		Status:    model.RunSampling,
		StartedAt: started,
	}
	if err := runs.StartRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := runs.UpdateRunStatus(ctx, "run-1", model.RunProcessing); err != nil {
		t.Fatal(err)
	}
	got, err := runs.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunProcessing || got.Source != "train.csv" {
		t.Fatalf("unexpected in-flight run %+v", got)
	}

	report := model.NewRejectionReport()
	for i := 0; i < 5; i++ {
		report.Accept()
	}
	report.Reject(model.ReasonDurationOutlier)
	report.Reject(model.ReasonDurationOutlier)
	report.Reject(model.ReasonMissingField)

	run.Status = model.RunCompleted
	run.FinishedAt = started.Add(time.Minute)
	run.Bounds = model.Bounds{Lower: 120, Upper: 2400, Statistical: true, SampleSize: 8}
	run.Report = report
	run.Written = 5
	run.Batches = 1
	if err := runs.FinishRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	// finishing twice replaces the counts
	if err := runs.FinishRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err = runs.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunCompleted || got.Report.Processed != 8 || got.Bounds.Upper != 2400 || got.Duration() != time.Minute {
		t.Fatalf("unexpected run %+v", got)
	}

	list, err := runs.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Accepted != 5 || list[0].Written != 5 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Rejections[model.ReasonDurationOutlier] != 2 || list[0].Rejections[model.ReasonMissingField] != 1 {
		t.Fatalf("unexpected rejections %v", list[0].Rejections)
	}

	if _, err := runs.GetRun(ctx, "nope"); errors.Cause(err) != ErrRunNotFound {
		t.Fatalf("got %v, want %v", err, ErrRunNotFound)
	}
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := MySQLDSN("trips:secret@tcp(db:3306)/taxi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "parseTime=true") || !strings.Contains(dsn, "tcp(db:3306)/taxi") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if _, err := MySQLDSN("not a dsn"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresInsert(t *testing.T) {
	q := postgresInsert()
	if !strings.Contains(q, "$20)") || !strings.HasSuffix(q, "ON CONFLICT (trip_id) DO NOTHING") {
		t.Fatalf("unexpected statement %q", q)
	}
}

func TestSQLiteSchemaErrorIsPermanent(t *testing.T) {
	ctx := context.Background()
	sink, err := NewSQLiteSink(ctx, filepath.Join(t.TempDir(), "taxi_data.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()
	if _, err := sink.db.ExecContext(ctx, `DROP TABLE taxi_trips`); err != nil {
		t.Fatal(err)
	}

	retrier := pipeline.NewRetrier(model.RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2}, nil)
	attempts, err := retrier.Do(ctx, func(ctx context.Context) error {
		_, err := sink.AppendBatch(ctx, []model.EnrichedRecord{trip("a", 8)})
		return err
	})
	if !errors.Is(err, pipeline.ErrPermanent) {
		t.Fatalf("got %v, want a permanent error", err)
	}
	if attempts != 1 {
		t.Fatalf("retried a missing table %d times", attempts)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"sqlite no such table", sqlite3.Error{Code: sqlite3.ErrError}, true},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint}, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, false},
		{"postgres undefined table", &pgconn.PgError{Code: "42P01"}, true},
		{"postgres bad value", &pgconn.PgError{Code: "22P02"}, true},
		{"postgres serialization", &pgconn.PgError{Code: "40001"}, false},
		{"postgres admin shutdown", &pgconn.PgError{Code: "57P01"}, false},
		{"mysql unknown table", &mysql.MySQLError{Number: 1146}, true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, false},
		{"network", errors.New("connection reset by peer"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := classify(errors.Wrap(test.err, "inserting trip a"))
			if got := errors.Is(err, pipeline.ErrPermanent); got != test.permanent {
				t.Fatalf("permanent=%v, want %v (%v)", got, test.permanent, err)
			}
			if !errors.Is(err, test.err) {
				t.Fatalf("lost the driver error: %v", err)
			}
		})
	}
	if classify(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}
