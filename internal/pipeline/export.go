package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
)

// Sink receives accepted records in batches. AppendBatch returns how many records were
// newly written; re-sending a batch must not duplicate trips already stored (records are
// keyed by trip id). Implementations must not retain the slice.
type Sink interface {
	AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error)
	Close() error
}

// TripColumns is the column order used by the file sinks.
var TripColumns = []string{
	"trip_id", "vendor_id", "pickup_datetime", "dropoff_datetime", "passenger_count",
	"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude",
	"store_and_fwd_flag", "trip_duration", "distance_km", "speed_kmh", "time_of_day",
	"trip_distance_category", "hour", "day_of_week", "month", "pickup_geohash", "dropoff_geohash",
}

// TimestampFormat is how sinks write pickup and dropoff times.
const TimestampFormat = "2006-01-02 15:04:05"

func tripRow(r model.EnrichedRecord) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		r.TripID,
		strconv.Itoa(r.VendorID),
		r.PickupAt.Format(TimestampFormat),
		r.DropoffAt.Format(TimestampFormat),
		strconv.Itoa(r.PassengerCount),
		f(r.Pickup.Lat),
		f(r.Pickup.Lon),
		f(r.Dropoff.Lat),
		f(r.Dropoff.Lon),
		r.StoreAndFwdFlag(),
		strconv.Itoa(r.DurationSeconds),
		f(r.DistanceKM),
		f(r.SpeedKMH),
		string(r.TimeOfDay),
		string(r.DistanceCategory),
		strconv.Itoa(r.Hour),
		strconv.Itoa(r.DayOfWeek),
		strconv.Itoa(r.Month),
		r.PickupGeohash,
		r.DropoffGeohash,
	}
}

// NewFileSink picks a file sink from the extension of path: .csv, or .json/.jsonl for
// JSON lines.
func NewFileSink(path string) (Sink, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return NewCSVSink(path)
	case ".json", ".jsonl", ".ndjson":
		return NewJSONLinesSink(path)
	default:
		return nil, errors.Errorf("unsupported file sink extension %q", ext)
	}
}

// fileSink holds what both file formats share: the open file and the set of trip ids
// already written.
type fileSink struct {
	path string
	file *os.File
	seen map[string]struct{}
}

func openFileSink(path string) (*fileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating directory for %s", path)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return &fileSink{path: path, file: f, seen: make(map[string]struct{})}, nil
}

// fresh filters out records whose trip id was already written and marks the rest seen.
func (s *fileSink) fresh(batch []model.EnrichedRecord) []model.EnrichedRecord {
	out := make([]model.EnrichedRecord, 0, len(batch))
	for _, r := range batch {
		if _, dup := s.seen[r.TripID]; dup {
			continue
		}
		s.seen[r.TripID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CSVSink writes accepted trips to a CSV file with a header row.
type CSVSink struct {
	*fileSink
	w *csv.Writer
}

// NewCSVSink creates (or truncates) path and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	fs, err := openFileSink(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{fileSink: fs, w: csv.NewWriter(fs.file)}
	if err := s.w.Write(TripColumns); err != nil {
		fs.file.Close()
		return nil, errors.Wrap(err, "writing csv header")
	}
	return s, nil
}

func (s *CSVSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rows := s.fresh(batch)
	for _, r := range rows {
		if err := s.w.Write(tripRow(r)); err != nil {
			return 0, errors.Wrapf(err, "writing %s", s.path)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return 0, errors.Wrapf(err, "flushing %s", s.path)
	}
	return len(rows), nil
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return errors.Wrapf(err, "flushing %s", s.path)
	}
	return errors.Wrapf(s.file.Close(), "closing %s", s.path)
}

// JSONLinesSink writes one JSON object per accepted trip.
type JSONLinesSink struct {
	*fileSink
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONLinesSink creates (or truncates) path.
func NewJSONLinesSink(path string) (*JSONLinesSink, error) {
	fs, err := openFileSink(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(fs.file)
	return &JSONLinesSink{fileSink: fs, buf: buf, enc: json.NewEncoder(buf)}, nil
}

type jsonTrip struct {
	model.EnrichedRecord
	PickupAt  string `json:"pickup_datetime"`
	DropoffAt string `json:"dropoff_datetime"`
}

func (s *JSONLinesSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rows := s.fresh(batch)
	for _, r := range rows {
		line := jsonTrip{
			EnrichedRecord: r,
			PickupAt:       r.PickupAt.Format(TimestampFormat),
			DropoffAt:      r.DropoffAt.Format(TimestampFormat),
		}
		if err := s.enc.Encode(line); err != nil {
			return 0, errors.Wrapf(err, "encoding trip %s", r.TripID)
		}
	}
	if err := s.buf.Flush(); err != nil {
		return 0, errors.Wrapf(err, "flushing %s", s.path)
	}
	return len(rows), nil
}

func (s *JSONLinesSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return errors.Wrapf(err, "flushing %s", s.path)
	}
	return errors.Wrapf(s.file.Close(), "closing %s", s.path)
}

// DiscardSink counts records and stores nothing. Used by dry runs.
type DiscardSink struct {
	seen map[string]struct{}
}

func NewDiscardSink() *DiscardSink {
	return &DiscardSink{seen: make(map[string]struct{})}
}

func (s *DiscardSink) AppendBatch(ctx context.Context, batch []model.EnrichedRecord) (int, error) {
	n := 0
	for _, r := range batch {
		if _, dup := s.seen[r.TripID]; !dup {
			s.seen[r.TripID] = struct{}{}
			n++
		}
	}
	return n, nil
}

func (s *DiscardSink) Close() error { return nil }

// flushBatch sends batch to sink through retrier and describes the outcome.
func flushBatch(ctx context.Context, sink Sink, sinkName string, retrier *Retrier, number int, batch []model.EnrichedRecord) (model.BatchResult, error) {
	res := model.BatchResult{Sink: sinkName, Batch: number, RecordCount: len(batch)}
	attempts, err := retrier.Do(ctx, func(ctx context.Context) error {
		n, err := sink.AppendBatch(ctx, batch)
		if err != nil {
			return err
		}
		res.Written = n
		return nil
	})
	res.Attempts = attempts
	res.FlushedAt = time.Now().UTC()
	if err != nil {
		return res, errors.Wrapf(err, "flushing batch %d to %s", number, sinkName)
	}
	return res, nil
}
