package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const header = "id,vendor_id,pickup_datetime,dropoff_datetime,passenger_count,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,store_and_fwd_flag,trip_duration"

func writeTrips(t *testing.T, dir string) string {
	t.Helper()
	start := time.Date(2016, 3, 14, 8, 0, 0, 0, time.UTC)
	lines := []string{header}
	for i := 0; i < 12; i++ {
		end := start.Add(time.Duration(600+10*i) * time.Second)
		lines = append(lines, fmt.Sprintf("id%02d,2,%s,%s,1,-74.006,40.7128,-73.9855,40.758,N,%d",
			i, start.Format(time.DateTime), end.Format(time.DateTime), 600+10*i))
	}
	lines = append(lines, "broken,row")
	path := filepath.Join(dir, "train.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRunToCSV(t *testing.T) {
	dir := t.TempDir()
	source := writeTrips(t, dir)
	outputs := filepath.Join(dir, "output")
	ledger := filepath.Join(dir, "runs.db")

	out, err := execute(t, "run",
		"--source", source,
		"--sink", "csv",
		"--output-dir", outputs,
		"--ledger", ledger,
		"--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"completed", "malformed_input", "written", "12 in 1 batches"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}

	runDirs, err := os.ReadDir(outputs)
	if err != nil || len(runDirs) != 1 {
		t.Fatalf("expected one run directory: %v %v", runDirs, err)
	}
	runID := runDirs[0].Name()
	trips, err := os.ReadFile(filepath.Join(outputs, runID, "trips.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(trips), "\n"); n != 13 {
		t.Fatalf("trips.csv has %d lines, want header + 12", n)
	}
	if _, err := os.Stat(filepath.Join(outputs, runID, "report.json")); err != nil {
		t.Fatal(err)
	}

	out, err = execute(t, "runs", "--ledger", ledger)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, runID) || !strings.Contains(out, "completed") {
		t.Fatalf("run not listed:\n%s", out)
	}

	out, err = execute(t, "runs", runID, "--ledger", ledger)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "malformed_input") {
		t.Fatalf("unexpected run report:\n%s", out)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--sink", "discard", "--batch-size", "0", "--ledger", "")
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if !strings.Contains(err.Error(), "source is required") || !strings.Contains(err.Error(), "batch-size") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRunMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "run",
		"--source", filepath.Join(dir, "missing.csv"),
		"--sink", "discard",
		"--output-dir", filepath.Join(dir, "output"),
		"--ledger", "",
		"--log-level", "error")
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestBounds(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "bounds",
		"--source", writeTrips(t, dir),
		"--sample-strategy", "prefix",
		"--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"sample size", "12", "iqr"} {
		if !strings.Contains(out, want) {
			t.Fatalf("bounds output missing %q:\n%s", want, out)
		}
	}
}
