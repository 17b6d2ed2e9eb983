package report

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/pkg/utils"
)

// ReportFileName is the name of the report written into each run's output directory.
const ReportFileName = "report.json"

// FileReporter writes each run report as indented JSON into the run's output directory.
type FileReporter struct {
	Outputs *utils.OutputManager
}

func (r FileReporter) Publish(ctx context.Context, run model.RunReport) error {
	path, err := r.Outputs.FilePath(run.RunID, ReportFileName)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode run report")
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
