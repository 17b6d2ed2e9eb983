package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// OutputManager lays out per-run output files under one base directory.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	if baseOutputDir == "" {
		baseOutputDir = "output"
	}
	return &OutputManager{BaseOutputDir: baseOutputDir}
}

// RunDir creates (if needed) and returns the directory for a run's outputs.
func (om *OutputManager) RunDir(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", errors.New("empty run id")
	}
	runDir := filepath.Join(om.BaseOutputDir, filepath.Base(runID))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create run output directory")
	}
	return runDir, nil
}

// FilePath returns the full path for fileName inside the run directory.
func (om *OutputManager) FilePath(runID, fileName string) (string, error) {
	runDir, err := om.RunDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// FileType determines the file type based on extension
func FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json", ".jsonl", ".ndjson":
		return "jsonl"
	default:
		return ""
	}
}
