package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackcoderx/restseq/pkg/report"
)

// SaveResults writes a run summary as JSON into dir and returns the file path.
func SaveResults(dir string, summary *report.Summary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	// Generate filename with timestamp
	timestamp := summary.StartTime.Format("2006-01-02-15-04-05")
	safeName := strings.ToLower(strings.ReplaceAll(summary.Grammar, " ", "-"))
	if safeName == "" {
		safeName = "run"
	}
	filename := fmt.Sprintf("%s-%s-%s.json", safeName, timestamp, shortID(summary.RunID))
	resultPath := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(resultPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}
	return resultPath, nil
}

// LoadResults reads a summary written by SaveResults.
func LoadResults(path string) (*report.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var summary report.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	return &summary, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
