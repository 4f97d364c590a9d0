// Package report aggregates per-item results into a run summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/pagemark/internal/extract"
)

// Supported summary file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is the outcome of one run. Total always equals Succeeded + Failed.
type Report struct {
	RunID     string               `json:"run_id" yaml:"run_id"`
	Total     int                  `json:"total" yaml:"total"`
	Succeeded int                  `json:"succeeded" yaml:"succeeded"`
	Failed    int                  `json:"failed" yaml:"failed"`
	Started   time.Time            `json:"started" yaml:"started"`
	Finished  time.Time            `json:"finished" yaml:"finished"`
	Results   []extract.ItemResult `json:"results" yaml:"results"`
}

// New starts an empty report.
func New(runID string, started time.Time) *Report {
	return &Report{RunID: runID, Started: started}
}

// Add folds one result into the counts. The order of calls does not affect
// the counts.
func (r *Report) Add(res extract.ItemResult) {
	r.Total++
	if res.Succeeded {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// Finish stamps the end time and orders results by label then URL.
func (r *Report) Finish(at time.Time) {
	r.Finished = at
	sort.SliceStable(r.Results, func(i, j int) bool {
		if r.Results[i].Label != r.Results[j].Label {
			return r.Results[i].Label < r.Results[j].Label
		}
		return r.Results[i].URL < r.Results[j].URL
	})
}

// OK reports whether every item succeeded.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Duration is the wall time between Started and Finished.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// WriteBanner prints the human summary.
func (r *Report) WriteBanner(w io.Writer) error {
	rule := strings.Repeat("=", 50)
	_, err := fmt.Fprintf(w, "\n%s\nProcessing complete!\nSuccess: %d/%d\nFailed: %d/%d\n%s\n\n",
		rule, r.Succeeded, r.Total, r.Failed, r.Total, rule)
	return err
}

// Encode writes the report in the given format.
func (r *Report) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json summary: %w", err)
		}
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml summary: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml summary: %w", err)
		}
	default:
		return fmt.Errorf("unsupported summary format %q", format)
	}
	return nil
}

// WriteFile encodes the report to path on fs, creating parent directories.
func (r *Report) WriteFile(fs afero.Fs, path, format string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	if err := r.Encode(f, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close summary file: %w", err)
	}
	return nil
}
