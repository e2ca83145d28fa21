// Package tracker remembers which tracker issues earlier runs already
// completed, so starting a plan that re-targets finished work is flagged
// before any worker runs.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/plan"
)

// RecordsFileName is the completion record file within the state directory.
const RecordsFileName = "completed_features.json"

// Match classifies how a plan's issue set overlaps prior completions.
type Match int

const (
	// MatchNone means no overlap, or the plan declares no issues at all.
	MatchNone Match = iota
	// MatchPartial means some but not all of the plan's issues were
	// completed before.
	MatchPartial
	// MatchFull means every issue the plan declares was completed before.
	MatchFull
)

func (m Match) String() string {
	switch m {
	case MatchPartial:
		return "partial"
	case MatchFull:
		return "full"
	default:
		return "none"
	}
}

// Record is one completed run's contribution to the history.
type Record struct {
	RunID       string          `json:"run_id"`
	PlanTitle   string          `json:"plan_title"`
	PlanPath    string          `json:"plan_path"`
	Issues      []plan.IssueRef `json:"issues,omitempty"`
	Phases      int             `json:"phases"`
	CompletedAt time.Time       `json:"completed_at"`
}

// CheckResult explains a Check verdict.
type CheckResult struct {
	Match   Match           `json:"match"`
	Overlap []plan.IssueRef `json:"overlap,omitempty"`
	Missing []plan.IssueRef `json:"missing,omitempty"`
}

// Tracker reads and appends completion records. Records live in one JSON
// file per state directory; writes go through the same atomic
// temp-and-rename scheme as run state.
type Tracker struct {
	path string
}

// New creates a Tracker storing records under the given state directory.
func New(stateDir string) *Tracker {
	return &Tracker{path: filepath.Join(stateDir, RecordsFileName)}
}

// Check compares the plan's declared issues against the union of all
// recorded completions. A plan with no issue references always reports
// MatchNone: there is nothing to compare.
func (t *Tracker) Check(p *plan.Plan) (*CheckResult, error) {
	if len(p.Issues) == 0 {
		return &CheckResult{Match: MatchNone}, nil
	}

	records, err := t.load()
	if err != nil {
		return nil, err
	}

	completed := make(map[string]struct{})
	for _, rec := range records {
		for _, ref := range rec.Issues {
			completed[ref.String()] = struct{}{}
		}
	}

	result := &CheckResult{}
	for _, ref := range p.Issues {
		if _, ok := completed[ref.String()]; ok {
			result.Overlap = append(result.Overlap, ref)
		} else {
			result.Missing = append(result.Missing, ref)
		}
	}

	switch {
	case len(result.Overlap) == 0:
		result.Match = MatchNone
	case len(result.Missing) == 0:
		result.Match = MatchFull
	default:
		result.Match = MatchPartial
	}
	return result, nil
}

// Record appends a completion record for a finished run. Called exactly
// once, when every phase of the run reached COMPLETED or SKIPPED.
func (t *Tracker) Record(runID string, p *plan.Plan) error {
	records, err := t.load()
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.RunID == runID {
			// Already recorded; resume after a crash must not duplicate.
			return nil
		}
	}

	records = append(records, Record{
		RunID:       runID,
		PlanTitle:   p.Title,
		PlanPath:    p.Path,
		Issues:      p.Issues,
		Phases:      len(p.Phases),
		CompletedAt: time.Now().UTC(),
	})
	return t.save(records)
}

// Records returns all completion records, oldest first.
func (t *Tracker) Records() ([]Record, error) {
	return t.load()
}

func (t *Tracker) load() ([]Record, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read completion records: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: completion records unreadable: %v", baterr.ErrStateCorrupted, err)
	}
	return records, nil
}

func (t *Tracker) save(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal completion records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write completion records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync completion records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename completion records: %w", err)
	}
	return nil
}
