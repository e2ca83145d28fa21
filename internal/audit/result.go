// Package audit implements deterministic structural validation of plans.
// The engine is a pure function over the parsed plan plus filesystem
// existence checks: identical inputs always yield identical results, and
// malformed input becomes issues, never panics or errors.
package audit

// Severity classifies how serious an audit issue is. Only errors fail an
// audit; warnings and infos are advisory.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Code is a closed tag identifying the kind of audit issue. New codes may
// arrive from newer plan tooling; unrecognized values normalize to
// CodeUnknown rather than failing.
type Code string

const (
	CodeMasterNotFound     Code = "MASTER_NOT_FOUND"
	CodeMasterParseError   Code = "MASTER_PARSE_ERROR"
	CodeNoPhases           Code = "NO_PHASES"
	CodePhaseNotFound      Code = "PHASE_NOT_FOUND"
	CodePhaseParseError    Code = "PHASE_PARSE_ERROR"
	CodeMissingGates       Code = "MISSING_GATES"
	CodeNoNotesOutput      Code = "NO_NOTES_OUTPUT"
	CodeUnknownDependency  Code = "UNKNOWN_DEPENDENCY"
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	CodeEmptyTasks         Code = "EMPTY_TASKS"
	CodeNoFilesProduced    Code = "NO_FILES_PRODUCED"
	CodeDuplicateFile      Code = "DUPLICATE_FILE"
	CodeCompletionConflict Code = "COMPLETION_CONFLICT"
	CodeUnknown            Code = "UNKNOWN"
)

var knownCodes = map[Code]struct{}{
	CodeMasterNotFound:     {},
	CodeMasterParseError:   {},
	CodeNoPhases:           {},
	CodePhaseNotFound:      {},
	CodePhaseParseError:    {},
	CodeMissingGates:       {},
	CodeNoNotesOutput:      {},
	CodeUnknownDependency:  {},
	CodeCircularDependency: {},
	CodeEmptyTasks:         {},
	CodeNoFilesProduced:    {},
	CodeDuplicateFile:      {},
	CodeCompletionConflict: {},
}

// NormalizeCode maps an arbitrary code string onto the closed enumeration,
// falling back to CodeUnknown for values this version does not know.
func NormalizeCode(s string) Code {
	c := Code(s)
	if _, ok := knownCodes[c]; ok {
		return c
	}
	return CodeUnknown
}

// Issue is a single finding from an audit run.
type Issue struct {
	Severity   Severity `json:"severity"`
	Code       Code     `json:"code"`
	Message    string   `json:"message"`
	Location   string   `json:"location,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`

	// phaseIndex orders issues by phase declaration order. Issues not tied
	// to a phase (master-level findings) sort first.
	phaseIndex int
}

// Summary carries the aggregate counts for a completed audit.
type Summary struct {
	MasterPlan  string `json:"master_plan"`
	PhasesFound int    `json:"phases_found"`
	PhasesValid int    `json:"phases_valid"`
	GatesTotal  int    `json:"gates_total"`
	Errors      int    `json:"errors"`
	Warnings    int    `json:"warnings"`
	Infos       int    `json:"infos"`
}

// Result is the outcome of one audit run. Passed is true iff the run
// produced zero error-severity issues.
type Result struct {
	Passed  bool    `json:"passed"`
	Issues  []Issue `json:"issues"`
	Summary Summary `json:"summary"`
}

// PassedStrict additionally requires zero warnings.
func (r *Result) PassedStrict() bool {
	return r.Passed && r.Summary.Warnings == 0
}

// ErrorIssues returns only the error-severity issues, in order.
func (r *Result) ErrorIssues() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}
