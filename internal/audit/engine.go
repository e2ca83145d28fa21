package audit

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Iron-Ham/baton/internal/plan"
)

// Engine validates master plans deterministically. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	parseMaster func(path string) (*plan.Plan, error)
	parsePhase  func(path, id string) (*plan.Phase, error)
}

// NewEngine returns an Engine backed by the real plan parsers.
func NewEngine() *Engine {
	return &Engine{
		parseMaster: plan.ParseMaster,
		parsePhase:  plan.ParsePhase,
	}
}

// Audit runs every check against the master plan at path and returns the
// aggregated result. Parse failures are converted into issues; the only
// error path is reserved for I/O failures on the master plan itself, and
// even a missing master file is reported as an issue, not an error.
func (e *Engine) Audit(path string) *Result {
	var issues []Issue

	master, err := e.parseMaster(path)
	if err != nil {
		issue := Issue{
			Severity: SeverityError,
			Code:     CodeMasterParseError,
			Message:  fmt.Sprintf("failed to parse master plan: %v", err),
			Location: path,
			Suggestion: "Check the master plan format. It needs a '## Phases' table " +
				"with rows like: | 1 | [Title](phase-1.md) | ... |",
		}
		if os.IsNotExist(err) {
			issue.Code = CodeMasterNotFound
			issue.Message = fmt.Sprintf("master plan not found: %s", path)
			issue.Suggestion = "Create a master plan file with a '## Phases' table listing all phase files"
		}
		return finalize(path, 0, 0, 0, []Issue{issue})
	}

	if len(master.Phases) == 0 {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Code:       CodeNoPhases,
			Message:    "master plan has no phases defined",
			Location:   master.Path,
			Suggestion: "Add rows to the '## Phases' table, each linking to a phase file",
		})
	}

	// Parse phases in declaration order; every per-phase issue records the
	// phase index so final ordering is stable.
	phasesValid := 0
	gatesTotal := 0
	parsed := make([]*plan.Phase, 0, len(master.Phases))

	for i, ref := range master.Phases {
		phaseIssues := e.checkPhase(i, ref)

		hadError := false
		for _, issue := range phaseIssues {
			if issue.Severity == SeverityError {
				hadError = true
			}
		}
		issues = append(issues, phaseIssues...)

		if detailed := e.parsedPhase(ref); detailed != nil {
			parsed = append(parsed, detailed)
			gatesTotal += len(detailed.Gates)
		}
		if !hadError {
			phasesValid++
		}
	}

	issues = append(issues, e.checkDependencies(master, parsed)...)

	return finalize(master.Title, len(master.Phases), phasesValid, gatesTotal, issues)
}

// checkPhase validates a single phase reference: file existence, parse,
// gates, notes output, and tasks.
func (e *Engine) checkPhase(index int, ref *plan.Phase) []Issue {
	var issues []Issue
	at := func(issue Issue) {
		issue.phaseIndex = index + 1
		issues = append(issues, issue)
	}

	if _, err := os.Stat(ref.Path); err != nil {
		at(Issue{
			Severity:   SeverityError,
			Code:       CodePhaseNotFound,
			Message:    fmt.Sprintf("phase %s file not found: %s", ref.ID, ref.Path),
			Location:   ref.Path,
			Suggestion: fmt.Sprintf("Create the phase file or fix the master plan link for phase %s", ref.ID),
		})
		return issues
	}

	detailed, err := e.parsePhase(ref.Path, ref.ID)
	if err != nil {
		at(Issue{
			Severity:   SeverityError,
			Code:       CodePhaseParseError,
			Message:    fmt.Sprintf("failed to parse phase %s: %v", ref.ID, err),
			Location:   ref.Path,
			Suggestion: "Check the phase file format. It needs '## Gates' and '## Tasks' sections",
		})
		return issues
	}

	if len(detailed.Gates) == 0 {
		at(Issue{
			Severity: SeverityError,
			Code:     CodeMissingGates,
			Message:  fmt.Sprintf("phase %s has no gates defined", ref.ID),
			Location: ref.Path,
			Suggestion: "Add a '## Gates' section with verification commands, e.g. " +
				"- tests: pass (command: `go test ./...`)",
		})
	}
	if detailed.NotesOutput == "" {
		at(Issue{
			Severity:   SeverityWarning,
			Code:       CodeNoNotesOutput,
			Message:    fmt.Sprintf("phase %s has no notes output path specified", ref.ID),
			Location:   ref.Path,
			Suggestion: "Add 'Write notes to: `notes/NOTES_phase_X.md`' so the next phase gets context",
		})
	}
	if len(detailed.Tasks) == 0 {
		at(Issue{
			Severity: SeverityInfo,
			Code:     CodeEmptyTasks,
			Message:  fmt.Sprintf("phase %s has no task checklist", ref.ID),
			Location: ref.Path,
		})
	}

	return issues
}

// parsedPhase re-parses a phase for dependency analysis, returning nil when
// the file is missing or unparseable (already reported by checkPhase).
func (e *Engine) parsedPhase(ref *plan.Phase) *plan.Phase {
	if _, err := os.Stat(ref.Path); err != nil {
		return nil
	}
	detailed, err := e.parsePhase(ref.Path, ref.ID)
	if err != nil {
		return nil
	}
	return detailed
}

// checkDependencies validates the depends_on graph: every referenced id
// must exist, and the graph must be acyclic.
func (e *Engine) checkDependencies(master *plan.Plan, phases []*plan.Phase) []Issue {
	var issues []Issue

	known := make(map[string]struct{}, len(phases))
	for _, ph := range phases {
		known[ph.ID] = struct{}{}
	}

	for _, ph := range phases {
		for _, dep := range ph.DependsOn {
			if _, ok := known[dep]; !ok {
				issues = append(issues, Issue{
					Severity:   SeverityWarning,
					Code:       CodeUnknownDependency,
					Message:    fmt.Sprintf("phase %s depends on unknown phase %s", ph.ID, dep),
					Location:   ph.Path,
					Suggestion: fmt.Sprintf("Add phase %s to the master plan or remove the dependency", dep),
					phaseIndex: master.PhaseIndex(ph.ID) + 1,
				})
			}
		}
	}

	if cycle := findCycle(phases); cycle != nil {
		issues = append(issues, Issue{
			Severity:   SeverityError,
			Code:       CodeCircularDependency,
			Message:    fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
			Suggestion: fmt.Sprintf("Break the cycle by removing one of the dependencies in: %s", strings.Join(cycle, " -> ")),
			phaseIndex: master.PhaseIndex(cycle[0]) + 1,
		})
	}

	return issues
}

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current path
	black        // fully explored
)

// findCycle runs a three-color depth-first search over the dependency
// graph and returns the first cycle found as a path of phase ids (closing
// node repeated), or nil. Visit order follows phase declaration order so
// the reported cycle is deterministic.
func findCycle(phases []*plan.Phase) []string {
	graph := make(map[string][]string, len(phases))
	for _, ph := range phases {
		graph[ph.ID] = ph.DependsOn
	}

	color := make(map[string]int, len(phases))

	var path []string
	var walk func(id string) []string
	walk = func(id string) []string {
		color[id] = gray
		path = append(path, id)

		for _, dep := range graph[id] {
			switch color[dep] {
			case gray:
				// Found the back edge; slice out the cycle from the path.
				for i, node := range path {
					if node == dep {
						cycle := append([]string{}, path[i:]...)
						return append(cycle, dep)
					}
				}
				return []string{dep, dep}
			case white:
				if _, ok := graph[dep]; !ok {
					continue // dangling reference, reported separately
				}
				if cycle := walk(dep); cycle != nil {
					return cycle
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		return nil
	}

	for _, ph := range phases {
		if color[ph.ID] == white {
			path = path[:0]
			if cycle := walk(ph.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// finalize orders issues (phase index, then severity), computes the
// summary, and builds the Result.
func finalize(masterName string, found, valid, gates int, issues []Issue) *Result {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].phaseIndex != issues[j].phaseIndex {
			return issues[i].phaseIndex < issues[j].phaseIndex
		}
		return issues[i].Severity < issues[j].Severity
	})

	summary := Summary{
		MasterPlan:  masterName,
		PhasesFound: found,
		PhasesValid: valid,
		GatesTotal:  gates,
	}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			summary.Errors++
		case SeverityWarning:
			summary.Warnings++
		case SeverityInfo:
			summary.Infos++
		}
	}

	return &Result{
		Passed:  summary.Errors == 0,
		Issues:  issues,
		Summary: summary,
	}
}
