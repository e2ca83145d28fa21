// Package report renders audit results, dry-run previews, and run status
// for the terminal. Styled output is used on TTYs; everything degrades to
// plain text when piped.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Iron-Ham/baton/internal/audit"
	"github.com/Iron-Ham/baton/internal/convert"
	"github.com/Iron-Ham/baton/internal/orchestrator"
	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/runstate"
	"github.com/Iron-Ham/baton/internal/tracker"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Renderer writes human-facing reports. Construct with NewRenderer.
type Renderer struct {
	w     io.Writer
	color bool
}

// NewRenderer creates a Renderer for w. Styling is enabled only when w is
// a terminal.
func NewRenderer(w io.Writer) *Renderer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{w: w, color: color}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// Audit renders a full audit result: issues grouped in order, then the
// summary block.
func (r *Renderer) Audit(result *audit.Result, verbose bool) {
	fmt.Fprintln(r.w, r.style(sectionStyle, "Plan audit"))
	fmt.Fprintln(r.w)

	for _, issue := range result.Issues {
		if issue.Severity == audit.SeverityInfo && !verbose {
			continue
		}
		r.issue(issue)
	}
	if len(result.Issues) == 0 {
		fmt.Fprintln(r.w, r.style(okStyle, "No issues found."))
	}

	fmt.Fprintln(r.w)
	s := result.Summary
	fmt.Fprintf(r.w, "%s %d phases, %d valid, %d gates\n",
		r.style(titleStyle, "Summary:"), s.PhasesFound, s.PhasesValid, s.GatesTotal)
	fmt.Fprintf(r.w, "%s, %s, %s\n",
		r.count(errorStyle, s.Errors, "error"),
		r.count(warnStyle, s.Warnings, "warning"),
		r.count(infoStyle, s.Infos, "info"))

	fmt.Fprintln(r.w)
	if result.Passed {
		fmt.Fprintln(r.w, r.style(okStyle, "PASSED"))
	} else {
		fmt.Fprintln(r.w, r.style(errorStyle, "FAILED"))
	}
}

func (r *Renderer) issue(issue audit.Issue) {
	var tag string
	switch issue.Severity {
	case audit.SeverityError:
		tag = r.style(errorStyle, "ERROR")
	case audit.SeverityWarning:
		tag = r.style(warnStyle, "WARN")
	default:
		tag = r.style(infoStyle, "INFO")
	}
	fmt.Fprintf(r.w, "%s  %s  %s\n", tag, r.style(dimStyle, string(issue.Code)), issue.Message)
	if issue.Location != "" {
		fmt.Fprintf(r.w, "       %s\n", r.style(dimStyle, issue.Location))
	}
	if issue.Suggestion != "" {
		fmt.Fprintf(r.w, "       %s\n", issue.Suggestion)
	}
}

func (r *Renderer) count(s lipgloss.Style, n int, noun string) string {
	text := fmt.Sprintf("%d %s", n, noun)
	if n != 1 {
		text += "s"
	}
	if n == 0 {
		return r.style(dimStyle, text)
	}
	return r.style(s, text)
}

// Preview renders the dry-run execution table.
func (r *Renderer) Preview(p *plan.Plan, previews []orchestrator.PhasePreview) {
	fmt.Fprintln(r.w, r.style(sectionStyle, "Execution preview"))
	if p.Title != "" {
		fmt.Fprintln(r.w, r.style(dimStyle, p.Title))
	}
	fmt.Fprintln(r.w)

	for i, pv := range previews {
		action := "run"
		style := okStyle
		switch {
		case pv.Status.Done():
			action = "skip (" + string(pv.Status) + ")"
			style = dimStyle
		case !pv.WouldRun:
			action = "blocked"
			style = errorStyle
		}
		fmt.Fprintf(r.w, "%2d. %-24s %s  %s\n",
			i+1, pv.ID+": "+pv.Title,
			r.style(style, action),
			r.style(dimStyle, fmt.Sprintf("%d gates", pv.Gates)))
	}
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.style(dimStyle, "Dry run: no workers were invoked and no state was written."))
}

// Status renders the persisted run state for the status command.
func (r *Renderer) Status(state *runstate.RunState, p *plan.Plan) {
	fmt.Fprintln(r.w, r.style(sectionStyle, "Run status"))
	fmt.Fprintf(r.w, "%s %s\n", r.style(titleStyle, "Run:"), state.ID)
	fmt.Fprintf(r.w, "%s %s\n", r.style(titleStyle, "Plan:"), state.PlanPath)
	fmt.Fprintf(r.w, "%s %s\n", r.style(titleStyle, "Started:"), state.StartedAt.Local().Format(time.RFC1123))
	if state.CompletedAt != nil {
		fmt.Fprintf(r.w, "%s %s\n", r.style(titleStyle, "Completed:"), state.CompletedAt.Local().Format(time.RFC1123))
	}
	fmt.Fprintln(r.w)

	ids := r.orderedPhaseIDs(state, p)
	for _, id := range ids {
		ps := state.Phases[id]
		fmt.Fprintf(r.w, "  %-24s %s", id, r.statusBadge(ps.Status))
		if ps.Attempts > 1 {
			fmt.Fprintf(r.w, "  %s", r.style(dimStyle, fmt.Sprintf("%d attempts", ps.Attempts)))
		}
		fmt.Fprintln(r.w)
	}
}

// orderedPhaseIDs lists phase ids in plan order when the plan is
// available, falling back to sorted map order.
func (r *Renderer) orderedPhaseIDs(state *runstate.RunState, p *plan.Plan) []string {
	if p != nil {
		ids := make([]string, 0, len(p.Phases))
		for _, ph := range p.Phases {
			if _, ok := state.Phases[ph.ID]; ok {
				ids = append(ids, ph.ID)
			}
		}
		if len(ids) == len(state.Phases) {
			return ids
		}
	}
	ids := make([]string, 0, len(state.Phases))
	for id := range state.Phases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Renderer) statusBadge(s plan.PhaseStatus) string {
	switch s {
	case plan.StatusCompleted:
		return r.style(okStyle, string(s))
	case plan.StatusFailed:
		return r.style(errorStyle, string(s))
	case plan.StatusRunning, plan.StatusAwaitingGates, plan.StatusRetryPending:
		return r.style(warnStyle, string(s))
	case plan.StatusSkipped:
		return r.style(dimStyle, string(s))
	default:
		return string(s)
	}
}

// CompletionCheck renders a completion-tracker overlap warning.
func (r *Renderer) CompletionCheck(check *tracker.CheckResult) {
	if check.Match == tracker.MatchNone {
		return
	}

	label := "Some of this plan's issues were already completed by an earlier run:"
	if check.Match == tracker.MatchFull {
		label = "Every issue this plan targets was already completed by an earlier run:"
	}
	fmt.Fprintln(r.w, r.style(warnStyle, label))
	for _, ref := range check.Overlap {
		fmt.Fprintf(r.w, "  - %s\n", ref.String())
	}
	if len(check.Missing) > 0 {
		fmt.Fprintln(r.w, "Still open:")
		for _, ref := range check.Missing {
			fmt.Fprintf(r.w, "  - %s\n", ref.String())
		}
	}
}

// ConvertResult renders the conversion loop's outcome.
func (r *Renderer) ConvertResult(result *convert.Result) {
	if result.Converted {
		fmt.Fprintf(r.w, "%s converted in %d iteration%s: %s\n",
			r.style(okStyle, "OK"), len(result.Iterations),
			plural(len(result.Iterations)), result.MasterPath)
		return
	}
	fmt.Fprintf(r.w, "%s no passing plan after %d iteration%s\n",
		r.style(errorStyle, "FAILED"), len(result.Iterations), plural(len(result.Iterations)))
	if n := len(result.Iterations); n > 0 && result.Iterations[n-1].Audit != nil {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "Last audit:")
		for _, issue := range result.Iterations[n-1].Audit.Issues {
			r.issue(issue)
		}
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Printf writes a formatted line through the renderer's writer.
func (r *Renderer) Printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}
