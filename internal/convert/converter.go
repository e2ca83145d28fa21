// Package convert turns free-form planning documents into the structured
// master-plan format through an audit-feedback loop: an agent rewrites the
// document, the audit engine checks the result, and audit issues feed the
// next rewrite until the plan passes or the iteration budget runs out.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/baton/internal/audit"
	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/logging"
)

// Invoker runs one conversion agent call and returns its raw text output.
// The production implementation shells out to the agent CLI; tests
// substitute canned output.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// AuditFunc checks a written master plan. Injectable so tests can force
// failures without crafting broken markdown.
type AuditFunc func(masterPath string) *audit.Result

// IterationReport records what one conversion iteration produced.
type IterationReport struct {
	Iteration int           `json:"iteration"`
	Files     []string      `json:"files"`
	Warnings  []string      `json:"warnings,omitempty"`
	Audit     *audit.Result `json:"audit"`
}

// Result is the outcome of a full conversion.
type Result struct {
	Converted  bool              `json:"converted"`
	MasterPath string            `json:"master_path,omitempty"`
	Iterations []IterationReport `json:"iterations"`
}

// Converter runs the conversion loop. Iterations are stateless: every
// invocation gets the full source document plus only the latest audit's
// issues, never a growing transcript.
type Converter struct {
	cfg     config.ConvertConfig
	invoker Invoker
	auditFn AuditFunc
	outDir  string
	logger  *logging.Logger
}

// NewConverter creates a Converter writing converted plans into outDir.
func NewConverter(cfg config.ConvertConfig, invoker Invoker, auditFn AuditFunc, outDir string, logger *logging.Logger) *Converter {
	if auditFn == nil {
		engine := audit.NewEngine()
		auditFn = engine.Audit
	}
	return &Converter{
		cfg:     cfg,
		invoker: invoker,
		auditFn: auditFn,
		outDir:  outDir,
		logger:  logger.WithComponent("convert"),
	}
}

// Convert runs up to MaxIterations agent invocations against the source
// document. Returns ErrAuditFailed (with the full iteration history on the
// Result) when no iteration produces a passing plan.
func (c *Converter) Convert(ctx context.Context, sourcePath string) (*Result, error) {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document: %w", err)
	}
	if err := os.MkdirAll(c.outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &Result{}
	var lastAudit *audit.Result

	for i := 1; i <= c.cfg.MaxIterations; i++ {
		prompt := conversionPrompt(string(source), lastAudit)

		iterCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
		output, err := c.invoker.Invoke(iterCtx, prompt)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// A failed invocation consumes the iteration; the next one
			// starts fresh anyway.
			c.logger.Warn("conversion invocation failed", "iteration", i, "error", err)
			result.Iterations = append(result.Iterations, IterationReport{Iteration: i})
			continue
		}

		files, duplicates, warnings := SplitFiles(output)
		report := IterationReport{Iteration: i, Warnings: warnings}
		for _, w := range warnings {
			c.logger.Warn("conversion output warning", "iteration", i, "warning", w)
		}
		dupIssues := make([]audit.Issue, 0, len(duplicates))
		for _, name := range duplicates {
			c.logger.Warn("conversion output duplicated a file", "iteration", i, "file", name)
			dupIssues = append(dupIssues, audit.Issue{
				Severity: audit.SeverityWarning,
				Code:     audit.CodeDuplicateFile,
				Message:  fmt.Sprintf("conversion produced file %q more than once; kept the last version", name),
			})
		}

		for _, f := range files {
			if err := c.writeFile(f); err != nil {
				return result, err
			}
			report.Files = append(report.Files, f.Name)
		}

		if len(files) == 0 {
			c.logger.Warn("conversion produced no files", "iteration", i)
			report.Audit = &audit.Result{Issues: []audit.Issue{{
				Severity: audit.SeverityError,
				Code:     audit.CodeNoFilesProduced,
				Message:  "conversion output contained no delimited plan files",
			}}}
			report.Audit.Summary.Errors = 1
			lastAudit = report.Audit
			result.Iterations = append(result.Iterations, report)
			continue
		}

		masterPath := c.masterPath(files)
		report.Audit = c.auditFn(masterPath)
		if len(dupIssues) > 0 {
			report.Audit.Issues = append(report.Audit.Issues, dupIssues...)
			report.Audit.Summary.Warnings += len(dupIssues)
		}
		result.Iterations = append(result.Iterations, report)
		lastAudit = report.Audit

		c.logger.Info("conversion iteration audited",
			"iteration", i,
			"files", len(files),
			"passed", report.Audit.Passed,
			"errors", report.Audit.Summary.Errors,
		)

		if report.Audit.Passed {
			result.Converted = true
			result.MasterPath = masterPath
			return result, nil
		}
	}

	return result, fmt.Errorf("no passing plan after %d iterations: %w",
		c.cfg.MaxIterations, baterr.ErrAuditFailed)
}

// writeFile writes one output file under outDir. Empty bodies are written:
// an empty notes scaffold is meaningful.
func (c *Converter) writeFile(f OutputFile) error {
	path := filepath.Join(c.outDir, filepath.Clean(f.Name))
	if !strings.HasPrefix(path, filepath.Clean(c.outDir)+string(filepath.Separator)) {
		return fmt.Errorf("output file %q escapes the output directory", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}
	if err := os.WriteFile(path, []byte(f.Body), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}

// masterPath picks the master plan among the produced files: a name
// containing "master" wins, otherwise the first file.
func (c *Converter) masterPath(files []OutputFile) string {
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.Name), "master") {
			return filepath.Join(c.outDir, f.Name)
		}
	}
	if len(files) > 0 {
		return filepath.Join(c.outDir, files[0].Name)
	}
	return ""
}

// conversionPrompt builds the iteration prompt: the format contract, the
// full source document, and the previous audit's issues verbatim.
func conversionPrompt(source string, prev *audit.Result) string {
	var b strings.Builder
	b.WriteString("Convert the planning document below into a phased master plan.\n\n")
	b.WriteString("Output format, exactly:\n")
	b.WriteString("- Each file you produce is wrapped as:\n")
	b.WriteString("  ---FILE: <relative-name>---\n")
	b.WriteString("  <file content>\n")
	b.WriteString("  ---END FILE---\n")
	b.WriteString("- Produce master_plan.md with a `## Phases` table of `| id | [title](file) |` rows, ")
	b.WriteString("plus one file per phase.\n")
	b.WriteString("- Every phase file needs a `## Gates` section with runnable verification commands, ")
	b.WriteString("a `## Tasks` checklist, and a notes output line (\"Write notes to: <path>\").\n")
	b.WriteString("- Phases that build on earlier ones declare `Depends On:` with phase ids.\n")

	if prev != nil && len(prev.Issues) > 0 {
		b.WriteString("\nA previous conversion attempt had these problems. Produce a corrected plan:\n\n")
		for _, issue := range prev.Issues {
			fmt.Fprintf(&b, "- [%s] %s: %s", issue.Severity, issue.Code, issue.Message)
			if issue.Location != "" {
				fmt.Fprintf(&b, " (%s)", issue.Location)
			}
			if issue.Suggestion != "" {
				fmt.Fprintf(&b, " Suggestion: %s", issue.Suggestion)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n---SOURCE DOCUMENT---\n")
	b.WriteString(source)
	b.WriteString("\n---END SOURCE DOCUMENT---\n")
	return b.String()
}
