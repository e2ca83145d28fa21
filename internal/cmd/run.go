package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/internal/audit"
	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/orchestrator"
	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/qa"
	"github.com/Iron-Ham/baton/internal/report"
	"github.com/Iron-Ham/baton/internal/runstate"
	"github.com/Iron-Ham/baton/internal/tracker"
	"github.com/Iron-Ham/baton/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run <master-plan.md>",
	Short: "Execute a plan phase by phase",
	Long: `Run executes every phase of a master plan serially. Each phase is
handed to a fresh agent invocation, verified through its gate commands,
and retried with feedback when gates fail. Progress is checkpointed
after every transition.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runFlags struct {
	dryRun      bool
	resume      bool
	restart     bool
	yolo        bool
	sandbox     bool
	skipAudit   bool
	force       bool
	acceptRisks bool
	maxAttempts int
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "show what would run without invoking any worker")
	runCmd.Flags().BoolVar(&runFlags.resume, "resume", false, "continue an interrupted run from its checkpoint")
	runCmd.Flags().BoolVar(&runFlags.restart, "restart", false, "discard any existing run state and start from the first phase")
	runCmd.Flags().BoolVar(&runFlags.yolo, "yolo", false, "run unsandboxed with risk acceptance implied")
	runCmd.Flags().BoolVar(&runFlags.sandbox, "sandbox", false, "run workers in a network-restricted container")
	runCmd.Flags().BoolVar(&runFlags.skipAudit, "skip-audit", false, "skip the pre-run plan audit")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "run even when the plan targets already-completed issues")
	runCmd.Flags().BoolVar(&runFlags.acceptRisks, "accept-risks", false, "acknowledge unsandboxed execution in non-interactive runs")
	runCmd.Flags().IntVar(&runFlags.maxAttempts, "max-attempts", 0, "per-phase attempt budget (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)

	planPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	stateDir := cfg.Paths.ResolveStateDir(projectRoot)

	out := report.NewRenderer(os.Stderr)

	// Audit before anything touches state: a structurally broken plan
	// never starts a run.
	var auditResult *audit.Result
	if !runFlags.skipAudit {
		auditResult = audit.NewEngine().Audit(planPath)
		if !auditResult.Passed {
			out.Audit(auditResult, false)
			return baterr.ErrAuditFailed
		}
	}

	pln, err := plan.ParseMaster(planPath)
	if err != nil {
		return fmt.Errorf("failed to parse master plan: %w", err)
	}

	tr := tracker.New(stateDir)
	check, err := tr.Check(pln)
	if err != nil {
		return err
	}
	if check.Match != tracker.MatchNone {
		out.CompletionCheck(check)
	}

	if runFlags.dryRun {
		return dryRun(cfg, pln, stateDir, out)
	}

	logger, err := logging.New(stateDir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	if err := confirmCompletionConflict(cmd.Context(), check, logger, out); err != nil {
		return err
	}
	if auditResult != nil {
		if err := confirmGapFindings(cmd.Context(), auditResult, logger, out); err != nil {
			return err
		}
	}

	lock, err := runstate.AcquireLock(stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := runstate.NewStore(stateDir)
	if err != nil {
		return err
	}
	state, err := loadOrCreateState(store, pln)
	if err != nil {
		return err
	}
	if state.Complete() {
		out.Printf("This run already completed. Use --restart to run the plan again.\n")
		return nil
	}
	if err := store.Checkpoint(state); err != nil {
		return err
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	harness, err := worker.NewHarness(cfg.Worker, projectRoot, interactive, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watcher, err := worker.NewSignalWatcher(stateDir, logger); err == nil {
		defer watcher.Close()
		go watcher.Run(ctx)
		go func() {
			for range watcher.Signals {
				// Advisory only; the log line from the watcher is enough.
			}
		}()
	}

	controls := &orchestrator.Controls{}
	stopControls := watchControls(ctx, controls, confirmSkip(out), out)
	defer stopControls()

	orch := orchestrator.New(orchestrator.Options{
		Plan:     pln,
		State:    state,
		Store:    store,
		Config:   cfg.Orchestrator,
		Worker:   harness,
		Gates:    orchestrator.NewGateRunner(projectRoot, cfg.Orchestrator.GateTimeout(), logger),
		Controls: controls,
		Sink:     progressSink(out),
		Logger:   logger,
	})

	runErr := orch.Run(ctx)
	if runErr != nil {
		if baterr.Is(runErr, baterr.ErrQuitRequested) {
			out.Printf("Run stopped. Resume with: baton run --resume %s\n", args[0])
		}
		return runErr
	}

	if err := tr.Record(state.ID, pln); err != nil {
		logger.Warn("failed to record completion", "error", err)
	}
	out.Printf("All %d phases completed.\n", len(pln.Phases))
	return nil
}

// applyRunFlags layers command-line overrides onto the loaded config.
func applyRunFlags(cfg *config.Config) {
	if runFlags.maxAttempts > 0 {
		cfg.Orchestrator.MaxAttempts = runFlags.maxAttempts
	}
	if runFlags.sandbox {
		cfg.Worker.Sandbox = string(config.SandboxContainer)
	}
	if runFlags.yolo {
		cfg.Worker.Sandbox = string(config.SandboxNone)
		cfg.Worker.AcceptRisks = true
	}
	if runFlags.acceptRisks {
		cfg.Worker.AcceptRisks = true
	}
}

// loadOrCreateState resolves the resume/restart/fresh decision. Existing
// state requires an explicit choice so a forgotten checkpoint is never
// silently clobbered or silently resumed.
func loadOrCreateState(store *runstate.Store, pln *plan.Plan) (*runstate.RunState, error) {
	mode := runstate.ModeFlags{
		DryRun:    runFlags.dryRun,
		Yolo:      runFlags.yolo,
		SkipAudit: runFlags.skipAudit,
		Sandbox:   runFlags.sandbox,
	}

	if runFlags.restart {
		if err := store.Discard(); err != nil {
			return nil, err
		}
		return runstate.New(pln, mode), nil
	}

	if !store.Exists() {
		return runstate.New(pln, mode), nil
	}

	if !runFlags.resume {
		return nil, fmt.Errorf("a run is already in progress for this project; pass --resume to continue it or --restart to discard it")
	}
	state, err := store.Load()
	if err != nil {
		return nil, err
	}
	if state.PlanPath != pln.Path {
		return nil, fmt.Errorf("existing run is for %s, not %s; pass --restart to start over", state.PlanPath, pln.Path)
	}
	return state, nil
}

// operatorAttached reports whether anyone can answer a question: either
// the QA pipe is active or stdin is a terminal.
func operatorAttached() bool {
	if os.Getenv(qa.ModeEnvVar) == "pipe" {
		return true
	}
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// confirmCompletionConflict enforces the already-completed-work policy:
// forced runs proceed with a logged warning, attended runs ask, and
// unattended runs abort on any overlap.
func confirmCompletionConflict(ctx context.Context, check *tracker.CheckResult, logger *logging.Logger, out *report.Renderer) error {
	if check == nil || check.Match == tracker.MatchNone {
		return nil
	}
	if runFlags.force {
		logger.Warn("plan targets already-completed issues, continuing due to --force",
			"match", check.Match.String(), "overlap", len(check.Overlap))
		return nil
	}
	if !operatorAttached() {
		out.Printf("Use --force to run anyway.\n")
		return baterr.ErrCompletionConflict
	}

	ans, err := qa.New(logger).Ask(ctx, qa.Question{
		Gap:     qa.GapRisk,
		Text:    "This plan targets issues an earlier run already completed. Run it again?",
		Options: []string{"proceed", "abort"},
		Context: fmt.Sprintf("%d overlapping issue(s)", len(check.Overlap)),
	})
	if err != nil {
		return err
	}
	if !ans.Skipped() {
		switch strings.ToLower(ans.Text) {
		case "proceed", "yes", "y", "1":
			return nil
		}
	}
	return baterr.ErrCompletionConflict
}

// confirmGapFindings walks the operator through advisory audit findings
// before committing to a run. Each warning becomes one question; answering
// abort stops before any state is touched. Headless runs without the pipe
// protocol skip the questions since nobody can answer them.
func confirmGapFindings(ctx context.Context, result *audit.Result, logger *logging.Logger, out *report.Renderer) error {
	var gaps []audit.Issue
	for _, issue := range result.Issues {
		if issue.Severity == audit.SeverityWarning {
			gaps = append(gaps, issue)
		}
	}
	if len(gaps) == 0 {
		return nil
	}

	if !operatorAttached() {
		logger.Warn("plan has advisory findings but no operator is attached", "count", len(gaps))
		return nil
	}

	asker := qa.New(logger)
	for _, issue := range gaps {
		ans, err := asker.Ask(ctx, qa.Question{
			Gap:     gapForCode(issue.Code),
			Text:    fmt.Sprintf("%s. Proceed anyway?", issue.Message),
			Options: []string{"proceed", "abort"},
			Context: issue.Location,
		})
		if err != nil {
			return err
		}
		if ans.Skipped() {
			continue
		}
		switch strings.ToLower(ans.Text) {
		case "abort", "no", "n", "2":
			out.Printf("Stopping on %s.\n", issue.Code)
			return baterr.ErrAuditFailed
		}
	}
	return nil
}

// watchControls maps process signals onto run controls: SIGTSTP pauses at
// the next phase boundary, SIGUSR1 arms a skip of the next phase after
// confirmation. Quit stays on SIGINT/SIGTERM through the run context.
// The returned func detaches the handlers.
func watchControls(ctx context.Context, controls *orchestrator.Controls, confirm func() bool, out *report.Renderer) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTSTP, syscall.SIGUSR1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sigs:
				switch s {
				case syscall.SIGTSTP:
					controls.RequestPause()
					out.Printf("Pause requested; stopping at the next phase boundary.\n")
				case syscall.SIGUSR1:
					if confirm() {
						controls.RequestSkip()
						out.Printf("The next phase will be skipped.\n")
					}
				}
			}
		}
	}()
	return func() { signal.Stop(sigs) }
}

// confirmSkip asks the operator to confirm a skip request. Without a
// terminal there is no one to confirm, so the request is refused.
func confirmSkip(out *report.Renderer) func() bool {
	return func() bool {
		if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			out.Printf("Skip requested but no terminal is attached to confirm; ignoring.\n")
			return false
		}
		out.Printf("Skip the next phase? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func gapForCode(code audit.Code) qa.GapType {
	switch code {
	case audit.CodeMissingGates:
		return qa.GapMissingGates
	case audit.CodeUnknownDependency, audit.CodeCircularDependency:
		return qa.GapDependency
	case audit.CodeEmptyTasks, audit.CodeNoNotesOutput:
		return qa.GapScope
	case audit.CodeCompletionConflict:
		return qa.GapRisk
	}
	return qa.GapOther
}

func dryRun(cfg *config.Config, pln *plan.Plan, stateDir string, out *report.Renderer) error {
	store, err := runstate.NewStore(stateDir)
	if err != nil {
		return err
	}
	state := runstate.New(pln, runstate.ModeFlags{DryRun: true})
	if store.Exists() {
		if loaded, err := store.Load(); err == nil {
			state = loaded
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Plan:   pln,
		State:  state,
		Store:  store,
		Config: cfg.Orchestrator,
		Logger: logging.Nop(),
	})
	out.Preview(pln, orch.Preview())
	return nil
}

// progressSink surfaces a compact live trace of worker activity.
func progressSink(out *report.Renderer) orchestrator.EventSink {
	return func(phaseID string, ev worker.Event) {
		if ev.Kind != worker.EventAssistant || ev.Text == "" {
			return
		}
		text := strings.TrimSpace(ev.Text)
		if len(text) > 100 {
			text = text[:100] + "..."
		}
		out.Printf("  [%s] %s\n", phaseID, text)
	}
}
