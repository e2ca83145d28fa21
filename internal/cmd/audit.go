package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/internal/audit"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/report"
)

var auditCmd = &cobra.Command{
	Use:   "audit <master-plan.md>",
	Short: "Validate a plan without running anything",
	Long: `Audit checks a master plan and every phase file it references:
structure, gates, notes contracts, and the dependency graph. Audits are
deterministic and read-only; the same plan always yields the same
result.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var auditFlags struct {
	strict  bool
	verbose bool
}

func init() {
	auditCmd.Flags().BoolVar(&auditFlags.strict, "strict", false, "fail on warnings as well as errors")
	auditCmd.Flags().BoolVar(&auditFlags.verbose, "verbose", false, "show info-level findings")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	planPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	result := audit.NewEngine().Audit(planPath)

	out := report.NewRenderer(os.Stdout)
	out.Audit(result, auditFlags.verbose)

	passed := result.Passed
	if auditFlags.strict {
		passed = result.PassedStrict()
	}
	if !passed {
		return baterr.ErrAuditFailed
	}
	return nil
}
