package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/internal/config"
	baterr "github.com/Iron-Ham/baton/internal/errors"
	"github.com/Iron-Ham/baton/internal/plan"
	"github.com/Iron-Ham/baton/internal/report"
	"github.com/Iron-Ham/baton/internal/runstate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the current run",
	Long: `Status reads the checkpointed run state for this project and shows
where each phase stands. Read-only; safe while a run is in progress.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}

	store, err := runstate.NewStore(cfg.Paths.ResolveStateDir(projectRoot))
	if err != nil {
		return err
	}
	state, err := store.Load()
	if err != nil {
		if baterr.Is(err, baterr.ErrStateNotFound) {
			report.NewRenderer(os.Stdout).Printf("No run in progress.\n")
			return nil
		}
		return err
	}

	// Best effort: the plan gives phase ordering, but status still works
	// if the plan file moved since the run started.
	pln, _ := plan.ParseMaster(state.PlanPath)

	report.NewRenderer(os.Stdout).Status(state, pln)
	return nil
}
