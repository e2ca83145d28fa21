package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/baton/internal/config"
	"github.com/Iron-Ham/baton/internal/convert"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/report"
)

var convertCmd = &cobra.Command{
	Use:   "convert <document.md> <output-dir>",
	Short: "Convert a free-form planning document into a structured plan",
	Long: `Convert rewrites a planning document into the phased master-plan
format using an agent, writing the plan files into the output directory,
then audits the result. When the audit finds problems, the issues are fed
back into a fresh agent invocation, up to the iteration budget.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

var convertFlags struct {
	maxIterations int
	model         string
}

func init() {
	convertCmd.Flags().IntVar(&convertFlags.maxIterations, "max-iterations", 0, "conversion attempt budget (overrides config)")
	convertCmd.Flags().StringVar(&convertFlags.model, "model", "", "model for conversion (overrides config)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if convertFlags.maxIterations > 0 {
		cfg.Convert.MaxIterations = convertFlags.maxIterations
	}
	if convertFlags.model != "" {
		cfg.Convert.Model = convertFlags.model
	}

	sourcePath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	outDir, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}

	logger, err := logging.New("", cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	invoker := convert.NewAgentInvoker(cfg.Worker.Command, cfg.Convert.Model)
	converter := convert.NewConverter(cfg.Convert, invoker, nil, outDir, logger)

	result, convErr := converter.Convert(cmd.Context(), sourcePath)

	out := report.NewRenderer(os.Stdout)
	if result != nil {
		out.ConvertResult(result)
	}
	return convErr
}
