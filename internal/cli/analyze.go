package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/pipeline"
)

var (
	outJSON            string
	outMD              string
	timeout            time.Duration
	fields             []string
	duplicates         string
	documentsDir       string
	documentFilter     string
	noCache            bool
	noFooter           bool
	noRobots           bool
	failOnInconsistent bool
	httpProxy          string
	httpsProxy         string
	llmProvider        string
	llmModel           string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <fact-store>",
	Short: "Analyse one fact store and report field consistency",
	Long: `Analyze reads a fact store (a JSON object mapping field names to the
facts each policy document states) and reports, per field, whether every
document agrees on the value.

The fact store may be a local path, an http(s) URL, or "-" for stdin.

Example:
  concord analyze facts.json
  concord analyze facts.json --fields password_minimum_length,recovery_time_objective
  concord analyze https://example.com/fact_index.json --json report.json --md report.md
  concord analyze facts.json --documents ./policies --fail-on-inconsistent
  cat facts.json | concord analyze - --llm openai`,
	Aliases: []string{"scan"},
	Args:    cobra.ExactArgs(1),
	RunE:    runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	registerAnalyzeFlags()
}

func registerAnalyzeFlags() {
	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	analyzeCmd.Flags().StringVar(&documentFilter, "document", "", "also list the fields one document contributed to")
	analyzeCmd.Flags().BoolVar(&failOnInconsistent, "fail-on-inconsistent", false, "exit with status 2 when any field is inconsistent")
	addAnalysisFlags(analyzeCmd.Flags())
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall analysis timeout")
}

// addAnalysisFlags registers the flags analyze and batch share
func addAnalysisFlags(flags *pflag.FlagSet) {
	flags.StringSliceVar(&fields, "fields", nil, "fields to analyse (default: configured fields; \"*\" for all)")
	flags.StringVar(&duplicates, "duplicates", "", "duplicate policy: last-wins, first-wins, flag")
	flags.StringVar(&documentsDir, "documents", "", "policy documents directory for source sentence lookup")
	flags.BoolVar(&noCache, "no-cache", false, "disable report cache")
	flags.BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	flags.BoolVar(&noRobots, "no-robots", false, "ignore robots.txt for remote fact stores")
	flags.StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	flags.StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	flags.StringVar(&llmProvider, "llm", "", "enable an LLM summary with this provider (openai, anthropic, ollama)")
	flags.StringVar(&llmModel, "llm-model", "", "LLM model name")
}

// buildConfig loads layered configuration and applies command flags on top
func buildConfig(flags *pflag.FlagSet) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if flags.Changed("fields") {
		cfg.Analysis.Fields = fields
	}
	for _, f := range cfg.Analysis.Fields {
		if f == "*" {
			cfg.Analysis.Fields = nil
			break
		}
	}
	if duplicates != "" {
		cfg.Analysis.Duplicates = duplicates
	}
	if documentsDir != "" {
		cfg.Provenance.DocumentsDir = documentsDir
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if noRobots {
		cfg.HTTP.RespectRobots = false
	}
	if httpProxy != "" {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if httpsProxy != "" {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	if llmProvider != "" {
		if err := applyLLMFlags(cfg, llmProvider, llmModel); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	source := args[0]

	cfg, err := buildConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	p.SetOutput(cmd.OutOrStdout())

	logger.Debug("analysing fact store",
		zap.String("source", source),
		zap.Strings("fields", cfg.Analysis.Fields),
		zap.String("duplicates", cfg.Analysis.Duplicates),
		zap.Bool("cache", cfg.Cache.Enabled))

	var result *pipeline.Result
	if source == "-" {
		data, readErr := io.ReadAll(cmd.InOrStdin())
		if readErr != nil {
			return fmt.Errorf("read stdin: %w", readErr)
		}
		result, err = p.AnalyzeBytes(ctx, "stdin", data)
	} else {
		result, err = p.Analyze(ctx, source)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := p.RenderReport(result, outJSON, outMD); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if documentFilter != "" {
		p.RenderDocument(result, documentFilter)
	}

	if failOnInconsistent && result.Report.InconsistentCount > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInconsistent, result.Report.InconsistentCount, result.Report.TotalFields)
	}
	return nil
}
