package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/pipeline"
	"github.com/ppiankov/concord/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Analyse many fact stores listed in a file",
	Long: `Batch analyses fact stores concurrently:
- Read sources (paths or URLs) from the input file, one per line
- Analyse them in parallel with a configurable worker count
- Pace requests per remote host
- Write a JSON and a Markdown report per source

Example:
  concord batch sources.txt
  concord batch sources.txt --concurrency 8 --output-dir ./reports
  concord batch sources.txt --documents ./policies --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	registerBatchFlags()
}

func registerBatchFlags() {
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: configured workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./concord-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&failOnInconsistent, "fail-on-inconsistent", false, "exit with status 2 when any source has an inconsistent field")
	addAnalysisFlags(batchCmd.Flags())
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := buildConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "  Concord Batch Analysis\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Input file:   %s\n", file)
	fmt.Fprintf(out, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(out, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(out, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(out, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(out, "\n")

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	// per-source terminal summaries would interleave; the batch prints its own
	p.SetOutput(nil)

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers,
		cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)

	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	used := make(map[string]int)
	for _, result := range results {
		if result.Error != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", result.Source, result.Error)
			continue
		}

		slug := uniqueSlug(sanitizeFilename(result.Subject), used)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := p.RenderReport(result.Result, jsonPath, mdPath); err != nil {
			logger.Warn("render failed", zap.String("source", result.Source), zap.Error(err))
			fmt.Fprintf(out, "✗ %s: %v\n", result.Source, err)
			continue
		}

		mark := "✓"
		if result.Report.InconsistentCount > 0 {
			mark = "!"
		}
		fmt.Fprintf(out, "%s %s (%d/%d fields consistent)\n", mark, result.Subject,
			result.Report.ConsistentCount, result.Report.TotalFields)
	}

	summary := worker.Summarize(results)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "  Batch Complete\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Total:         %d sources\n", summary.Sources)
	fmt.Fprintf(out, "  Success:       %d (%d cached)\n", summary.Succeeded, summary.Cached)
	fmt.Fprintf(out, "  Failures:      %d\n", summary.Failed)
	fmt.Fprintf(out, "  Inconsistent:  %d\n", summary.Inconsistent)
	fmt.Fprintf(out, "  Output:        %s\n", outputDir)
	fmt.Fprintf(out, "\n")

	if failOnInconsistent && summary.Inconsistent > 0 {
		return fmt.Errorf("%w: %d source(s)", ErrInconsistent, summary.Inconsistent)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename turns a subject into a safe file name
func sanitizeFilename(s string) string {
	s = strings.ToLower(filenameReplacer.Replace(strings.TrimSpace(s)))
	s = strings.Trim(s, ".-_")
	if s == "" {
		s = "report"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// uniqueSlug suffixes repeated slugs so reports do not overwrite each other
func uniqueSlug(slug string, used map[string]int) string {
	used[slug]++
	if n := used[slug]; n > 1 {
		return fmt.Sprintf("%s-%d", slug, n)
	}
	return slug
}
