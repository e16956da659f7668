package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/pipeline"
)

// SourceAnalyzer produces a consistency report for one fact store source
type SourceAnalyzer interface {
	Analyze(ctx context.Context, source string) (*pipeline.Result, error)
}

// AnalysisJob analyses a single source
type AnalysisJob struct {
	Source   string
	Analyzer SourceAnalyzer
	Limiter  *Limiter
}

// Execute runs the analysis, waiting on the host limiter for remote sources
func (j *AnalysisJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, j.Source); err != nil {
			return &SourceResult{Source: j.Source, Error: fmt.Errorf("rate limit: %w", err)}
		}
	}

	result, err := j.Analyzer.Analyze(ctx, j.Source)
	if err != nil {
		return &SourceResult{Source: j.Source, Error: err}
	}
	return &SourceResult{
		Source:  j.Source,
		Subject: result.Subject,
		Report:  &result.Report,
		Cached:  result.Cached,
		Result:  result,
	}
}

// SourceResult is the outcome for one source
type SourceResult struct {
	Source  string
	Subject string
	Report  *model.ConsistencyReport
	Cached  bool
	Result  *pipeline.Result // Full result for rendering; nil on error
	Error   error
}

// GetError returns the error from the analysis
func (r *SourceResult) GetError() error {
	return r.Error
}

// BatchProcessor analyses many sources concurrently
type BatchProcessor struct {
	analyzer    SourceAnalyzer
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor. A non-positive
// requestsPerSecond disables host rate limiting.
func NewBatchProcessor(analyzer SourceAnalyzer, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	b := &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
	if requestsPerSecond > 0 {
		b.limiter = NewLimiter(requestsPerSecond, burst)
	}
	return b
}

// ProcessSources analyses sources and returns results in input order
func (b *BatchProcessor) ProcessSources(ctx context.Context, sources []string) []*SourceResult {
	if len(sources) == 0 {
		return []*SourceResult{}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for _, source := range sources {
		pool.Submit(&AnalysisJob{
			Source:   source,
			Analyzer: b.analyzer,
			Limiter:  b.limiter,
		})
	}

	results := pool.Wait()

	out := make([]*SourceResult, len(sources))
	for i := range sources {
		if i < len(results) {
			if sr, ok := results[i].(*SourceResult); ok {
				out[i] = sr
				continue
			}
			out[i] = &SourceResult{Source: sources[i], Error: results[i].GetError()}
			continue
		}
		out[i] = &SourceResult{Source: sources[i], Error: context.Cause(ctx)}
	}

	return out
}

// ProcessFile reads sources from a file and analyses them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*SourceResult, error) {
	sources, err := ReadSourcesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return b.ProcessSources(ctx, sources), nil
}

// ReadSourcesFromFile reads sources (paths or URLs), one per line. Blank
// lines and # comments are ignored; duplicates keep their first position.
func ReadSourcesFromFile(filePath string) ([]string, error) {
	// #nosec G304 -- batch file path is supplied by the operator.
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			sources = append(sources, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return sources, nil
}

// Summary counts batch outcomes
type Summary struct {
	Sources      int
	Succeeded    int
	Failed       int
	Cached       int
	Inconsistent int // Sources with at least one inconsistent field
}

// Summarize counts successes, failures and inconsistent sources
func Summarize(results []*SourceResult) Summary {
	s := Summary{Sources: len(results)}
	for _, r := range results {
		if r.Error != nil || r.Report == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		if r.Cached {
			s.Cached++
		}
		if r.Report.InconsistentCount > 0 {
			s.Inconsistent++
		}
	}
	return s
}
