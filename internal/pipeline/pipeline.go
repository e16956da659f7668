package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/analyze"
	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/factstore"
	"github.com/ppiankov/concord/internal/llm"
	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/provenance"
	"github.com/ppiankov/concord/internal/report"
)

// Pipeline runs fetch, load, analyze, assemble, provenance and the
// optional LLM summary for one fact store at a time
type Pipeline struct {
	fetcher    *Fetcher
	loader     *factstore.Loader
	analyzer   *analyze.Analyzer
	assembler  *report.Assembler
	locator    *provenance.Locator
	corpus     *provenance.Corpus
	summarizer *llm.Summarizer // nil when disabled
	cache      cache.Cache     // nil when disabled
	renderer   *Renderer
	config     *model.Config
	logger     *zap.Logger
	cacheOpts  []string
}

// NewPipeline builds a pipeline from configuration
func NewPipeline(cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	logger = logging.OrNop(logger)

	policy, err := analyze.ParseDuplicatePolicy(cfg.Analysis.Duplicates)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		fetcher: NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes,
			cfg.HTTP.RespectRobots, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
		loader:    factstore.NewLoader(logger.Named("factstore")),
		analyzer:  analyze.NewAnalyzer(analyze.Options{Fields: cfg.Analysis.Fields, Duplicates: policy}),
		assembler: report.NewAssembler(),
		locator:   provenance.NewLocator(cfg.Concurrency.ProvenanceWorkers, cfg.Provenance.ContextChars),
		renderer:  NewRenderer(cfg.Output.IncludeFooter, os.Stdout),
		config:    cfg,
		logger:    logger,
		cacheOpts: []string{
			"fields=" + strings.Join(cfg.Analysis.Fields, ","),
			"duplicates=" + string(policy),
			"documents=" + cfg.Provenance.DocumentsDir,
			fmt.Sprintf("context=%d", cfg.Provenance.ContextChars),
		},
	}

	if dir := cfg.Provenance.DocumentsDir; dir != "" {
		corpus, err := provenance.LoadCorpus(dir)
		if err != nil {
			return nil, fmt.Errorf("load policy documents: %w", err)
		}
		for _, w := range corpus.Warnings {
			logger.Warn("policy document skipped", zap.String("detail", w))
		}
		logger.Debug("loaded policy documents", zap.Int("documents", corpus.Len()))
		p.corpus = corpus
		// cached reports embed sentence lookups, so document edits must miss the cache
		p.cacheOpts = append(p.cacheOpts, "corpus="+corpus.Digest())
	}

	if cfg.Cache.Enabled {
		p.cache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}

	if cfg.LLM.Provider != "" {
		summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.HTTP), logger.Named("llm"))
		if err != nil {
			logger.Warn("LLM summaries disabled", zap.Error(err))
		} else {
			p.summarizer = summarizer
		}
	}

	return p, nil
}

// SetOutput redirects the terminal summary; nil discards it
func (p *Pipeline) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	p.renderer.out = w
}

// Result is one analysed fact store
type Result struct {
	Subject string
	Source  string
	Meta    model.FetchMeta
	Report  model.ConsistencyReport
	Digest  string // sha256 of the report without the LLM summary
	Cached  bool
}

// Analyze fetches a source (path or URL) and analyses it
func (p *Pipeline) Analyze(ctx context.Context, source string) (*Result, error) {
	fetched, err := p.fetcher.FetchWithRetry(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	return p.analyzeData(ctx, source, fetched.Subject, fetched.Meta, fetched.Data)
}

// AnalyzeBytes analyses a fact store already in memory
func (p *Pipeline) AnalyzeBytes(ctx context.Context, subject string, data []byte) (*Result, error) {
	meta := model.FetchMeta{Kind: model.SourceBytes, Location: subject, Size: int64(len(data))}
	return p.analyzeData(ctx, subject, subject, meta, data)
}

func (p *Pipeline) analyzeData(ctx context.Context, source, subject string, meta model.FetchMeta, data []byte) (*Result, error) {
	log := p.logger.With(zap.String("source", source))
	key := cache.ReportKey(data, p.cacheOpts...)

	rep, cached := p.cachedReport(key, log)
	if !cached {
		store, err := p.loader.LoadBytes(data)
		if err != nil {
			return nil, err
		}

		if store.IsEmpty() {
			log.Warn("fact store has no fields")
		}
		log.Debug("fact store loaded",
			zap.Strings("fields", store.FieldNames()),
			zap.Strings("documents", store.DocumentTitles()),
			zap.Int("skipped", store.SkippedCount()))

		verdicts := p.analyzer.Analyze(store)
		rep = p.assembler.Assemble(verdicts, store.SkippedCount())

		if p.corpus != nil {
			rep.Provenance = p.locator.Locate(ctx, p.corpus, rep.Verdicts)
			if sig, ok := provenance.UnlocatedSignal(rep.Provenance); ok {
				rep.Signals = append(rep.Signals, sig)
			}
		}

		p.storeReport(key, rep, log)
	}

	digest, err := report.Digest(rep)
	if err != nil {
		return nil, err
	}

	log.Info("fact store analysed",
		zap.Int("fields", rep.TotalFields),
		zap.Int("inconsistent", rep.InconsistentCount),
		zap.Int("skipped", rep.SkippedCount),
		zap.Bool("cached", cached))

	// the summary comes last so it can never influence the counts
	if p.summarizer.IsEnabled() {
		summary, err := p.summarizer.GenerateSummary(ctx, rep)
		if err != nil {
			return nil, fmt.Errorf("LLM summary: %w", err)
		}
		rep.LLM = summary
	}

	return &Result{
		Subject: subject,
		Source:  source,
		Meta:    meta,
		Report:  rep,
		Digest:  digest,
		Cached:  cached,
	}, nil
}

func (p *Pipeline) cachedReport(key string, log *zap.Logger) (model.ConsistencyReport, bool) {
	if p.cache == nil {
		return model.ConsistencyReport{}, false
	}
	data, ok := p.cache.Get(key)
	if !ok {
		return model.ConsistencyReport{}, false
	}
	var rep model.ConsistencyReport
	if err := json.Unmarshal(data, &rep); err != nil {
		log.Warn("discarding unreadable cached report", zap.Error(err))
		_ = p.cache.Delete(key)
		return model.ConsistencyReport{}, false
	}
	log.Debug("report cache hit", zap.String("key", key))
	return rep, true
}

func (p *Pipeline) storeReport(key string, rep model.ConsistencyReport, log *zap.Logger) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		log.Warn("cannot encode report for cache", zap.Error(err))
		return
	}
	if err := p.cache.Set(key, data, 0); err != nil {
		log.Warn("report cache write failed", zap.Error(err))
	}
}

// RenderReport writes the requested outputs and prints the terminal summary
func (p *Pipeline) RenderReport(result *Result, jsonPath, mdPath string) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(result, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.logger.Info("wrote JSON report", zap.String("path", jsonPath))
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(result, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.logger.Info("wrote Markdown report", zap.String("path", mdPath))

		if result.Report.LLM != nil && result.Report.LLM.Enabled {
			llmPath := strings.TrimSuffix(mdPath, ".md") + ".llm.md"
			if err := p.renderer.RenderLLMMarkdown(llm.RenderSeparateMarkdown(result.Report.LLM), llmPath); err != nil {
				p.logger.Warn("failed to write LLM summary", zap.Error(err))
			} else {
				p.logger.Info("wrote LLM summary", zap.String("path", llmPath))
			}
		}
	}

	p.renderer.RenderSummary(result)
	return nil
}

// RenderDocument prints the fields one document contributed to
func (p *Pipeline) RenderDocument(result *Result, title string) {
	p.renderer.RenderDocument(result, title)
}
