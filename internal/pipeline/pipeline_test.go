package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/concord/internal/cache"
	"github.com/ppiankov/concord/internal/llm"
	"github.com/ppiankov/concord/internal/model"
)

const policyFacts = `{
	"password_minimum_length": [
		{"value": "12", "document_title": "Information Security Policy",
		 "source_sentence": "Passwords must be at least 12 characters long."},
		{"value": "14", "document_title": "Access Management Policy"}
	],
	"recovery_time_objective": [
		{"value": "4 hours", "document_title": "Disaster Recovery Plan"},
		{"value": "4  HOURS", "document_title": "Business Continuity Plan"}
	]
}`

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Analysis.Fields = nil
	cfg.Cache.Enabled = false
	cfg.HTTP.RespectRobots = false
	cfg.LLM.Provider = ""
	return cfg
}

func newTestPipeline(t *testing.T, cfg *model.Config) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	p, err := NewPipeline(cfg, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	p.SetOutput(&out)
	return p, &out
}

type stubProvider struct {
	summary string
	calls   int
}

func (s *stubProvider) Name() string                     { return "stub" }
func (s *stubProvider) IsAvailable(context.Context) bool { return true }
func (s *stubProvider) Summarize(ctx context.Context, req llm.SummarizeRequest) (*llm.SummarizeResponse, error) {
	s.calls++
	return &llm.SummarizeResponse{Summary: s.summary, Model: "stub-1"}, nil
}

func TestAnalyzeBytes(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	result, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	rep := result.Report
	assert.Equal(t, 2, rep.TotalFields)
	assert.Equal(t, 1, rep.ConsistentCount)
	assert.Equal(t, 1, rep.InconsistentCount)
	assert.InDelta(t, 0.5, rep.ConsistencyRate, 1e-9)
	assert.Equal(t, map[string]int{"Information Security Policy": 1, "Access Management Policy": 1},
		rep.PerDocumentInconsistencyCounts)
	assert.Empty(t, rep.Provenance)
	assert.Nil(t, rep.LLM)
	assert.Contains(t, result.Digest, "sha256:")
	assert.False(t, result.Cached)
	assert.Equal(t, model.SourceBytes, result.Meta.Kind)
}

func TestAnalyzeBytes_MalformedPassesThrough(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))

	_, err := p.AnalyzeBytes(context.Background(), "bad", []byte(`{"f": {"value": "x"}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMalformedFactStore))
}

func TestNewPipeline_BadDuplicatePolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.Duplicates = "newest"
	_, err := NewPipeline(cfg, nil)
	assert.Error(t, err)
}

func TestAnalyzeBytes_CacheHit(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))
	p.cache = cache.NewMemoryCache(time.Minute, time.Minute)

	first, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)
	second, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Report.Verdicts, second.Report.Verdicts)
}

func TestAnalyzeBytes_FieldSelectionChangesCacheKey(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)

	all, _ := newTestPipeline(t, testConfig(t))
	all.cache = c
	_, err := all.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Analysis.Fields = []string{"recovery_time_objective"}
	one, _ := newTestPipeline(t, cfg)
	one.cache = c
	result, err := one.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	assert.False(t, result.Cached)
	assert.Equal(t, 1, result.Report.TotalFields)
	assert.Equal(t, 2, c.Len())
}

func TestAnalyzeBytes_Provenance(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "information_security_policy.md"),
		[]byte("Scope.\nPasswords must be at least 12 characters long.\n"), 0o644))

	cfg := testConfig(t)
	cfg.Provenance.DocumentsDir = dir
	p, _ := newTestPipeline(t, cfg)

	result, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	require.Len(t, result.Report.Provenance, 1)
	assert.True(t, result.Report.Provenance[0].Found)
	assert.True(t, result.Report.Provenance[0].Exact)
	for _, s := range result.Report.Signals {
		assert.NotEqual(t, model.SignalUnlocatedSource, s.Type)
	}
}

func TestNewPipeline_MissingDocumentsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provenance.DocumentsDir = filepath.Join(t.TempDir(), "missing")
	_, err := NewPipeline(cfg, nil)
	assert.Error(t, err)
}

func TestAnalyzeBytes_SummaryDoesNotChangeCountsOrDigest(t *testing.T) {
	plain, _ := newTestPipeline(t, testConfig(t))
	base, err := plain.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	provider := &stubProvider{summary: "`password_minimum_length` differs between two documents."}
	withLLM, _ := newTestPipeline(t, testConfig(t))
	withLLM.summarizer = llm.NewSummarizerWithProvider(provider, llm.Config{StrictFields: true}, nil)

	result, err := withLLM.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	require.NotNil(t, result.Report.LLM)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, base.Digest, result.Digest)
	assert.Equal(t, base.Report.ConsistentCount, result.Report.ConsistentCount)
	assert.Equal(t, base.Report.InconsistentCount, result.Report.InconsistentCount)
}

func TestAnalyze_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy_facts.json")
	require.NoError(t, os.WriteFile(path, []byte(policyFacts), 0o644))

	p, _ := newTestPipeline(t, testConfig(t))
	result, err := p.Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Policy Facts", result.Subject)
	assert.Equal(t, model.SourceFile, result.Meta.Kind)

	_, err = p.Analyze(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "fetch ")
}

func TestRenderReport(t *testing.T) {
	p, out := newTestPipeline(t, testConfig(t))
	result, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out", "report.json")
	mdPath := filepath.Join(dir, "report.md")
	require.NoError(t, p.RenderReport(result, jsonPath, mdPath))

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"consistency_rate": 0.5`)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	text := string(md)
	assert.Contains(t, text, "# Policy Consistency Report: Policies")
	assert.Contains(t, text, "| Consistency rate | 50.0% |")
	assert.Contains(t, text, "### Password Minimum Length (`password_minimum_length`)")
	assert.Contains(t, text, "| 14 | Access Management Policy |")
	assert.Contains(t, text, "## Documents by Inconsistency")
	assert.Contains(t, text, result.Digest)

	_, err = os.Stat(filepath.Join(dir, "report.llm.md"))
	assert.True(t, os.IsNotExist(err))

	assert.Contains(t, out.String(), "Consistency: 50.0% (1/2 fields aligned)")
	assert.Contains(t, out.String(), "✗ Password Minimum Length: 12 | 14")
}

func TestRenderer_MarkdownDeterministic(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(t))
	r := NewRenderer(false, nil)

	first, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)
	second, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	assert.Equal(t, r.Markdown(first), r.Markdown(second))
	assert.NotContains(t, r.Markdown(first), "Report digest")
}

func TestRenderDocument(t *testing.T) {
	p, out := newTestPipeline(t, testConfig(t))
	result, err := p.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	p.RenderDocument(result, "Access Management Policy")
	assert.Contains(t, out.String(), "✗ Password Minimum Length: 14 (others: 12)")

	out.Reset()
	p.RenderDocument(result, "Nobody")
	assert.Contains(t, out.String(), "no facts recorded")
}

func TestMdCell(t *testing.T) {
	assert.Equal(t, `a \| b c`, mdCell("a | b\nc"))
}

func TestAnalyzeBytes_DocumentEditMissesCache(t *testing.T) {
	docs := t.TempDir()
	docPath := filepath.Join(docs, "information_security_policy.md")
	require.NoError(t, os.WriteFile(docPath, []byte("Passwords must be at least 12 characters long."), 0o644))

	cfg := testConfig(t)
	cfg.Provenance.DocumentsDir = docs
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()
	cfg.Cache.MemoryTTL = time.Minute
	cfg.Cache.DiskTTL = time.Hour

	first, _ := newTestPipeline(t, cfg)
	fresh, err := first.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)
	require.Len(t, fresh.Report.Provenance, 1)
	assert.True(t, fresh.Report.Provenance[0].Found)

	unchanged, _ := newTestPipeline(t, cfg)
	again, err := unchanged.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)
	assert.True(t, again.Cached)

	require.NoError(t, os.WriteFile(docPath, []byte("Nothing here."), 0o644))

	edited, _ := newTestPipeline(t, cfg)
	result, err := edited.AnalyzeBytes(context.Background(), "Policies", []byte(policyFacts))
	require.NoError(t, err)

	assert.False(t, result.Cached)
	require.Len(t, result.Report.Provenance, 1)
	assert.False(t, result.Report.Provenance[0].Found)
	assert.Empty(t, result.Report.Provenance[0].Matched)
	assert.NotEqual(t, fresh.Digest, result.Digest)
}
