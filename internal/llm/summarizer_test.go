package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/concord/internal/model"
)

type mockProvider struct {
	available bool
	response  *SummarizeResponse
	err       error
	lastReq   SummarizeRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return m.available }

func TestNewSummarizer_Disabled(t *testing.T) {
	s, err := NewSummarizer(Config{}, nil)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())
	assert.Equal(t, "", s.ProviderName())

	summary, err := s.GenerateSummary(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Nil(t, summary)

	var nilSummarizer *Summarizer
	assert.False(t, nilSummarizer.IsEnabled())
}

func TestNewSummarizer_BadProvider(t *testing.T) {
	_, err := NewSummarizer(Config{Provider: "openai"}, nil)
	assert.Error(t, err)
}

func TestSummarizer_Unavailable(t *testing.T) {
	s := NewSummarizerWithProvider(&mockProvider{available: false}, Config{StrictFields: true}, nil)

	summary, err := s.GenerateSummary(context.Background(), sampleReport())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Enabled)
	assert.Empty(t, summary.SummaryMD)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "not available")
}

func TestSummarizer_Success(t *testing.T) {
	provider := &mockProvider{
		available: true,
		response: &SummarizeResponse{
			Summary:     "`password_minimum_length` differs between two documents.",
			CitedFields: []string{"password_minimum_length"},
			Model:       "mock-1",
			TokensUsed:  42,
		},
	}
	s := NewSummarizerWithProvider(provider, Config{Model: "mock-1", MaxTokens: 300, StrictFields: true}, nil)
	report := sampleReport()

	summary, err := s.GenerateSummary(context.Background(), report)
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "mock", summary.Provider)
	assert.Equal(t, "mock-1", summary.Model)
	assert.True(t, summary.StrictFields)
	assert.Equal(t, provider.response.Summary, summary.SummaryMD)
	assert.Contains(t, summary.Warnings, "Tokens used: 42")
	assert.Contains(t, summary.Warnings, "Verified 1 field citation(s) against 2 report field(s)")

	assert.Equal(t, []string{"password_minimum_length", "recovery_time_objective"}, provider.lastReq.AllowedFields)
	assert.Equal(t, 300, provider.lastReq.MaxTokens)

	// the report itself is untouched
	assert.Equal(t, sampleReport(), report)
}

func TestSummarizer_ProviderError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSummarizerWithProvider(&mockProvider{available: true, err: errors.New("API rate limit exceeded")}, Config{}, zap.New(core))

	summary, err := s.GenerateSummary(context.Background(), sampleReport())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Enabled)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "failed")
	assert.Contains(t, summary.Warnings[0], "rate limit")
	assert.Equal(t, 1, logs.FilterMessage("LLM summary failed").Len())
}

func TestSummarizer_CitationLeakRejected(t *testing.T) {
	leak := fmt.Errorf("%w: model cited unknown field %q", ErrCitationLeak, "mfa_required")
	s := NewSummarizerWithProvider(&mockProvider{available: true, err: leak}, Config{StrictFields: true}, nil)

	summary, err := s.GenerateSummary(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Empty(t, summary.SummaryMD)
	assert.True(t, strings.HasPrefix(summary.Warnings[0], "Summary rejected"))
}

func TestSummarizer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSummarizerWithProvider(&mockProvider{available: true, err: context.Canceled}, Config{}, nil)

	summary, err := s.GenerateSummary(ctx, sampleReport())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, summary)
}

func TestRenderSeparateMarkdown(t *testing.T) {
	assert.Empty(t, RenderSeparateMarkdown(nil))
	assert.Empty(t, RenderSeparateMarkdown(&model.LLMSummary{Enabled: false}))

	md := RenderSeparateMarkdown(&model.LLMSummary{
		Enabled:      true,
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		StrictFields: true,
		SummaryMD:    "Two documents disagree.",
		Warnings:     []string{"Tokens used: 150"},
	})
	for _, want := range []string{"# LLM Summary", "GENERATED CONTENT", "| Provider | openai |", "| Model | gpt-4o-mini |",
		"| Strict field citations | true |", "Two documents disagree.", "## Notes", "- Tokens used: 150"} {
		assert.Contains(t, md, want)
	}

	empty := RenderSeparateMarkdown(&model.LLMSummary{Enabled: true, Provider: "ollama"})
	assert.Contains(t, empty, "_No summary was generated._")
	assert.Contains(t, empty, "| Model | (default) |")
	assert.NotContains(t, empty, "## Notes")
}

func TestBuildPrompt(t *testing.T) {
	report := sampleReport()
	prompt := BuildPrompt(report, ReportFields(report))

	for _, want := range []string{
		"NEVER decides which value is correct",
		"- `password_minimum_length`",
		"- `recovery_time_objective`",
		"Fields analysed: 2",
		"Consistency rate: 50.0%",
		`"12" stated by "Information Security Policy"`,
		`"14" stated by "Access Management Policy"`,
		`"Access Management Policy": 1`,
	} {
		assert.Contains(t, prompt, want)
	}
	// consistent fields are listed as citable but not described
	assert.NotContains(t, prompt, `"4 hours"`)

	assert.Contains(t, BuildPrompt(model.ConsistencyReport{}, nil), "(No fields available)")
}

func TestJoinFields_Truncates(t *testing.T) {
	fields := make([]string, 55)
	for i := range fields {
		fields[i] = fmt.Sprintf("field_%d", i)
	}
	out := joinFields(fields)
	assert.Contains(t, out, "`field_49`")
	assert.NotContains(t, out, "`field_50`")
	assert.Contains(t, out, "... and 5 more fields")
}

func TestExtractFieldCitations(t *testing.T) {
	got := extractFieldCitations("`password_minimum_length` is `12` in one and `14` in another; " +
		"`password_minimum_length` again, `recovery_time_objective`, and `not an id`.")
	assert.Equal(t, []string{"password_minimum_length", "recovery_time_objective"}, got)

	assert.NoError(t, checkCitations(got, []string{"password_minimum_length", "recovery_time_objective"}))
	err := checkCitations(got, []string{"password_minimum_length"})
	assert.ErrorIs(t, err, ErrCitationLeak)
	assert.Contains(t, err.Error(), "recovery_time_objective")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Provider)
	assert.True(t, cfg.StrictFields)
	assert.Positive(t, cfg.Timeout)
	assert.Positive(t, cfg.MaxTokens)
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(
		model.LLMConfig{Provider: "ollama", Model: "mistral", Timeout: 10, MaxTokens: 500, StrictFields: true},
		model.HTTPConfig{HTTPProxy: "http://proxy:3128", NoProxy: "localhost"},
	)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "mistral", cfg.Model)
	assert.Equal(t, 500, cfg.MaxTokens)
	assert.Equal(t, "http://proxy:3128", cfg.HTTPProxy)
	assert.Equal(t, "localhost", cfg.NoProxy)
}
