package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
)

// Summarizer attaches an optional narrative to a finished report. It never
// changes counts or verdicts, and failures degrade to warnings.
type Summarizer struct {
	provider Provider
	config   Config
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer. An empty provider yields a disabled
// summarizer, not an error.
func NewSummarizer(config Config, logger *zap.Logger) (*Summarizer, error) {
	logger = logging.OrNop(logger)

	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}

	return &Summarizer{
		provider: provider,
		config:   config,
		logger:   logger,
	}, nil
}

// NewSummarizerWithProvider wraps an existing provider
func NewSummarizerWithProvider(provider Provider, config Config, logger *zap.Logger) *Summarizer {
	logger = logging.OrNop(logger)
	return &Summarizer{provider: provider, config: config, logger: logger}
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider name, or ""
func (s *Summarizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary returns nil when disabled. Provider problems are reported
// as warnings on an enabled summary; the error return is reserved for
// cancellation.
func (s *Summarizer) GenerateSummary(ctx context.Context, report model.ConsistencyReport) (*model.LLMSummary, error) {
	if !s.IsEnabled() {
		return nil, nil
	}

	summary := &model.LLMSummary{
		Enabled:      true,
		Provider:     s.provider.Name(),
		Model:        s.config.Model,
		StrictFields: s.config.StrictFields,
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("LLM provider %s is not available; summary skipped", s.provider.Name()))
		return summary, nil
	}

	allowed := ReportFields(report)
	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:        report,
		AllowedFields: allowed,
		Model:         s.config.Model,
		MaxTokens:     s.config.MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("LLM summary failed", zap.String("provider", s.provider.Name()), zap.Error(err))
		if errors.Is(err, ErrCitationLeak) {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("Summary rejected: %v", err))
		} else {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("Summary generation failed: %v", err))
		}
		return summary, nil
	}

	summary.Model = resp.Model
	summary.SummaryMD = resp.Summary
	if resp.TokensUsed > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))
	}
	if s.config.StrictFields {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("Verified %d field citation(s) against %d report field(s)", len(resp.CitedFields), len(allowed)))
	} else {
		summary.Warnings = append(summary.Warnings, "Field citations were not verified")
	}

	return summary, nil
}

// RenderSeparateMarkdown renders the summary as its own Markdown document,
// kept apart from the computed report
func RenderSeparateMarkdown(summary *model.LLMSummary) string {
	if summary == nil || !summary.Enabled {
		return ""
	}

	var b strings.Builder
	b.WriteString("# LLM Summary\n\n")
	b.WriteString("> **GENERATED CONTENT.** This text was written by a language model from the computed report. ")
	b.WriteString("It does not change any count or verdict, and it does not say which value is correct.\n\n")

	b.WriteString("| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Provider | %s |\n", summary.Provider)
	modelName := summary.Model
	if modelName == "" {
		modelName = "(default)"
	}
	fmt.Fprintf(&b, "| Model | %s |\n", modelName)
	fmt.Fprintf(&b, "| Strict field citations | %t |\n\n", summary.StrictFields)

	b.WriteString("## Summary\n\n")
	if summary.SummaryMD == "" {
		b.WriteString("_No summary was generated._\n")
	} else {
		b.WriteString(summary.SummaryMD)
		b.WriteString("\n")
	}

	if len(summary.Warnings) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, w := range summary.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}

	return b.String()
}
