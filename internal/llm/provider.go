package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/util"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize describes the report without judging which value is correct
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	Report model.ConsistencyReport

	// AllowedFields is the strict allowlist of field identifiers the model
	// may cite in backticks
	AllowedFields []string

	Prompt    string // Empty means BuildPrompt
	Model     string // Provider-specific
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary     string
	CitedFields []string // Field identifiers the model cited
	Model       string
	TokensUsed  int
}

// Config holds LLM provider configuration
type Config struct {
	Provider     string // openai, anthropic, ollama, "" (disabled)
	Model        string
	APIKey       string
	BaseURL      string
	Timeout      int // seconds
	StrictFields bool
	MaxTokens    int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns the disabled configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      30,
		StrictFields: true,
		MaxTokens:    800,
	}
}

// ErrCitationLeak is returned when a summary cites a field that is not in the report
var ErrCitationLeak = errors.New("citation leak")

const defaultTimeout = 30 * time.Second

const systemPrompt = "You summarise policy consistency reports. You describe where documents agree and disagree and never decide which value is correct."

// BuildPrompt renders the report into the summarization prompt
func BuildPrompt(report model.ConsistencyReport, allowedFields []string) string {
	var b strings.Builder

	b.WriteString(`You are summarising a concord report. Concord compares the values that several policy documents state for the same field. It reports agreement only; it NEVER decides which value is correct.

RULES:
1. Refer to fields ONLY by their identifier in backticks, and ONLY identifiers from this list:
`)
	b.WriteString(joinFields(allowedFields))
	b.WriteString(`

2. Write document titles in double quotes, never in backticks.
3. Do not recommend a value or call any value right, wrong, outdated or compliant.
4. Values are compared as text: "30 days" and "one month" count as different.

`)

	fmt.Fprintf(&b, "Report:\n- Fields analysed: %d\n- Consistent: %d\n- Inconsistent: %d\n- Consistency rate: %.1f%%\n- Skipped records: %d\n",
		report.TotalFields, report.ConsistentCount, report.InconsistentCount, report.ConsistencyRate*100, report.SkippedCount)

	inconsistent := report.InconsistentVerdicts()
	if len(inconsistent) > 0 {
		b.WriteString("\nInconsistent fields:\n")
		for i, v := range inconsistent {
			if i >= maxPromptFields {
				fmt.Fprintf(&b, "... and %d more\n", len(inconsistent)-maxPromptFields)
				break
			}
			fmt.Fprintf(&b, "- `%s` (%s):\n", v.FieldName, v.DisplayName)
			for _, g := range v.ValueGroups {
				fmt.Fprintf(&b, "  - %q stated by %s\n", g.Value, quoteTitles(g.Documents))
			}
		}
	}

	if ranked := topDocuments(report, 5); len(ranked) > 0 {
		b.WriteString("\nDocuments involved in the most inconsistencies:\n")
		for _, line := range ranked {
			b.WriteString("- " + line + "\n")
		}
	}

	b.WriteString("\nProvide a 3-5 sentence summary of where the documents disagree.")
	return b.String()
}

const maxPromptFields = 20

func joinFields(fields []string) string {
	if len(fields) == 0 {
		return "(No fields available)"
	}
	var b strings.Builder
	for i, f := range fields {
		if i >= 50 {
			fmt.Fprintf(&b, "\n... and %d more fields", len(fields)-50)
			break
		}
		fmt.Fprintf(&b, "\n- `%s`", f)
	}
	return b.String()
}

func quoteTitles(titles []string) string {
	quoted := make([]string, len(titles))
	for i, t := range titles {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	return strings.Join(quoted, ", ")
}

func topDocuments(report model.ConsistencyReport, n int) []string {
	type docCount struct {
		title string
		count int
	}
	var docs []docCount
	for title, c := range report.PerDocumentInconsistencyCounts {
		docs = append(docs, docCount{title, c})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].count != docs[j].count {
			return docs[i].count > docs[j].count
		}
		return docs[i].title < docs[j].title
	})

	var out []string
	for i, d := range docs {
		if i >= n {
			break
		}
		out = append(out, fmt.Sprintf("%q: %d", d.title, d.count))
	}
	return out
}

// ReportFields lists the field identifiers of a report, in report order
func ReportFields(report model.ConsistencyReport) []string {
	fields := make([]string, 0, len(report.Verdicts))
	for _, v := range report.Verdicts {
		fields = append(fields, v.FieldName)
	}
	return fields
}

var backtickPattern = regexp.MustCompile("`([^`\\s]+)`")

// extractFieldCitations returns backticked identifiers in the summary.
// Only spans that look like identifiers (containing an underscore) count;
// a backticked value such as `12` is not a citation.
func extractFieldCitations(text string) []string {
	seen := make(map[string]bool)
	var cited []string
	for _, m := range backtickPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if !strings.Contains(id, "_") || seen[id] {
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}
	return cited
}

// checkCitations fails on the first cited field outside the allowlist
func checkCitations(cited, allowed []string) error {
	for _, c := range cited {
		if !contains(allowed, c) {
			return fmt.Errorf("%w: model cited unknown field %q", ErrCitationLeak, c)
		}
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func timeoutOrDefault(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func newHTTPClient(config Config, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func maxTokensOrDefault(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 800
}
