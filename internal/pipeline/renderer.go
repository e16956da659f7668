package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/report"
)

// Renderer writes reports as JSON, Markdown and a terminal summary
type Renderer struct {
	includeFooter bool
	out           io.Writer
}

// NewRenderer creates a new renderer. A nil out discards the terminal summary.
func NewRenderer(includeFooter bool, out io.Writer) *Renderer {
	if out == nil {
		out = io.Discard
	}
	return &Renderer{
		includeFooter: includeFooter,
		out:           out,
	}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(result *Result, path string) error {
	data, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the Markdown report
func (r *Renderer) RenderMarkdown(result *Result, path string) error {
	return writeFile(path, []byte(r.Markdown(result)))
}

// RenderLLMMarkdown writes the separate LLM summary document
func (r *Renderer) RenderLLMMarkdown(markdown, path string) error {
	if markdown == "" {
		return nil
	}
	return writeFile(path, []byte(markdown))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- reports are meant to be shared
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Markdown renders the report. The output depends only on the result, so
// equal inputs give byte-identical documents.
func (r *Renderer) Markdown(result *Result) string {
	rep := result.Report
	var b strings.Builder

	fmt.Fprintf(&b, "# Policy Consistency Report: %s\n\n", result.Subject)
	b.WriteString("> Concord compares the values policy documents state for the same field. ")
	b.WriteString("It reports agreement only and never says which value is correct.\n\n")

	b.WriteString("## Metrics\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Fields analysed | %d |\n", rep.TotalFields)
	fmt.Fprintf(&b, "| Consistent | %d |\n", rep.ConsistentCount)
	fmt.Fprintf(&b, "| Inconsistent | %d |\n", rep.InconsistentCount)
	fmt.Fprintf(&b, "| Consistency rate | %s |\n", formatRate(rep.ConsistencyRate))
	fmt.Fprintf(&b, "| Skipped records | %d |\n\n", rep.SkippedCount)

	inconsistent := rep.InconsistentVerdicts()
	b.WriteString("## Inconsistent Fields\n\n")
	if len(inconsistent) == 0 {
		b.WriteString("All analysed fields are consistent.\n\n")
	}
	for _, v := range inconsistent {
		fmt.Fprintf(&b, "### %s (`%s`)\n\n", v.DisplayName, v.FieldName)
		b.WriteString("| Value | Documents |\n|---|---|\n")
		for _, g := range v.ValueGroups {
			fmt.Fprintf(&b, "| %s | %s |\n", mdCell(g.Value), mdCell(strings.Join(g.Documents, ", ")))
		}
		if len(v.DuplicateDocuments) > 0 {
			fmt.Fprintf(&b, "\nStated more than once by: %s\n", mdCell(strings.Join(v.DuplicateDocuments, ", ")))
		}
		b.WriteString("\n")
	}

	if ranked := report.RankDocuments(rep); len(ranked) > 0 {
		b.WriteString("## Documents by Inconsistency\n\n")
		b.WriteString("| Document | Inconsistent fields |\n|---|---|\n")
		for _, d := range ranked {
			fmt.Fprintf(&b, "| %s | %d |\n", mdCell(d.DocumentTitle), d.InconsistentFields)
		}
		b.WriteString("\n")
	}

	if consistent := rep.ConsistentVerdicts(); len(consistent) > 0 {
		b.WriteString("## Consistent Fields\n\n")
		b.WriteString("| Field | Value | Documents |\n|---|---|---|\n")
		for _, v := range consistent {
			value := "(no records)"
			if len(v.DistinctValues) > 0 {
				value = v.DistinctValues[0]
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", mdCell(v.DisplayName), mdCell(value), mdCell(strings.Join(v.Documents(), ", ")))
		}
		b.WriteString("\n")
	}

	if len(rep.Provenance) > 0 {
		b.WriteString("## Source Sentences\n\n")
		b.WriteString("| Field | Document | Status | Matched text |\n|---|---|---|---|\n")
		for _, pr := range rep.Provenance {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", pr.FieldName, mdCell(pr.DocumentTitle), provenanceStatus(pr), mdCell(pr.Matched))
		}
		b.WriteString("\n")
	}

	if len(rep.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range rep.Signals {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", s.Severity, s.Type, s.Description)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "_Generated by concord. Report digest: `%s`. Values are compared as normalized text; units and synonyms are not interpreted._\n", result.Digest)
	}

	return b.String()
}

// RenderSummary prints a short terminal summary
func (r *Renderer) RenderSummary(result *Result) {
	rep := result.Report

	fmt.Fprintf(r.out, "\n%s\n", result.Subject)
	fmt.Fprintf(r.out, "  Consistency: %s (%d/%d fields aligned)\n", formatRate(rep.ConsistencyRate), rep.ConsistentCount, rep.TotalFields)
	if rep.SkippedCount > 0 {
		fmt.Fprintf(r.out, "  Skipped records: %d\n", rep.SkippedCount)
	}
	if result.Cached {
		fmt.Fprintln(r.out, "  (from cache)")
	}

	for _, v := range rep.InconsistentVerdicts() {
		fmt.Fprintf(r.out, "  ✗ %s: %s\n", v.DisplayName, strings.Join(v.DistinctValues, " | "))
	}
	for _, v := range rep.ConsistentVerdicts() {
		value := ""
		if len(v.DistinctValues) > 0 {
			value = ": " + v.DistinctValues[0]
		}
		fmt.Fprintf(r.out, "  ✓ %s%s\n", v.DisplayName, value)
	}

	if ranked := report.RankDocuments(rep); len(ranked) > 0 {
		fmt.Fprintln(r.out, "  Documents:")
		for _, d := range ranked {
			fmt.Fprintf(r.out, "    %s: %d inconsistent field(s)\n", d.DocumentTitle, d.InconsistentFields)
		}
	}
}

// RenderDocument prints the fields one document contributed to
func (r *Renderer) RenderDocument(result *Result, title string) {
	verdicts := report.FilterByDocument(result.Report, title)
	if len(verdicts) == 0 {
		fmt.Fprintf(r.out, "\n%s: no facts recorded\n", title)
		return
	}

	fmt.Fprintf(r.out, "\n%s\n", title)
	for _, v := range verdicts {
		mark := "✓"
		if !v.IsConsistent {
			mark = "✗"
		}
		var stated []string
		for _, rec := range v.Records {
			if rec.DocumentTitle == title {
				stated = append(stated, rec.Value)
			}
		}
		fmt.Fprintf(r.out, "  %s %s: %s", mark, v.DisplayName, strings.Join(stated, ", "))
		if !v.IsConsistent {
			fmt.Fprintf(r.out, " (others: %s)", strings.Join(otherValues(v, title), " | "))
		}
		fmt.Fprintln(r.out)
	}
}

// otherValues lists the values stated only by other documents
func otherValues(v model.ConsistencyVerdict, title string) []string {
	var out []string
	for _, g := range v.ValueGroups {
		mine := false
		for _, d := range g.Documents {
			if d == title {
				mine = true
				break
			}
		}
		if !mine {
			out = append(out, g.Value)
		}
	}
	return out
}

func provenanceStatus(pr model.ProvenanceResult) string {
	switch {
	case pr.Error != "":
		return mdCell(pr.Error)
	case !pr.Found:
		return "not found"
	case pr.Exact:
		return "exact"
	default:
		return "partial"
	}
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

// mdCell keeps a value inside one table cell
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
