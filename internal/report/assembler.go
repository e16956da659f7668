package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/concord/internal/model"
)

// Assembler aggregates verdicts into a ConsistencyReport
type Assembler struct{}

// NewAssembler creates a new assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble builds the report. The result depends only on its arguments.
func (a *Assembler) Assemble(verdicts []model.ConsistencyVerdict, skippedCount int) model.ConsistencyReport {
	total := len(verdicts)
	consistent := 0
	perDocument := make(map[string]int)
	var duplicateFields []string

	for _, v := range verdicts {
		if len(v.DuplicateDocuments) > 0 {
			duplicateFields = append(duplicateFields, v.FieldName)
		}
		if v.IsConsistent {
			consistent++
			continue
		}
		for _, title := range v.Documents() {
			perDocument[title]++
		}
	}
	inconsistent := total - consistent

	rate := 0.0
	if total > 0 {
		rate = float64(consistent) / float64(total)
	}

	copied := make([]model.ConsistencyVerdict, len(verdicts))
	copy(copied, verdicts)

	signals := []model.Signal{a.rateSignal(total, consistent, inconsistent, rate)}
	for _, v := range verdicts {
		if !v.IsConsistent {
			signals = append(signals, inconsistentFieldSignal(v))
		}
	}
	if total == 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalEmptyFactStore,
			Severity:    model.SeverityWarning,
			Description: "No fields to analyse",
			Data:        map[string]interface{}{"total_fields": 0},
		})
	}
	if skippedCount > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalSkippedRecords,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d fact record(s) skipped during loading", skippedCount),
			Data:        map[string]interface{}{"skipped": skippedCount},
		})
	}
	if len(duplicateFields) > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalDuplicateDocuments,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d field(s) had a document stating the value more than once", len(duplicateFields)),
			Data:        map[string]interface{}{"fields": duplicateFields},
		})
	}

	return model.ConsistencyReport{
		TotalFields:                    total,
		ConsistentCount:                consistent,
		InconsistentCount:              inconsistent,
		ConsistencyRate:                rate,
		Verdicts:                       copied,
		PerDocumentInconsistencyCounts: perDocument,
		SkippedCount:                   skippedCount,
		Signals:                        signals,
		Principles:                     model.DefaultPrinciples(),
	}
}

// rateSignal explains the consistency rate
func (a *Assembler) rateSignal(total, consistent, inconsistent int, rate float64) model.Signal {
	severity := model.SeverityInfo
	switch {
	case total == 0:
		severity = model.SeverityWarning
	case rate < 0.5:
		severity = model.SeverityCritical
	case rate < 1.0:
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalConsistencyRate,
		Severity:    severity,
		Description: fmt.Sprintf("Consistency rate: %.1f%% (%d/%d fields aligned)", rate*100, consistent, total),
		Data: map[string]interface{}{
			"total_fields": total,
			"consistent":   consistent,
			"inconsistent": inconsistent,
			"rate":         rate,
			"formula":      "consistent_count / total_fields (0 when total_fields = 0)",
		},
	}
}

func inconsistentFieldSignal(v model.ConsistencyVerdict) model.Signal {
	return model.Signal{
		Type:     model.SignalInconsistentField,
		Severity: model.SeverityWarning,
		Description: fmt.Sprintf("%s has %d conflicting values: %s",
			v.FieldName, len(v.DistinctValues), strings.Join(v.DistinctValues, " | ")),
		Data: map[string]interface{}{
			"field":     v.FieldName,
			"values":    v.DistinctValues,
			"documents": v.Documents(),
		},
	}
}

// DocumentCount pairs a document with the number of inconsistent fields it touches
type DocumentCount struct {
	DocumentTitle      string `json:"document_title"`
	InconsistentFields int    `json:"inconsistent_fields"`
}

// RankDocuments orders documents by inconsistent field count (desc), then title
func RankDocuments(r model.ConsistencyReport) []DocumentCount {
	ranked := make([]DocumentCount, 0, len(r.PerDocumentInconsistencyCounts))
	for title, n := range r.PerDocumentInconsistencyCounts {
		ranked = append(ranked, DocumentCount{DocumentTitle: title, InconsistentFields: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].InconsistentFields != ranked[j].InconsistentFields {
			return ranked[i].InconsistentFields > ranked[j].InconsistentFields
		}
		return ranked[i].DocumentTitle < ranked[j].DocumentTitle
	})
	return ranked
}

// FilterByDocument returns the verdicts a document contributed to, in report order
func FilterByDocument(r model.ConsistencyReport, title string) []model.ConsistencyVerdict {
	var out []model.ConsistencyVerdict
	for _, v := range r.Verdicts {
		if v.HasDocument(title) {
			out = append(out, v)
		}
	}
	return out
}

// Digest returns a sha256 digest of the report's JSON encoding
func Digest(r model.ConsistencyReport) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
