package model

// ConsistencyReport is the aggregate over all analysed fields.
// Reports contain no timestamps so equal input always encodes to equal bytes.
type ConsistencyReport struct {
	TotalFields       int     `json:"total_fields"`
	ConsistentCount   int     `json:"consistent_count"`
	InconsistentCount int     `json:"inconsistent_count"`
	ConsistencyRate   float64 `json:"consistency_rate"` // consistent_count / total_fields, 0 when empty

	Verdicts                       []ConsistencyVerdict `json:"verdicts"`
	PerDocumentInconsistencyCounts map[string]int       `json:"per_document_inconsistency_counts"`

	SkippedCount int        `json:"skipped_count"`
	Signals      []Signal   `json:"signals"`    // Diagnostic signals with transparent data
	Principles   Principles `json:"principles"` // Core principles applied

	Provenance []ProvenanceResult `json:"provenance,omitempty"` // Source sentence lookup, when a corpus is configured
	LLM        *LLMSummary        `json:"llm,omitempty"`        // Optional LLM summary (separate, never affects counts)
}

// Signal represents a diagnostic signal with transparent data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalConsistencyRate    SignalType = "consistency_rate"    // Share of fields all documents agree on
	SignalInconsistentField  SignalType = "inconsistent_field"  // One field with diverging values
	SignalSkippedRecords     SignalType = "skipped_records"     // Records dropped during loading
	SignalEmptyFactStore     SignalType = "empty_fact_store"    // Nothing to analyse
	SignalDuplicateDocuments SignalType = "duplicate_documents" // A document stated a field more than once
	SignalUnlocatedSource    SignalType = "unlocated_source"    // Source sentence not found in its document
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// Principles documents which core principles were applied
type Principles struct {
	NonNormative bool `json:"non_normative"` // Reports agreement, not which value is correct
	Transparent  bool `json:"transparent"`   // Every count is explainable from the verdicts
	LexicalOnly  bool `json:"lexical_only"`  // Values are compared by text, not by meaning or unit
}

// DefaultPrinciples returns the standard principles
func DefaultPrinciples() Principles {
	return Principles{
		NonNormative: true,
		Transparent:  true,
		LexicalOnly:  true,
	}
}

// LLMSummary contains optional LLM-generated summary
// CRITICAL: This never affects any count and is clearly separated
type LLMSummary struct {
	Enabled      bool     `json:"enabled"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	StrictFields bool     `json:"strict_fields"` // Whether field citation enforcement was enabled
	SummaryMD    string   `json:"summary_md,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// InconsistentVerdicts returns the verdicts that failed the consistency check, in report order
func (r ConsistencyReport) InconsistentVerdicts() []ConsistencyVerdict {
	var out []ConsistencyVerdict
	for _, v := range r.Verdicts {
		if !v.IsConsistent {
			out = append(out, v)
		}
	}
	return out
}

// ConsistentVerdicts returns the verdicts that passed the consistency check, in report order
func (r ConsistencyReport) ConsistentVerdicts() []ConsistencyVerdict {
	var out []ConsistencyVerdict
	for _, v := range r.Verdicts {
		if v.IsConsistent {
			out = append(out, v)
		}
	}
	return out
}
