package model

import "sort"

// FactRecord is one observed statement of a policy value in one document
type FactRecord struct {
	FieldName      string `json:"field_name"`                // Policy dimension (taken from the enclosing key)
	Value          string `json:"value"`                     // Stated value, trimmed, original casing kept
	DocumentTitle  string `json:"document_title"`            // Source document, unique per document
	FactName       string `json:"fact_name,omitempty"`       // Display label only
	SourceSentence string `json:"source_sentence,omitempty"` // Verbatim excerpt (provenance)
	Reference      string `json:"reference,omitempty"`       // Page/section locator
}

// FieldFacts holds the validated records of one field in input order
type FieldFacts struct {
	FieldName string       `json:"field_name"`
	Records   []FactRecord `json:"records"`
}

// SkipReason explains why the loader dropped a record
type SkipReason string

const (
	SkipNotAnObject          SkipReason = "not_an_object"
	SkipMissingValue         SkipReason = "missing_value"
	SkipMissingDocumentTitle SkipReason = "missing_document_title"
	SkipBlankValue           SkipReason = "blank_value"
	SkipBlankDocumentTitle   SkipReason = "blank_document_title"
	SkipBlankFieldName       SkipReason = "blank_field_name"
	SkipUnsupportedValue     SkipReason = "unsupported_value_type"
)

// SkippedRecord describes a record dropped during loading
type SkippedRecord struct {
	FieldName string     `json:"field_name"`
	Index     int        `json:"index"` // Position within the field's array (0-based)
	Reason    SkipReason `json:"reason"`
}

// FactStore is the validated fact collection handed to the analyzer.
// Fields are kept in first-seen input order.
type FactStore struct {
	Fields  []FieldFacts    `json:"fields"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

// SkippedCount returns the number of records dropped during loading
func (s FactStore) SkippedCount() int {
	return len(s.Skipped)
}

// IsEmpty reports whether the store has no fields at all
func (s FactStore) IsEmpty() bool {
	return len(s.Fields) == 0
}

// FieldNames returns field names in store order
func (s FactStore) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.FieldName)
	}
	return names
}

// Lookup returns the records of a field
func (s FactStore) Lookup(fieldName string) (FieldFacts, bool) {
	for _, f := range s.Fields {
		if f.FieldName == fieldName {
			return f, true
		}
	}
	return FieldFacts{}, false
}

// DocumentTitles returns every document title that contributed at least one record, sorted
func (s FactStore) DocumentTitles() []string {
	seen := make(map[string]bool)
	var titles []string
	for _, f := range s.Fields {
		for _, r := range f.Records {
			if !seen[r.DocumentTitle] {
				seen[r.DocumentTitle] = true
				titles = append(titles, r.DocumentTitle)
			}
		}
	}
	sort.Strings(titles)
	return titles
}
