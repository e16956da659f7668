package model

// ConsistencyVerdict is the evaluated state of one field.
// Verdicts are built once by the analyzer and never mutated afterwards.
type ConsistencyVerdict struct {
	FieldName          string       `json:"field_name"`
	DisplayName        string       `json:"display_name"`
	IsConsistent       bool         `json:"is_consistent"`
	DistinctValues     []string     `json:"distinct_values"`
	Records            []FactRecord `json:"records"`
	ValueGroups        []ValueGroup `json:"value_groups,omitempty"`
	DuplicateDocuments []string     `json:"duplicate_documents,omitempty"`
}

// ValueGroup lists the documents that state one distinct value of a field
type ValueGroup struct {
	Value     string   `json:"value"`     // First-seen display value
	Key       string   `json:"key"`       // Comparison key
	Documents []string `json:"documents"` // Contributing documents in input order
}

// Documents returns the distinct document titles contributing to the verdict, in record order
func (v ConsistencyVerdict) Documents() []string {
	seen := make(map[string]bool, len(v.Records))
	titles := make([]string, 0, len(v.Records))
	for _, r := range v.Records {
		if seen[r.DocumentTitle] {
			continue
		}
		seen[r.DocumentTitle] = true
		titles = append(titles, r.DocumentTitle)
	}
	return titles
}

// HasDocument reports whether the given document contributed a record
func (v ConsistencyVerdict) HasDocument(title string) bool {
	for _, r := range v.Records {
		if r.DocumentTitle == title {
			return true
		}
	}
	return false
}
