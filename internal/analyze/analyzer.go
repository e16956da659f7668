package analyze

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/concord/internal/model"
)

// DuplicatePolicy decides what happens when one document states a field more than once
type DuplicatePolicy string

const (
	DuplicatesLastWins  DuplicatePolicy = "last-wins"  // Later record from the same document replaces earlier ones
	DuplicatesFirstWins DuplicatePolicy = "first-wins" // Earliest record from the same document is kept
	DuplicatesFlag      DuplicatePolicy = "flag"       // All records kept; a self-contradicting document makes the field inconsistent
)

// ParseDuplicatePolicy parses a policy name. An empty name selects last-wins.
func ParseDuplicatePolicy(name string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "last-wins", "last":
		return DuplicatesLastWins, nil
	case "first-wins", "first":
		return DuplicatesFirstWins, nil
	case "flag", "flag-conflict":
		return DuplicatesFlag, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy: %s (supported: last-wins, first-wins, flag)", name)
	}
}

// Options configures an Analyzer
type Options struct {
	// Fields restricts analysis to these field names. Empty means every field.
	Fields []string
	// Duplicates resolves repeated documents within one field. Empty means last-wins.
	Duplicates DuplicatePolicy
}

// Analyzer evaluates per-field consistency. It holds no state between runs
// and may be shared between goroutines.
type Analyzer struct {
	fields     map[string]bool
	duplicates DuplicatePolicy
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(opts Options) *Analyzer {
	var fields map[string]bool
	if len(opts.Fields) > 0 {
		fields = make(map[string]bool, len(opts.Fields))
		for _, f := range opts.Fields {
			if name := strings.TrimSpace(f); name != "" {
				fields[name] = true
			}
		}
	}

	duplicates := opts.Duplicates
	if duplicates == "" {
		duplicates = DuplicatesLastWins
	}

	return &Analyzer{
		fields:     fields,
		duplicates: duplicates,
	}
}

// Analyze produces one verdict per selected field, in store order
func (a *Analyzer) Analyze(store model.FactStore) []model.ConsistencyVerdict {
	verdicts := make([]model.ConsistencyVerdict, 0, len(store.Fields))
	for _, field := range store.Fields {
		if a.fields != nil && !a.fields[field.FieldName] {
			continue
		}
		verdicts = append(verdicts, a.Evaluate(field))
	}
	return verdicts
}

// Evaluate builds the verdict of a single field
func (a *Analyzer) Evaluate(field model.FieldFacts) model.ConsistencyVerdict {
	records, duplicateDocs := collapse(field.Records, a.duplicates)

	var groups []model.ValueGroup
	groupIndex := make(map[string]int)

	for _, r := range records {
		key := Normalize(r.Value)
		idx, seen := groupIndex[key]
		if !seen {
			groupIndex[key] = len(groups)
			groups = append(groups, model.ValueGroup{
				Value:     DisplayValue(r.Value),
				Key:       key,
				Documents: []string{r.DocumentTitle},
			})
			continue
		}
		if !containsString(groups[idx].Documents, r.DocumentTitle) {
			groups[idx].Documents = append(groups[idx].Documents, r.DocumentTitle)
		}
	}

	distinct := make([]string, 0, len(groups))
	for _, g := range groups {
		distinct = append(distinct, g.Value)
	}

	return model.ConsistencyVerdict{
		FieldName:          field.FieldName,
		DisplayName:        DisplayName(field.FieldName, records),
		IsConsistent:       len(distinct) <= 1,
		DistinctValues:     distinct,
		Records:            records,
		ValueGroups:        groups,
		DuplicateDocuments: duplicateDocs,
	}
}

// collapse applies the duplicate policy. Surviving records keep input order
// and are copied so the verdict never aliases the caller's slice.
func collapse(records []model.FactRecord, policy DuplicatePolicy) ([]model.FactRecord, []string) {
	first := make(map[string]int, len(records))
	last := make(map[string]int, len(records))
	counts := make(map[string]int, len(records))

	for i, r := range records {
		if _, ok := first[r.DocumentTitle]; !ok {
			first[r.DocumentTitle] = i
		}
		last[r.DocumentTitle] = i
		counts[r.DocumentTitle]++
	}

	var duplicates []string
	for title, n := range counts {
		if n > 1 {
			duplicates = append(duplicates, title)
		}
	}
	sort.Strings(duplicates)

	kept := make([]model.FactRecord, 0, len(first))
	for i, r := range records {
		switch policy {
		case DuplicatesFirstWins:
			if first[r.DocumentTitle] != i {
				continue
			}
		case DuplicatesFlag:
		default:
			if last[r.DocumentTitle] != i {
				continue
			}
		}
		kept = append(kept, r)
	}

	return kept, duplicates
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
