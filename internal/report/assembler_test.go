package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/concord/internal/analyze"
	"github.com/ppiankov/concord/internal/factstore"
	"github.com/ppiankov/concord/internal/model"
)

func assemble(t *testing.T, input string) model.ConsistencyReport {
	t.Helper()
	store, err := factstore.NewLoader(nil).LoadBytes([]byte(input))
	require.NoError(t, err)
	verdicts := analyze.NewAnalyzer(analyze.Options{}).Analyze(store)
	return NewAssembler().Assemble(verdicts, store.SkippedCount())
}

func findSignal(r model.ConsistencyReport, typ model.SignalType) (model.Signal, bool) {
	for _, s := range r.Signals {
		if s.Type == typ {
			return s, true
		}
	}
	return model.Signal{}, false
}

func TestAssemble_ConflictingPasswordLength(t *testing.T) {
	r := assemble(t, `{"password_minimum_length": [
		{"value": "12", "document_title": "PolicyA"},
		{"value": "14", "document_title": "PolicyB"}
	]}`)

	assert.Equal(t, 1, r.TotalFields)
	assert.Equal(t, 0, r.ConsistentCount)
	assert.Equal(t, 1, r.InconsistentCount)
	assert.Equal(t, 0.0, r.ConsistencyRate)
	assert.Equal(t, map[string]int{"PolicyA": 1, "PolicyB": 1}, r.PerDocumentInconsistencyCounts)

	s, ok := findSignal(r, model.SignalConsistencyRate)
	require.True(t, ok)
	assert.Equal(t, model.SeverityCritical, s.Severity)

	_, ok = findSignal(r, model.SignalInconsistentField)
	assert.True(t, ok)
}

func TestAssemble_AgreeingPasswordLength(t *testing.T) {
	r := assemble(t, `{"password_minimum_length": [
		{"value": "12", "document_title": "PolicyA"},
		{"value": "12", "document_title": "PolicyB"}
	]}`)

	assert.Equal(t, 1, r.ConsistentCount)
	assert.Equal(t, 0, r.InconsistentCount)
	assert.Equal(t, 1.0, r.ConsistencyRate)
	assert.Empty(t, r.PerDocumentInconsistencyCounts)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"per_document_inconsistency_counts":{}`)
}

func TestAssemble_DaysConflict(t *testing.T) {
	r := assemble(t, `{"security_training_frequency": [
		{"value": "30 days", "document_title": "Information Security Policy"},
		{"value": "45 days", "document_title": "Access Management Policy"}
	]}`)

	require.Len(t, r.Verdicts, 1)
	assert.False(t, r.Verdicts[0].IsConsistent)
	assert.Len(t, r.Verdicts[0].DistinctValues, 2)
	assert.GreaterOrEqual(t, r.PerDocumentInconsistencyCounts["Information Security Policy"], 1)
	assert.GreaterOrEqual(t, r.PerDocumentInconsistencyCounts["Access Management Policy"], 1)
}

func TestAssemble_EmptyStore(t *testing.T) {
	r := assemble(t, `{}`)

	assert.Equal(t, 0, r.TotalFields)
	assert.Equal(t, 0.0, r.ConsistencyRate)
	assert.NotNil(t, r.PerDocumentInconsistencyCounts)

	_, ok := findSignal(r, model.SignalEmptyFactStore)
	assert.True(t, ok)
}

func TestAssemble_CountsInvariant(t *testing.T) {
	r := assemble(t, `{
		"a": [{"value": "1", "document_title": "X"}, {"value": "2", "document_title": "Y"}],
		"b": [{"value": "z", "document_title": "X"}, {"value": "Z", "document_title": "Y"}],
		"c": [],
		"d": [{"value": "q", "document_title": "X"}, {"value": "r", "document_title": "Z"}]
	}`)

	assert.Equal(t, 4, r.TotalFields)
	assert.Equal(t, r.TotalFields, r.ConsistentCount+r.InconsistentCount)
	assert.Equal(t, 2, r.ConsistentCount)
	assert.InDelta(t, 0.5, r.ConsistencyRate, 1e-9)
	assert.GreaterOrEqual(t, r.ConsistencyRate, 0.0)
	assert.LessOrEqual(t, r.ConsistencyRate, 1.0)
	assert.Equal(t, map[string]int{"X": 2, "Y": 1, "Z": 1}, r.PerDocumentInconsistencyCounts)

	ranked := RankDocuments(r)
	require.Len(t, ranked, 3)
	assert.Equal(t, DocumentCount{DocumentTitle: "X", InconsistentFields: 2}, ranked[0])
	assert.Equal(t, "Y", ranked[1].DocumentTitle)
	assert.Equal(t, "Z", ranked[2].DocumentTitle)
}

func TestAssemble_DocumentCountedOncePerField(t *testing.T) {
	store := model.FactStore{Fields: []model.FieldFacts{{
		FieldName: "f",
		Records: []model.FactRecord{
			{FieldName: "f", Value: "1", DocumentTitle: "A"},
			{FieldName: "f", Value: "2", DocumentTitle: "A"},
			{FieldName: "f", Value: "1", DocumentTitle: "B"},
		},
	}}}
	verdicts := analyze.NewAnalyzer(analyze.Options{Duplicates: analyze.DuplicatesFlag}).Analyze(store)
	r := NewAssembler().Assemble(verdicts, 0)

	assert.Equal(t, map[string]int{"A": 1, "B": 1}, r.PerDocumentInconsistencyCounts)
	_, ok := findSignal(r, model.SignalDuplicateDocuments)
	assert.True(t, ok)
}

func TestAssemble_SkippedSignal(t *testing.T) {
	r := assemble(t, `{"f": [{"value": "1", "document_title": "A"}, {"document_title": "B"}]}`)
	assert.Equal(t, 1, r.SkippedCount)

	s, ok := findSignal(r, model.SignalSkippedRecords)
	require.True(t, ok)
	assert.Equal(t, 1, s.Data["skipped"])
}

func TestAssemble_Deterministic(t *testing.T) {
	input := `{
		"recovery_time_objective": [
			{"value": "4 hours", "document_title": "DR Plan"},
			{"value": "24 hours", "document_title": "BCP"},
			{"value": "8 hours", "document_title": "Vendor Policy"}
		],
		"password_minimum_length": [
			{"value": "12", "document_title": "Access Policy"},
			{"value": "12", "document_title": "InfoSec Policy"}
		]
	}`

	first, err := json.Marshal(assemble(t, input))
	require.NoError(t, err)
	second, err := json.Marshal(assemble(t, input))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d1, err := Digest(assemble(t, input))
	require.NoError(t, err)
	d2, err := Digest(assemble(t, input))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Contains(t, d1, "sha256:")
}

func TestFilterByDocument(t *testing.T) {
	r := assemble(t, `{
		"a": [{"value": "1", "document_title": "X"}],
		"b": [{"value": "2", "document_title": "Y"}],
		"c": [{"value": "3", "document_title": "X"}]
	}`)

	got := FilterByDocument(r, "X")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].FieldName)
	assert.Equal(t, "c", got[1].FieldName)
	assert.Empty(t, FilterByDocument(r, "nobody"))
}
