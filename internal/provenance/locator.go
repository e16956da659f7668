package provenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ppiankov/concord/internal/model"
)

// Match is a located source sentence
type Match struct {
	Offset  int    // Byte offset in the document text
	Matched string // Document text that matched
	Context string // Matched text with surrounding characters
	Exact   bool   // Whole sentence matched
}

// FindSentence searches a document for a source sentence, ignoring case.
// When the whole sentence is absent, the first three-word window of the
// sentence that appears in the document is used instead (sentences of at
// least three words only).
func FindSentence(sentence, content string, contextChars int) (Match, bool) {
	needle := strings.TrimSpace(sentence)
	if needle == "" || content == "" {
		return Match{}, false
	}

	if off, n := indexFold(content, needle); off >= 0 {
		return buildMatch(content, off, n, contextChars, true), true
	}

	words := strings.Fields(needle)
	if len(words) < 3 {
		return Match{}, false
	}
	for i := 0; i+3 <= len(words); i++ {
		window := strings.Join(words[i:i+3], " ")
		if off, n := indexFold(content, window); off >= 0 {
			return buildMatch(content, off, n, contextChars, false), true
		}
	}

	return Match{}, false
}

func buildMatch(content string, off, n, contextChars int, exact bool) Match {
	return Match{
		Offset:  off,
		Matched: content[off : off+n],
		Context: contextWindow(content, off, off+n, contextChars),
		Exact:   exact,
	}
}

// indexFold finds substr in s ignoring case. It returns the byte offset and
// the byte length of the match in s, or -1.
func indexFold(s, substr string) (int, int) {
	for i := range s {
		if n, ok := hasPrefixFold(s[i:], substr); ok {
			return i, n
		}
	}
	return -1, 0
}

func hasPrefixFold(s, prefix string) (int, bool) {
	si := 0
	for _, pr := range prefix {
		if si >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[si:])
		if sr != pr && !strings.EqualFold(string(sr), string(pr)) {
			return 0, false
		}
		si += size
	}
	return si, true
}

// contextWindow widens [start,end) by up to chars runes on each side
func contextWindow(s string, start, end, chars int) string {
	from := start
	for k := 0; k < chars && from > 0; k++ {
		_, size := utf8.DecodeLastRuneInString(s[:from])
		from -= size
	}
	to := end
	for k := 0; k < chars && to < len(s); k++ {
		_, size := utf8.DecodeRuneInString(s[to:])
		to += size
	}
	return s[from:to]
}

// Locator looks up source sentences concurrently
type Locator struct {
	maxWorkers   int
	contextChars int
}

// NewLocator creates a new locator
func NewLocator(maxWorkers, contextChars int) *Locator {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if contextChars < 0 {
		contextChars = 0
	}
	return &Locator{
		maxWorkers:   maxWorkers,
		contextChars: contextChars,
	}
}

// Locate checks every record that carries a source sentence. Results follow
// verdict and record order regardless of completion order.
func (l *Locator) Locate(ctx context.Context, corpus *Corpus, verdicts []model.ConsistencyVerdict) []model.ProvenanceResult {
	var records []model.FactRecord
	for _, v := range verdicts {
		for _, r := range v.Records {
			if strings.TrimSpace(r.SourceSentence) != "" {
				records = append(records, r)
			}
		}
	}
	if len(records) == 0 {
		return []model.ProvenanceResult{}
	}

	results := make([]model.ProvenanceResult, len(records))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, l.maxWorkers)

	for i, rec := range records {
		wg.Add(1)
		go func(idx int, r model.FactRecord) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = model.ProvenanceResult{
					FieldName:     r.FieldName,
					DocumentTitle: r.DocumentTitle,
					Sentence:      r.SourceSentence,
					Error:         "context cancelled",
				}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = l.locateOne(corpus, r)
		}(i, rec)
	}

	wg.Wait()

	return results
}

func (l *Locator) locateOne(corpus *Corpus, r model.FactRecord) model.ProvenanceResult {
	result := model.ProvenanceResult{
		FieldName:     r.FieldName,
		DocumentTitle: r.DocumentTitle,
		Sentence:      r.SourceSentence,
	}

	doc, ok := corpus.Get(r.DocumentTitle)
	if !ok {
		result.Error = "document not in corpus"
		return result
	}

	m, found := FindSentence(r.SourceSentence, doc.Content, l.contextChars)
	if !found {
		return result
	}

	result.Found = true
	result.Exact = m.Exact
	result.Offset = m.Offset
	result.Matched = m.Matched
	result.Context = m.Context
	return result
}

// UnlocatedSignal summarises source sentences that could not be found
func UnlocatedSignal(results []model.ProvenanceResult) (model.Signal, bool) {
	var missing []string
	for _, r := range results {
		if !r.Found {
			missing = append(missing, r.FieldName+"@"+r.DocumentTitle)
		}
	}
	if len(missing) == 0 {
		return model.Signal{}, false
	}

	severity := model.SeverityInfo
	if len(missing)*2 > len(results) {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalUnlocatedSource,
		Severity:    severity,
		Description: fmt.Sprintf("%d/%d source sentences not found in their documents", len(missing), len(results)),
		Data: map[string]interface{}{
			"unlocated": missing,
			"checked":   len(results),
		},
	}, true
}
