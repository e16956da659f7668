package factstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
)

// Loader turns a raw fact index into a validated FactStore
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new loader. A nil logger discards warnings.
func NewLoader(logger *zap.Logger) *Loader {
	logger = logging.OrNop(logger)
	return &Loader{logger: logger}
}

// LoadBytes loads a fact index from raw JSON bytes
func (l *Loader) LoadBytes(data []byte) (model.FactStore, error) {
	return l.Load(bytes.NewReader(data))
}

// Load stream-decodes a JSON fact index, keeping fields in first-seen order.
// Only a structurally invalid document fails; bad records are skipped and tallied.
func (l *Loader) Load(r io.Reader) (model.FactStore, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.FactStore{}, model.MalformedFactStore("input is empty")
		}
		return model.FactStore{}, model.MalformedFactStoreWrap(err, "decode")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return model.FactStore{}, model.MalformedFactStore("top-level value must be an object, got %s", describeToken(tok))
	}

	b := newBuilder(l.logger)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return model.FactStore{}, model.MalformedFactStoreWrap(err, "decode field name")
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return model.FactStore{}, model.MalformedFactStoreWrap(err, "decode field %q", key)
		}

		items, err := decodeArray(raw)
		if err != nil {
			return model.FactStore{}, model.MalformedFactStore("field %q must be an array of records", key)
		}

		b.beginField(key)
		for i, item := range items {
			attrs, ok := decodeObject(item)
			if !ok {
				b.skip(key, i, model.SkipNotAnObject)
				continue
			}
			b.addRecord(key, i, attrs)
		}
	}

	if _, err := dec.Token(); err != nil {
		return model.FactStore{}, model.MalformedFactStoreWrap(err, "decode closing brace")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.FactStore{}, model.MalformedFactStore("unexpected data after fact index")
	}

	return b.finish(), nil
}

// LoadValue loads an already-deserialized fact index.
// Maps carry no order, so fields are processed in sorted key order.
func (l *Loader) LoadValue(v interface{}) (model.FactStore, error) {
	var fields map[string][]interface{}

	switch typed := v.(type) {
	case map[string]interface{}:
		fields = make(map[string][]interface{}, len(typed))
		for key, value := range typed {
			items, ok := value.([]interface{})
			if !ok {
				if records, isRecords := value.([]map[string]interface{}); isRecords {
					items = make([]interface{}, len(records))
					for i, rec := range records {
						items[i] = rec
					}
				} else {
					return model.FactStore{}, model.MalformedFactStore("field %q must be an array of records", key)
				}
			}
			fields[key] = items
		}
	case map[string][]interface{}:
		fields = typed
	case map[string][]map[string]interface{}:
		fields = make(map[string][]interface{}, len(typed))
		for key, records := range typed {
			items := make([]interface{}, len(records))
			for i, rec := range records {
				items[i] = rec
			}
			fields[key] = items
		}
	default:
		return model.FactStore{}, model.MalformedFactStore("top-level value must be an object, got %T", v)
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b := newBuilder(l.logger)
	for _, key := range keys {
		b.beginField(key)
		for i, item := range fields[key] {
			attrs, ok := item.(map[string]interface{})
			if !ok || attrs == nil {
				b.skip(key, i, model.SkipNotAnObject)
				continue
			}
			b.addRecord(key, i, attrs)
		}
	}

	return b.finish(), nil
}

// builder accumulates fields in first-seen order
type builder struct {
	logger  *zap.Logger
	fields  []model.FieldFacts
	index   map[string]int
	skipped []model.SkippedRecord
}

func newBuilder(logger *zap.Logger) *builder {
	return &builder{
		logger: logger,
		index:  make(map[string]int),
	}
}

// beginField registers a field so that empty arrays still produce a field.
// A repeated key keeps the position of its first occurrence.
func (b *builder) beginField(rawKey string) {
	name := strings.TrimSpace(rawKey)
	if name == "" {
		return
	}
	if _, exists := b.index[name]; exists {
		return
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, model.FieldFacts{FieldName: name, Records: []model.FactRecord{}})
}

func (b *builder) addRecord(rawKey string, idx int, attrs map[string]interface{}) {
	name := strings.TrimSpace(rawKey)
	if name == "" {
		b.skip(rawKey, idx, model.SkipBlankFieldName)
		return
	}

	record, reason, ok := parseRecord(name, attrs)
	if !ok {
		b.skip(name, idx, reason)
		return
	}

	pos := b.index[name]
	b.fields[pos].Records = append(b.fields[pos].Records, record)
}

func (b *builder) skip(field string, idx int, reason model.SkipReason) {
	b.skipped = append(b.skipped, model.SkippedRecord{
		FieldName: field,
		Index:     idx,
		Reason:    reason,
	})
	b.logger.Warn("skipped fact record",
		zap.String("field", field),
		zap.Int("index", idx),
		zap.String("reason", string(reason)),
	)
}

func (b *builder) finish() model.FactStore {
	records := 0
	for _, f := range b.fields {
		records += len(f.Records)
	}
	b.logger.Debug("fact store loaded",
		zap.Int("fields", len(b.fields)),
		zap.Int("records", records),
		zap.Int("skipped", len(b.skipped)),
	)

	fields := b.fields
	if fields == nil {
		fields = []model.FieldFacts{}
	}
	return model.FactStore{Fields: fields, Skipped: b.skipped}
}

// parseRecord validates one record's attributes
func parseRecord(field string, attrs map[string]interface{}) (model.FactRecord, model.SkipReason, bool) {
	rawValue, present := attrs["value"]
	if !present || rawValue == nil {
		return model.FactRecord{}, model.SkipMissingValue, false
	}
	value, ok := scalarText(rawValue)
	if !ok {
		return model.FactRecord{}, model.SkipUnsupportedValue, false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return model.FactRecord{}, model.SkipBlankValue, false
	}

	title, ok := attrs["document_title"].(string)
	if !ok {
		return model.FactRecord{}, model.SkipMissingDocumentTitle, false
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return model.FactRecord{}, model.SkipBlankDocumentTitle, false
	}

	return model.FactRecord{
		FieldName:      field,
		Value:          value,
		DocumentTitle:  title,
		FactName:       optionalString(attrs, "fact_name"),
		SourceSentence: optionalString(attrs, "source_sentence"),
		Reference:      optionalString(attrs, "reference"),
	}, "", true
}

// scalarText renders a scalar value as text. Numbers keep their literal form.
func scalarText(v interface{}) (string, bool) {
	switch typed := v.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

func optionalString(attrs map[string]interface{}, key string) string {
	s, ok := attrs[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func decodeArray(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("not an array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var attrs map[string]interface{}
	if err := dec.Decode(&attrs); err != nil {
		return nil, false
	}
	return attrs, true
}

func describeToken(tok json.Token) string {
	switch typed := tok.(type) {
	case json.Delim:
		if typed == '[' {
			return "an array"
		}
		return string(typed)
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", tok)
	}
}
