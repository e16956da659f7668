package analyze

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/concord/internal/model"
)

const (
	// MissingValueKey is the comparison key of a blank value. No non-blank value normalizes to it.
	MissingValueKey = ""
	// MissingValueMarker is shown in place of a blank value. The loader skips
	// blank-valued records, so only stores built directly in code reach it.
	MissingValueMarker = "(missing)"
)

// Normalize returns the comparison key of a value: NFKC, case folded,
// whitespace collapsed. Only lexical differences are removed; "6 months"
// and "180 days" stay distinct.
func Normalize(value string) string {
	s := norm.NFKC.String(value)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return MissingValueKey
	}
	// Casers keep state, so one is built per call
	return cases.Fold().String(s)
}

// DisplayValue returns the value as shown to reviewers
func DisplayValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return MissingValueMarker
	}
	return trimmed
}

// DisplayName picks the label for a field: the records' shared fact name when
// they agree on one, otherwise the field name de-slugified and title-cased.
func DisplayName(fieldName string, records []model.FactRecord) string {
	shared := ""
	for i, r := range records {
		if i == 0 {
			shared = r.FactName
			continue
		}
		if r.FactName != shared {
			shared = ""
			break
		}
	}
	if shared != "" {
		return shared
	}
	return FieldLabel(fieldName)
}

// FieldLabel turns "password_minimum_length" into "Password Minimum Length"
func FieldLabel(fieldName string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(fieldName))
	return cases.Title(language.English).String(strings.Join(words, " "))
}
