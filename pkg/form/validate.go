package form

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// Length limits in runes.
const (
	MaxNameLength  = 20
	MaxFieldLength = 30
)

// Validation messages shown next to the offending field.
const (
	MsgRequired = "必須項目です"
	MsgJapanese = "日本語で入力してください"
	MsgEnglish  = "半角英字で入力してください"
	MsgTooLong  = "%d文字以内で入力してください"
	MsgTemplate = "テンプレートを1つ以上選択してください"
)

var (
	japaneseRegex = regexp.MustCompile(`^[ぁ-んァ-ヶー一-龯々]+$`)
	englishRegex  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
)

// FieldErrors maps a field name to its validation message. Group entries
// are keyed "group[i]".
type FieldErrors map[string]string

// Error lists the problems in field order.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fe[k]
	}
	return strings.Join(parts, "; ")
}

// Validate checks every field and returns the problems found, or nil.
func (d Data) Validate() FieldErrors {
	fe := FieldErrors{}

	for _, f := range []struct {
		name, value string
	}{
		{FieldLastNameJP, d.LastNameJP},
		{FieldFirstNameJP, d.FirstNameJP},
	} {
		switch {
		case strings.TrimSpace(f.value) == "":
			fe[f.name] = MsgRequired
		case !japaneseRegex.MatchString(f.value):
			fe[f.name] = MsgJapanese
		case utf8.RuneCountInString(f.value) > MaxNameLength:
			fe[f.name] = fmt.Sprintf(MsgTooLong, MaxNameLength)
		}
	}

	for _, f := range []struct {
		name, value string
	}{
		{FieldLastNameEN, d.LastNameEN},
		{FieldFirstNameEN, d.FirstNameEN},
	} {
		switch {
		case strings.TrimSpace(f.value) == "":
			fe[f.name] = MsgRequired
		case !englishRegex.MatchString(f.value):
			fe[f.name] = MsgEnglish
		case utf8.RuneCountInString(f.value) > MaxNameLength:
			fe[f.name] = fmt.Sprintf(MsgTooLong, MaxNameLength)
		}
	}

	optional := map[string]string{
		FieldDepartment1: d.Department1,
		FieldDepartment2: d.Department2,
		FieldRole:        d.Role,
	}
	for i, g := range d.Group {
		optional[fmt.Sprintf("%s[%d]", FieldGroup, i)] = g
	}
	for name, v := range optional {
		if utf8.RuneCountInString(v) > MaxFieldLength {
			fe[name] = fmt.Sprintf(MsgTooLong, MaxFieldLength)
		}
	}

	if len(d.SelectedTemplates) == 0 {
		fe["selected_templates"] = MsgTemplate
	}
	for _, id := range d.SelectedTemplates {
		if err := errors.ValidateTemplateID(id); err != nil {
			fe["selected_templates"] = errors.UserMessage(err)
			break
		}
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

// Check is [Data.Validate] as an INVALID_INPUT error.
func (d Data) Check() error {
	if fe := d.Validate(); fe != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, fe, "入力内容を確認してください")
	}
	return nil
}

var policy = bluemonday.StrictPolicy()

// Normalize strips markup and surrounding whitespace from every free-text
// field and drops blank group entries and duplicate template ids. Entities
// the sanitizer produces are decoded again, so "R&D" stays "R&D".
func (d Data) Normalize() Data {
	clean := func(s string) string {
		return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
	}
	out := Data{
		LastNameJP:  clean(d.LastNameJP),
		FirstNameJP: clean(d.FirstNameJP),
		LastNameEN:  clean(d.LastNameEN),
		FirstNameEN: clean(d.FirstNameEN),
		Department1: clean(d.Department1),
		Department2: clean(d.Department2),
		Role:        clean(d.Role),
		Affiliation: clean(d.Affiliation),
	}
	for _, g := range d.Group {
		if g = clean(g); g != "" {
			out.Group = append(out.Group, g)
		}
	}
	seen := make(map[string]bool, len(d.SelectedTemplates))
	for _, id := range d.SelectedTemplates {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out.SelectedTemplates = append(out.SelectedTemplates, id)
	}
	return out
}
