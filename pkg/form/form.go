// Package form holds the user's form data: names, affiliation and the
// selected templates.
//
// [Data.Value] maps a template's bound field name to the display string,
// [Data.Validate] reports per-field problems, and [Store] persists the form
// between runs under a fixed key.
package form

import (
	"encoding/json"
	"strings"
)

// Bound field names.
const (
	FieldLastNameJP  = "last_name_jp"
	FieldFirstNameJP = "first_name_jp"
	FieldLastNameEN  = "last_name_en"
	FieldFirstNameEN = "first_name_en"
	FieldDepartment1 = "department_1"
	FieldDepartment2 = "department_2"
	FieldGroup       = "group"
	FieldRole        = "role"
)

// GroupSeparator joins group entries for display.
const GroupSeparator = " / "

// Data is one user's form.
type Data struct {
	LastNameJP        string    `json:"last_name_jp"`
	FirstNameJP       string    `json:"first_name_jp"`
	LastNameEN        string    `json:"last_name_en"`
	FirstNameEN       string    `json:"first_name_en"`
	Department1       string    `json:"department_1"`
	Department2       string    `json:"department_2"`
	Group             GroupList `json:"group"`
	Role              string    `json:"role"`
	Affiliation       string    `json:"custom_affiliation,omitempty"`
	SelectedTemplates []string  `json:"selected_templates"`
}

// GroupList is the list of group-level affiliations. Older stores saved a
// single string, which decodes as a one-element list.
type GroupList []string

// UnmarshalJSON accepts a string or a list of strings.
func (g *GroupList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*g = nil
		} else {
			*g = GroupList{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*g = list
	return nil
}

// Text joins the non-blank entries with [GroupSeparator].
func (g GroupList) Text() string {
	parts := make([]string, 0, len(g))
	for _, s := range g {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, GroupSeparator)
}

// Value returns the display string for a bound field, or "" for unknown
// fields. The group field shows the free-text affiliation when one is set.
func (d Data) Value(field string) string {
	switch field {
	case FieldLastNameJP:
		return d.LastNameJP
	case FieldFirstNameJP:
		return d.FirstNameJP
	case FieldLastNameEN:
		return d.LastNameEN
	case FieldFirstNameEN:
		return d.FirstNameEN
	case FieldDepartment1:
		return d.Department1
	case FieldDepartment2:
		return d.Department2
	case FieldGroup:
		if strings.TrimSpace(d.Affiliation) != "" {
			return d.Affiliation
		}
		return d.Group.Text()
	case FieldRole:
		return d.Role
	}
	return ""
}

// Has reports whether field has a non-blank value.
func (d Data) Has(field string) bool {
	return strings.TrimSpace(d.Value(field)) != ""
}

// IsValid reports whether the form can be exported: all four names present
// and at least one template selected.
func (d Data) IsValid() bool {
	for _, f := range []string{FieldLastNameJP, FieldFirstNameJP, FieldLastNameEN, FieldFirstNameEN} {
		if !d.Has(f) {
			return false
		}
	}
	return len(d.SelectedTemplates) > 0
}

// ConfirmThreshold is the selection size above which a download asks for
// confirmation.
const ConfirmThreshold = 3

// NeedsConfirm reports whether exporting the selection should be confirmed.
func (d Data) NeedsConfirm() bool {
	return len(d.SelectedTemplates) > ConfirmThreshold
}

// Clone returns a deep copy.
func (d Data) Clone() Data {
	d.Group = append(GroupList(nil), d.Group...)
	d.SelectedTemplates = append([]string(nil), d.SelectedTemplates...)
	return d
}
