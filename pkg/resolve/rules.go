package resolve

import (
	_ "embed"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/backdrop/pkg/errors"
)

//go:embed rules.toml
var defaultRules []byte

// Match kinds.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
)

// Rules is the per-frame and per-field configuration table the resolver
// consults for everything the design data does not carry.
type Rules struct {
	Frames []FrameRule `toml:"frame" json:"frames"`
	Fields []FieldRule `toml:"field" json:"fields"`
}

// Offset pins a top-level frame to the canvas' top-right corner.
type Offset struct {
	Top   float64 `toml:"top" json:"top"`
	Right float64 `toml:"right" json:"right"`
}

// FrameRule configures frames whose name matches.
type FrameRule struct {
	Match     string `toml:"match" json:"match"`
	MatchKind string `toml:"match_kind" json:"match_kind,omitempty"`

	// Gap is the default item spacing when the frame does not set one.
	Gap *float64 `toml:"gap" json:"gap,omitempty"`
	// ForceDefaultGapOnExport ignores the frame's own spacing in export mode.
	ForceDefaultGapOnExport bool `toml:"force_default_gap_on_export" json:"force_default_gap_on_export,omitempty"`

	// AlignItems overrides cross-axis alignment of vertical frames.
	AlignItems Align `toml:"align_items" json:"align_items,omitempty"`
	// JustifyContent overrides main-axis alignment of horizontal frames.
	JustifyContent Align `toml:"justify_content" json:"justify_content,omitempty"`
	// JustifyDefault applies when the frame sets no primary alignment.
	JustifyDefault Align `toml:"justify_default" json:"justify_default,omitempty"`

	RightAnchored       bool    `toml:"right_anchored" json:"right_anchored,omitempty"`
	FixedOffset         *Offset `toml:"fixed_offset" json:"fixed_offset,omitempty"`
	KeepVerticalPadding bool    `toml:"keep_vertical_padding" json:"keep_vertical_padding,omitempty"`

	// NameLineHeight sets line height 1 on name fields directly inside.
	NameLineHeight bool `toml:"name_line_height" json:"name_line_height,omitempty"`
	// ReverseRows orders child frames bottom-up in vertical frames.
	ReverseRows bool `toml:"reverse_rows" json:"reverse_rows,omitempty"`

	MarginTopExport float64 `toml:"margin_top_export" json:"margin_top_export,omitempty"`

	// Shadow replaces the glow of shadowed texts directly inside.
	Shadow string `toml:"shadow" json:"shadow,omitempty"`

	shadows []Shadow
}

// FieldRule configures texts whose field name matches.
type FieldRule struct {
	Match     string `toml:"match" json:"match"`
	MatchKind string `toml:"match_kind" json:"match_kind,omitempty"`

	Uppercase bool `toml:"uppercase" json:"uppercase,omitempty"`
	// Name marks person-name fields for the name line-height rules.
	Name            bool    `toml:"name" json:"name,omitempty"`
	LetterSpacingEm float64 `toml:"letter_spacing_em" json:"letter_spacing_em,omitempty"`
	Shadow          string  `toml:"shadow" json:"shadow,omitempty"`
	// TextAlign overrides the layer's alignment inside frames.
	TextAlign TextAlign `toml:"text_align" json:"text_align,omitempty"`
	// TopOffsetExport moves absolutely placed texts down in export mode.
	TopOffsetExport float64 `toml:"top_offset_export" json:"top_offset_export,omitempty"`

	shadows []Shadow
}

// DefaultRules returns the built-in table.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRules)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads a rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse rules")
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	for i := range r.Frames {
		fr := &r.Frames[i]
		if err := checkMatch(fr.Match, &fr.MatchKind); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "frame rule %d", i)
		}
		for _, a := range []Align{fr.AlignItems, fr.JustifyContent, fr.JustifyDefault} {
			if !validAligns[a] {
				return errors.New(errors.ErrCodeInvalidConfig, "frame rule %q: unknown alignment %q", fr.Match, a)
			}
		}
		sh, err := ParseShadow(fr.Shadow)
		if err != nil {
			return err
		}
		fr.shadows = sh
	}
	for i := range r.Fields {
		fr := &r.Fields[i]
		if err := checkMatch(fr.Match, &fr.MatchKind); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "field rule %d", i)
		}
		switch fr.TextAlign {
		case "", TextLeft, TextCenter, TextRight:
		default:
			return errors.New(errors.ErrCodeInvalidConfig, "field rule %q: unknown text_align %q", fr.Match, fr.TextAlign)
		}
		sh, err := ParseShadow(fr.Shadow)
		if err != nil {
			return err
		}
		fr.shadows = sh
	}
	return nil
}

func checkMatch(match string, kind *string) error {
	if match == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "empty match")
	}
	switch *kind {
	case "":
		*kind = MatchExact
	case MatchExact, MatchContains:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown match_kind %q", *kind)
	}
	return nil
}

func matches(match, kind, name string) bool {
	name, match = strings.ToLower(name), strings.ToLower(match)
	if kind == MatchContains {
		return strings.Contains(name, match)
	}
	return name == match
}

// Frame merges every rule matching the frame name.
func (r *Rules) Frame(name string) FrameRule {
	var out FrameRule
	for _, fr := range r.Frames {
		if !matches(fr.Match, fr.MatchKind, name) {
			continue
		}
		if out.Match == "" {
			out.Match, out.MatchKind = fr.Match, fr.MatchKind
		}
		if out.Gap == nil {
			out.Gap = fr.Gap
		}
		if out.AlignItems == AlignAuto {
			out.AlignItems = fr.AlignItems
		}
		if out.JustifyContent == AlignAuto {
			out.JustifyContent = fr.JustifyContent
		}
		if out.JustifyDefault == AlignAuto {
			out.JustifyDefault = fr.JustifyDefault
		}
		if out.FixedOffset == nil {
			out.FixedOffset = fr.FixedOffset
		}
		if out.MarginTopExport == 0 {
			out.MarginTopExport = fr.MarginTopExport
		}
		if out.Shadow == "" {
			out.Shadow, out.shadows = fr.Shadow, fr.shadows
		}
		out.ForceDefaultGapOnExport = out.ForceDefaultGapOnExport || fr.ForceDefaultGapOnExport
		out.RightAnchored = out.RightAnchored || fr.RightAnchored
		out.KeepVerticalPadding = out.KeepVerticalPadding || fr.KeepVerticalPadding
		out.NameLineHeight = out.NameLineHeight || fr.NameLineHeight
		out.ReverseRows = out.ReverseRows || fr.ReverseRows
	}
	return out
}

// Field merges every rule matching the field name.
func (r *Rules) Field(name string) FieldRule {
	var out FieldRule
	for _, fr := range r.Fields {
		if !matches(fr.Match, fr.MatchKind, name) {
			continue
		}
		if out.Match == "" {
			out.Match, out.MatchKind = fr.Match, fr.MatchKind
		}
		if out.LetterSpacingEm == 0 {
			out.LetterSpacingEm = fr.LetterSpacingEm
		}
		if out.Shadow == "" {
			out.Shadow, out.shadows = fr.Shadow, fr.shadows
		}
		if out.TextAlign == "" {
			out.TextAlign = fr.TextAlign
		}
		if out.TopOffsetExport == 0 {
			out.TopOffsetExport = fr.TopOffsetExport
		}
		out.Uppercase = out.Uppercase || fr.Uppercase
		out.Name = out.Name || fr.Name
	}
	return out
}

// Shadows returns the parsed shadow profile.
func (fr FieldRule) Shadows() []Shadow { return fr.shadows }

// Shadows returns the parsed shadow profile.
func (fr FrameRule) Shadows() []Shadow { return fr.shadows }
