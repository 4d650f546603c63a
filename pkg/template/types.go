package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LayoutMode is a frame's auto-layout axis.
type LayoutMode string

const (
	LayoutNone       LayoutMode = "NONE"
	LayoutHorizontal LayoutMode = "HORIZONTAL"
	LayoutVertical   LayoutMode = "VERTICAL"
)

// Alignment and constraint values used by the design source.
const (
	AlignMin          = "MIN"
	AlignCenter       = "CENTER"
	AlignMax          = "MAX"
	AlignSpaceBetween = "SPACE_BETWEEN"
	AlignStretch      = "STRETCH"

	ConstraintLeft      = "LEFT"
	ConstraintRight     = "RIGHT"
	ConstraintCenter    = "CENTER"
	ConstraintLeftRight = "LEFT_RIGHT"
	ConstraintScale     = "SCALE"

	PositioningAbsolute = "ABSOLUTE"
)

// Line height units.
const (
	LineHeightPixels  = "PIXELS"
	LineHeightPercent = "PERCENT"
	LineHeightAuto    = "AUTO"
)

// Color is an RGBA color with channels in [0, 1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Paint is one entry of a fill list. Only SOLID paints carry a color the
// renderer understands.
type Paint struct {
	Type    string   `json:"type"`
	Color   *Color   `json:"color,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
}

// Constraints anchor a node to its container.
type Constraints struct {
	Horizontal string `json:"horizontal"`
	Vertical   string `json:"vertical"`
}

// LineHeight is a line height in its source unit.
//
// Bundles written by older fetch scripts store a bare number (pixels) or
// the string "AUTO"; both decode into the structured form.
type LineHeight struct {
	Unit  string  `json:"unit"`
	Value float64 `json:"value,omitempty"`
}

// UnmarshalJSON accepts {"unit","value"}, a number, or "AUTO".
func (l *LineHeight) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*l = LineHeight{Unit: LineHeightPixels, Value: num}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = LineHeight{Unit: strings.ToUpper(s)}
		return nil
	}
	type plain LineHeight
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("line height: %w", err)
	}
	*l = LineHeight(p)
	return nil
}

// Ratio normalizes the line height to a unitless multiplier of fontSize.
// Pixel values divide by the font size, percentages by 100; AUTO, unknown
// units and non-positive values give 1.2.
func (l LineHeight) Ratio(fontSize float64) float64 {
	switch l.Unit {
	case LineHeightPixels:
		if l.Value > 0 && fontSize > 0 {
			return l.Value / fontSize
		}
	case LineHeightPercent:
		if l.Value > 0 {
			return l.Value / 100
		}
	}
	return DefaultLineHeight
}

// DefaultLineHeight is the ratio used for AUTO or missing line heights.
const DefaultLineHeight = 1.2

// TextField is a text node bound to a form field.
type TextField struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Field               string       `json:"-"`
	X                   float64      `json:"x"`
	Y                   float64      `json:"y"`
	Width               float64      `json:"width"`
	Height              float64      `json:"height"`
	FontSize            float64      `json:"fontSize"`
	FontWeight          float64      `json:"fontWeight"`
	FontFamily          string       `json:"fontFamily"`
	TextAlignHorizontal string       `json:"textAlignHorizontal"`
	TextAlignVertical   string       `json:"textAlignVertical"`
	Fills               []Paint      `json:"fills"`
	LineHeight          LineHeight   `json:"lineHeight"`
	LayoutGrow          float64      `json:"layoutGrow,omitempty"`
	LayoutAlign         string       `json:"layoutAlign,omitempty"`
	LayoutPositioning   string       `json:"layoutPositioning,omitempty"`
	Constraints         *Constraints `json:"constraints,omitempty"`
	ParentID            string       `json:"parentId,omitempty"`
}

// HorizontalConstraint returns the horizontal constraint or "".
func (t *TextField) HorizontalConstraint() string {
	if t.Constraints == nil {
		return ""
	}
	return t.Constraints.Horizontal
}

// Frame is an auto-layout container.
type Frame struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	X                     float64      `json:"x"`
	Y                     float64      `json:"y"`
	Width                 float64      `json:"width"`
	Height                float64      `json:"height"`
	LayoutMode            LayoutMode   `json:"layoutMode"`
	PrimaryAxisAlignItems string       `json:"primaryAxisAlignItems,omitempty"`
	CounterAxisAlignItems string       `json:"counterAxisAlignItems,omitempty"`
	PrimaryAxisSizingMode string       `json:"primaryAxisSizingMode,omitempty"`
	CounterAxisSizingMode string       `json:"counterAxisSizingMode,omitempty"`
	ItemSpacing           *float64     `json:"itemSpacing,omitempty"`
	PaddingLeft           float64      `json:"paddingLeft,omitempty"`
	PaddingRight          float64      `json:"paddingRight,omitempty"`
	PaddingTop            float64      `json:"paddingTop,omitempty"`
	PaddingBottom         float64      `json:"paddingBottom,omitempty"`
	LayoutPositioning     string       `json:"layoutPositioning,omitempty"`
	LayoutAlign           string       `json:"layoutAlign,omitempty"`
	LayoutGrow            float64      `json:"layoutGrow,omitempty"`
	Constraints           *Constraints `json:"constraints,omitempty"`
	Fills                 []Paint      `json:"fills,omitempty"`
	Children              []string     `json:"children"`
	ChildFrames           []string     `json:"childFrames,omitempty"`
}

// HorizontalConstraint returns the horizontal constraint or "".
func (f *Frame) HorizontalConstraint() string {
	if f.Constraints == nil {
		return ""
	}
	return f.Constraints.Horizontal
}

// Horizontal reports whether the frame lays out along x.
func (f *Frame) Horizontal() bool {
	return f.LayoutMode == LayoutHorizontal
}

// Image is a template background: embedded bytes, or a URL to fetch.
type Image struct {
	Data      []byte
	MediaType string
	URL       string
}

// Embedded reports whether the image bytes are already in memory.
func (i Image) Embedded() bool {
	return len(i.Data) > 0
}

// Template is one loaded background design. It is immutable after load and
// safe to share between goroutines.
type Template struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	NodeID      string
	Background  Image

	// Fields maps form field names to their text nodes.
	Fields map[string]*TextField
	// Frames maps frame ids to frames.
	Frames map[string]*Frame

	Width  float64
	Height float64
}

// HasFrames reports whether the template carries any auto-layout frame.
func (t *Template) HasFrames() bool {
	return len(t.Frames) > 0
}

// Field returns the text field with the given node id.
func (t *Template) Field(id string) (*TextField, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// TopLevelFrames returns the frames no other frame lists as a child,
// ordered by position (top to bottom, then left to right) and id.
func (t *Template) TopLevelFrames() []*Frame {
	nested := make(map[string]bool)
	for _, f := range t.Frames {
		for _, id := range f.ChildFrames {
			nested[id] = true
		}
	}
	var top []*Frame
	for _, f := range t.Frames {
		if !nested[f.ID] {
			top = append(top, f)
		}
	}
	sort.Slice(top, func(i, j int) bool {
		a, b := top[i], top[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.ID < b.ID
	})
	return top
}

// FieldNames returns the bound field names in sorted order.
func (t *Template) FieldNames() []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
