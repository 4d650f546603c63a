package template

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// DefaultMarker prefixes text node names that bind to a form field.
const DefaultMarker = "#"

// DefaultMaxDepth bounds recursion into the design-node tree.
const DefaultMaxDepth = 10

// Node is a raw design-tool node as returned by the Figma REST API
// (files/{key}/nodes → nodes[id].document). Only the properties the
// extractor reads are declared.
type Node struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	Type                  string       `json:"type"`
	Children              []*Node      `json:"children,omitempty"`
	AbsoluteBoundingBox   *Rect        `json:"absoluteBoundingBox,omitempty"`
	Style                 *TypeStyle   `json:"style,omitempty"`
	Fills                 []Paint      `json:"fills,omitempty"`
	LayoutMode            LayoutMode   `json:"layoutMode,omitempty"`
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
}

// Rect is an absolute bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TypeStyle is the subset of a text node's style the renderer needs.
type TypeStyle struct {
	FontFamily                string  `json:"fontFamily"`
	FontWeight                float64 `json:"fontWeight"`
	FontSize                  float64 `json:"fontSize"`
	TextAlignHorizontal       string  `json:"textAlignHorizontal"`
	TextAlignVertical         string  `json:"textAlignVertical"`
	LineHeightPx              float64 `json:"lineHeightPx"`
	LineHeightPercentFontSize float64 `json:"lineHeightPercentFontSize"`
	LineHeightUnit            string  `json:"lineHeightUnit"`
}

// ExtractOptions configures [Extract].
type ExtractOptions struct {
	Marker   string      // field marker prefix, default "#"
	MaxDepth int         // recursion bound, default 10
	Logger   *log.Logger // receives skip and truncation warnings
}

func (o *ExtractOptions) setDefaults() {
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
}

// Extract builds a layout document from a raw node tree rooted at the
// template frame. Coordinates become relative to the root's origin.
//
// Marked text nodes become text layers. FRAME and GROUP nodes with a
// layout mode other than NONE and at least one marked text descendant
// become frames; each frame records its nearest retained text and frame
// descendants, skipping containers that do not qualify. Nodes without a
// bounding box are skipped and branches deeper than MaxDepth are cut, both
// with a warning.
func Extract(root *Node, opts ExtractOptions) (*Layout, error) {
	opts.setDefaults()
	if root == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "empty node tree")
	}
	if root.AbsoluteBoundingBox == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "root node %s has no bounding box", root.ID)
	}

	x := &extractor{
		opts:   opts,
		origin: *root.AbsoluteBoundingBox,
		layout: &Layout{
			TextLayers: make(map[string]*TextField),
			Frames:     make(map[string]*Frame),
			Width:      root.AbsoluteBoundingBox.Width,
			Height:     root.AbsoluteBoundingBox.Height,
		},
		marked: make(map[*Node]bool),
	}
	x.walk(root, nil, nil, 0)
	return x.layout, nil
}

type extractor struct {
	opts   ExtractOptions
	origin Rect
	layout *Layout
	marked map[*Node]bool
}

func (x *extractor) walk(n *Node, parent *Node, frame *Frame, depth int) {
	if n == nil {
		return
	}
	if depth > x.opts.MaxDepth {
		x.opts.Logger.Warn("max nesting depth reached, truncating branch", "node", n.ID, "name", n.Name, "depth", depth)
		return
	}

	if x.isField(n) {
		x.addText(n, parent, frame)
		return
	}

	if x.qualifies(n, depth) {
		f := x.addFrame(n)
		if frame != nil {
			frame.ChildFrames = append(frame.ChildFrames, f.ID)
		}
		frame = f
	}
	for _, c := range n.Children {
		x.walk(c, n, frame, depth+1)
	}
}

func (x *extractor) isField(n *Node) bool {
	return n.Type == "TEXT" && strings.HasPrefix(n.Name, x.opts.Marker) && len(n.Name) > len(x.opts.Marker)
}

func (x *extractor) qualifies(n *Node, depth int) bool {
	if n.Type != "FRAME" && n.Type != "GROUP" {
		return false
	}
	if n.LayoutMode == "" || n.LayoutMode == LayoutNone {
		return false
	}
	if n.AbsoluteBoundingBox == nil {
		x.opts.Logger.Warn("skipping frame without bounding box", "node", n.ID, "name", n.Name)
		return false
	}
	return x.hasField(n, depth)
}

// hasField reports whether n has a marked text descendant within the depth bound.
func (x *extractor) hasField(n *Node, depth int) bool {
	if v, ok := x.marked[n]; ok {
		return v
	}
	found := false
	if depth <= x.opts.MaxDepth {
		for _, c := range n.Children {
			if c != nil && (x.isField(c) || x.hasField(c, depth+1)) {
				found = true
				break
			}
		}
	}
	x.marked[n] = found
	return found
}

func (x *extractor) addText(n *Node, parent *Node, frame *Frame) {
	field := strings.TrimPrefix(n.Name, x.opts.Marker)
	if n.AbsoluteBoundingBox == nil {
		x.opts.Logger.Warn("skipping text layer without bounding box", "field", field, "node", n.ID)
		return
	}
	if prev, dup := x.layout.TextLayers[field]; dup {
		x.opts.Logger.Warn("duplicate field, keeping first", "field", field, "kept", prev.ID, "skipped", n.ID)
		return
	}

	box := n.AbsoluteBoundingBox
	t := &TextField{
		ID:                  n.ID,
		Name:                n.Name,
		Field:               field,
		X:                   box.X - x.origin.X,
		Y:                   box.Y - x.origin.Y,
		Width:               box.Width,
		Height:              box.Height,
		FontSize:            16,
		FontWeight:          400,
		FontFamily:          "Inter",
		TextAlignHorizontal: "LEFT",
		TextAlignVertical:   "TOP",
		Fills:               n.Fills,
		LineHeight:          LineHeight{Unit: LineHeightAuto},
		LayoutGrow:          n.LayoutGrow,
		LayoutAlign:         n.LayoutAlign,
		LayoutPositioning:   n.LayoutPositioning,
		Constraints:         n.Constraints,
	}
	if parent != nil {
		t.ParentID = parent.ID
	}
	if s := n.Style; s != nil {
		if s.FontSize > 0 {
			t.FontSize = s.FontSize
		}
		if s.FontWeight > 0 {
			t.FontWeight = s.FontWeight
		}
		if s.FontFamily != "" {
			t.FontFamily = s.FontFamily
		}
		if s.TextAlignHorizontal != "" {
			t.TextAlignHorizontal = s.TextAlignHorizontal
		}
		if s.TextAlignVertical != "" {
			t.TextAlignVertical = s.TextAlignVertical
		}
		t.LineHeight = styleLineHeight(s)
	}
	if t.Fills == nil {
		t.Fills = []Paint{}
	}

	x.layout.TextLayers[field] = t
	if frame != nil {
		frame.Children = append(frame.Children, t.ID)
	}
}

func styleLineHeight(s *TypeStyle) LineHeight {
	switch s.LineHeightUnit {
	case "INTRINSIC_%":
		return LineHeight{Unit: LineHeightAuto}
	case "FONT_SIZE_%":
		if s.LineHeightPercentFontSize > 0 {
			return LineHeight{Unit: LineHeightPercent, Value: s.LineHeightPercentFontSize}
		}
	}
	if s.LineHeightPx > 0 {
		return LineHeight{Unit: LineHeightPixels, Value: s.LineHeightPx}
	}
	return LineHeight{Unit: LineHeightAuto}
}

func (x *extractor) addFrame(n *Node) *Frame {
	box := n.AbsoluteBoundingBox
	f := &Frame{
		ID:                    n.ID,
		Name:                  n.Name,
		X:                     box.X - x.origin.X,
		Y:                     box.Y - x.origin.Y,
		Width:                 box.Width,
		Height:                box.Height,
		LayoutMode:            n.LayoutMode,
		PrimaryAxisAlignItems: n.PrimaryAxisAlignItems,
		CounterAxisAlignItems: n.CounterAxisAlignItems,
		PrimaryAxisSizingMode: n.PrimaryAxisSizingMode,
		CounterAxisSizingMode: n.CounterAxisSizingMode,
		ItemSpacing:           n.ItemSpacing,
		PaddingLeft:           n.PaddingLeft,
		PaddingRight:          n.PaddingRight,
		PaddingTop:            n.PaddingTop,
		PaddingBottom:         n.PaddingBottom,
		LayoutPositioning:     n.LayoutPositioning,
		LayoutAlign:           n.LayoutAlign,
		LayoutGrow:            n.LayoutGrow,
		Constraints:           n.Constraints,
		Fills:                 n.Fills,
		Children:              []string{},
	}
	x.layout.Frames[f.ID] = f
	return f
}
