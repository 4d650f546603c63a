// Package resolve turns a template and a form into the tree of visible
// nodes for one scale and mode.
//
// Resolution never fails: texts without a value disappear, frames left
// without visible content disappear with them, and malformed nodes are
// skipped with a RESOLUTION_SKIP log entry. Per-frame and per-field
// behavior that the design data does not carry comes from [Rules].
package resolve

import (
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/template"
)

// MaxDepth bounds frame nesting.
const MaxDepth = 10

// Options tunes [Resolve]. The zero value uses [DefaultRules] and discards logs.
type Options struct {
	Rules  *Rules
	Logger *log.Logger
}

// Resolve computes the visible layout tree of tpl filled with data.
func Resolve(tpl *template.Template, data form.Data, scale float64, mode Mode, opts Options) *Result {
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if scale <= 0 {
		scale = 1
	}

	r := &resolver{
		tpl:    tpl,
		data:   data,
		scale:  scale,
		mode:   mode,
		rules:  opts.Rules,
		logger: opts.Logger.With("template", tpl.ID, "mode", mode),
		byID:   make(map[string]*template.TextField, len(tpl.Fields)),
	}
	for _, tf := range tpl.Fields {
		r.byID[tf.ID] = tf
	}

	res := &Result{
		TemplateID: tpl.ID,
		Mode:       mode,
		Scale:      scale,
		Width:      tpl.Width * scale,
		Height:     tpl.Height * scale,
	}

	claimed := make(map[string]bool)
	if !tpl.HasFrames() {
		res.Unstructured = true
	}
	// A frame tree claims its texts even when nothing in it resolves, so
	// texts cut off by the depth bound are dropped rather than drawn at
	// their absolute position.
	for _, f := range tpl.TopLevelFrames() {
		r.claim(f, claimed, map[string]bool{})
		if node := r.frame(f, nil, 0, map[string]bool{}); node != nil {
			res.Roots = append(res.Roots, node)
		}
	}

	for _, field := range tpl.FieldNames() {
		tf := tpl.Fields[field]
		if claimed[tf.ID] {
			continue
		}
		if t := r.absoluteText(tf); t != nil {
			res.Roots = append(res.Roots, t)
		}
	}
	return res
}

type resolver struct {
	tpl    *template.Template
	data   form.Data
	scale  float64
	mode   Mode
	rules  *Rules
	logger *log.Logger
	byID   map[string]*template.TextField
}

func (r *resolver) skip(msg string, kv ...any) {
	r.logger.Warn(msg, append([]any{"code", errors.ErrCodeResolutionSkip}, kv...)...)
}

func (r *resolver) value(tf *template.TextField) (string, bool) {
	v := r.data.Value(tf.Field)
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// frame resolves f and its descendants. path holds the ids of the frames
// above f and guards against cycles in hand-edited layouts.
func (r *resolver) frame(f *template.Frame, parent *template.Frame, depth int, path map[string]bool) *Frame {
	if depth > MaxDepth {
		r.logger.Warn("max nesting depth reached, truncating", "frame", f.Name, "depth", depth)
		return nil
	}
	if path[f.ID] {
		r.skip("frame cycle", "frame", f.Name, "id", f.ID)
		return nil
	}
	path[f.ID] = true
	defer delete(path, f.ID)

	rule := r.rules.Frame(f.Name)
	horizontal := f.Horizontal()

	var texts []*template.TextField
	for _, id := range f.Children {
		tf, ok := r.byID[id]
		if !ok {
			r.skip("unknown text", "frame", f.Name, "id", id)
			continue
		}
		if tf.FontSize <= 0 {
			r.skip("text without font size", "field", tf.Field)
			continue
		}
		if _, ok := r.value(tf); ok {
			texts = append(texts, tf)
		}
	}
	sort.SliceStable(texts, func(i, j int) bool {
		if horizontal {
			return texts[i].X < texts[j].X
		}
		return texts[i].Y < texts[j].Y
	})

	var kids []*template.Frame
	for _, id := range f.ChildFrames {
		cf, ok := r.tpl.Frames[id]
		if !ok || id == f.ID {
			r.skip("unknown child frame", "frame", f.Name, "id", id)
			continue
		}
		kids = append(kids, cf)
	}
	reverse := rule.ReverseRows && !horizontal
	sort.SliceStable(kids, func(i, j int) bool {
		if horizontal {
			return kids[i].X < kids[j].X
		}
		if reverse {
			return kids[i].Y > kids[j].Y
		}
		return kids[i].Y < kids[j].Y
	})

	var children []Node
	for _, tf := range texts {
		children = append(children, r.flexText(tf, rule))
	}
	for _, cf := range kids {
		if n := r.frame(cf, f, depth+1, path); n != nil {
			children = append(children, n)
		}
	}
	if len(children) == 0 {
		return nil
	}

	out := &Frame{
		ID:         f.ID,
		Name:       f.Name,
		Horizontal: horizontal,
		Gap:        r.gap(f, rule),
		AlignItems: r.alignItems(f, rule),
		Justify:    r.justify(f, rule),
		Padding: Padding{
			Top:    f.PaddingTop * r.scale,
			Right:  f.PaddingRight * r.scale,
			Bottom: f.PaddingBottom * r.scale,
			Left:   f.PaddingLeft * r.scale,
		},
		Children: children,
	}
	if depth == 1 && !rule.KeepVerticalPadding {
		out.Padding.Top, out.Padding.Bottom = 0, 0
	}
	if r.mode == Export {
		out.MarginTop = rule.MarginTopExport * r.scale
	}

	if parent == nil {
		out.Position, out.MinWidth = r.framePosition(f, rule)
	} else {
		if f.LayoutAlign == template.AlignStretch {
			out.AlignSelf = AlignStretch
		}
		if f.LayoutGrow > 0 {
			out.FlexGrow = f.LayoutGrow
		}
	}
	return out
}

func (r *resolver) gap(f *template.Frame, rule FrameRule) float64 {
	gap := 0.0
	if rule.Gap != nil {
		gap = *rule.Gap
	}
	forced := r.mode == Export && rule.ForceDefaultGapOnExport
	if f.ItemSpacing != nil && !forced {
		gap = *f.ItemSpacing
	}
	return gap * r.scale
}

func (r *resolver) alignItems(f *template.Frame, rule FrameRule) Align {
	if !f.Horizontal() && rule.AlignItems != AlignAuto {
		return rule.AlignItems
	}
	switch f.CounterAxisAlignItems {
	case template.AlignCenter:
		return AlignCenter
	case template.AlignMax:
		return AlignEnd
	}
	return AlignStart
}

func (r *resolver) justify(f *template.Frame, rule FrameRule) Align {
	if f.Horizontal() && rule.JustifyContent != AlignAuto {
		return rule.JustifyContent
	}
	switch f.PrimaryAxisAlignItems {
	case template.AlignCenter:
		return AlignCenter
	case template.AlignSpaceBetween:
		return AlignSpaceBetween
	case template.AlignMax:
		return AlignEnd
	case template.AlignMin:
		return AlignStart
	}
	if rule.JustifyDefault != AlignAuto {
		return rule.JustifyDefault
	}
	return AlignStart
}

func (r *resolver) framePosition(f *template.Frame, rule FrameRule) (*Position, float64) {
	var minWidth float64
	switch f.HorizontalConstraint() {
	case template.ConstraintLeftRight, template.ConstraintScale:
		minWidth = f.Width * r.scale
	}

	if o := rule.FixedOffset; o != nil {
		return &Position{Anchor: AnchorRight, Offset: o.Right * r.scale, Top: o.Top * r.scale}, minWidth
	}

	right := f.HorizontalConstraint() == template.ConstraintRight ||
		f.PrimaryAxisAlignItems == template.AlignMax ||
		f.CounterAxisAlignItems == template.AlignMax ||
		rule.RightAnchored
	pos := &Position{Top: f.Y * r.scale}
	switch {
	case right:
		pos.Anchor = AnchorRight
		pos.Offset = (r.tpl.Width - (f.X + f.Width)) * r.scale
	case f.HorizontalConstraint() == template.ConstraintCenter:
		pos.Anchor = AnchorCenter
		pos.Offset = (f.X + f.Width/2) * r.scale
	default:
		pos.Anchor = AnchorLeft
		pos.Offset = f.X * r.scale
	}
	return pos, minWidth
}

// style builds the typography shared by flex and absolute texts.
func (r *resolver) style(tf *template.TextField, fr FieldRule) Style {
	s := Style{
		FontSize:      tf.FontSize * r.scale,
		FontWeight:    int(tf.FontWeight),
		FontFamily:    tf.FontFamily,
		LineHeight:    tf.LineHeight.Ratio(tf.FontSize),
		LetterSpacing: fr.LetterSpacingEm,
		TextAlign:     textAlignOf(tf.TextAlignHorizontal),
		Shadows:       fr.Shadows(),
	}
	s.Color, s.HasColor = paintColor(tf.Fills)
	return s
}

func (r *resolver) display(tf *template.TextField, fr FieldRule) string {
	v, _ := r.value(tf)
	if fr.Uppercase {
		return strings.ToUpper(v)
	}
	return v
}

func (r *resolver) flexText(tf *template.TextField, parent FrameRule) *Text {
	fr := r.rules.Field(tf.Field)
	s := r.style(tf, fr)
	if fr.TextAlign != "" {
		s.TextAlign = fr.TextAlign
	}
	if fr.Name && parent.NameLineHeight {
		s.LineHeight = 1
	}
	if len(s.Shadows) > 0 && len(parent.Shadows()) > 0 {
		s.Shadows = parent.Shadows()
	}
	switch tf.LayoutAlign {
	case template.AlignStretch:
		s.AlignSelf = AlignStretch
	case template.AlignCenter:
		s.AlignSelf = AlignCenter
	case template.AlignMax:
		s.AlignSelf = AlignEnd
	case template.AlignMin:
		s.AlignSelf = AlignStart
	}
	if tf.LayoutGrow > 0 {
		s.FlexGrow = tf.LayoutGrow
	}
	return &Text{
		ID:     tf.ID,
		Field:  tf.Field,
		Value:  r.display(tf, fr),
		Style:  s,
		Width:  tf.Width * r.scale,
		Height: tf.Height * r.scale,
	}
}

// absoluteText places a text outside any frame by its own constraint.
func (r *resolver) absoluteText(tf *template.TextField) *Text {
	if _, ok := r.value(tf); !ok {
		return nil
	}
	if tf.FontSize <= 0 {
		r.skip("text without font size", "field", tf.Field)
		return nil
	}
	fr := r.rules.Field(tf.Field)
	s := r.style(tf, fr)
	if fr.Name {
		s.LineHeight = 1
	}

	top := tf.Y
	if r.mode == Export {
		top += fr.TopOffsetExport
	}
	pos := &Position{Top: top * r.scale}
	switch tf.HorizontalConstraint() {
	case template.ConstraintRight:
		pos.Anchor = AnchorRight
		pos.Offset = (r.tpl.Width - (tf.X + tf.Width)) * r.scale
	case template.ConstraintCenter:
		pos.Anchor = AnchorCenter
		pos.Offset = (tf.X + tf.Width/2) * r.scale
	default:
		pos.Anchor = AnchorLeft
		pos.Offset = tf.X * r.scale
	}

	return &Text{
		ID:       tf.ID,
		Field:    tf.Field,
		Value:    r.display(tf, fr),
		Style:    s,
		Position: pos,
		Width:    tf.Width * r.scale,
		Height:   tf.Height * r.scale,
	}
}

// claim marks every text in f's tree as rendered by a frame, whether or
// not it was visible. Texts below the depth bound stay claimed and hidden.
func (r *resolver) claim(f *template.Frame, claimed, seen map[string]bool) {
	if seen[f.ID] {
		return
	}
	seen[f.ID] = true
	for _, id := range f.Children {
		claimed[id] = true
	}
	for _, id := range f.ChildFrames {
		if cf, ok := r.tpl.Frames[id]; ok {
			r.claim(cf, claimed, seen)
		}
	}
}
