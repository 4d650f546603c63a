package render

import (
	"unicode/utf8"

	"github.com/matzehuels/backdrop/pkg/fonts"
	"github.com/matzehuels/backdrop/pkg/resolve"
)

// Measurer measures single lines of text in pixels. [*fonts.Measurer]
// implements it.
type Measurer interface {
	Width(s string, size float64, weight int) float64
	Metrics(size float64, weight int) fonts.Metrics
}

// Layout positions a resolved tree on a canvasW×canvasH canvas. The
// template's scaled area is centred on the canvas.
//
// Frames hug their content: the main size is the children's sizes plus the
// gaps between consecutive children plus padding, the cross size is the
// largest child plus padding. Space left over against a minimum width is
// distributed by flex-grow first, then by the frame's justification.
func Layout(res *resolve.Result, canvasW, canvasH float64, m Measurer) *Scene {
	s := &Scene{
		TemplateID: res.TemplateID,
		Mode:       res.Mode,
		Scale:      res.Scale,
		Width:      canvasW,
		Height:     canvasH,
	}
	ox := (canvasW - res.Width) / 2
	oy := (canvasH - res.Height) / 2
	s.Area = boxAt(ox, oy, res.Width, res.Height)

	l := &layouter{m: m}
	for _, n := range res.Roots {
		sz := l.measure(n)
		pos := rootPosition(n)
		var x float64
		switch pos.Anchor {
		case resolve.AnchorRight:
			x = ox + res.Width - pos.Offset - sz.w
		case resolve.AnchorCenter:
			x = ox + pos.Offset - sz.w/2
		default:
			x = ox + pos.Offset
		}
		l.place(sz, x, oy+pos.Top+sz.marginTop, sz.w, sz.h)
	}
	s.Items = l.items
	return s
}

func rootPosition(n resolve.Node) resolve.Position {
	switch v := n.(type) {
	case *resolve.Text:
		if v.Position != nil {
			return *v.Position
		}
	case *resolve.Frame:
		if v.Position != nil {
			return *v.Position
		}
	}
	return resolve.Position{}
}

type layouter struct {
	m     Measurer
	items []Item
}

// sized is a node with its intrinsic border-box size.
type sized struct {
	node      resolve.Node
	w, h      float64
	textW     float64
	marginTop float64
	kids      []*sized
}

func (s *sized) alignSelf() resolve.Align {
	switch v := s.node.(type) {
	case *resolve.Text:
		return v.Style.AlignSelf
	case *resolve.Frame:
		return v.AlignSelf
	}
	return resolve.AlignAuto
}

func (s *sized) grow() float64 {
	switch v := s.node.(type) {
	case *resolve.Text:
		return v.Style.FlexGrow
	case *resolve.Frame:
		return v.FlexGrow
	}
	return 0
}

// along returns the main and cross size of s in a parent running along
// the given axis. The top margin counts against the vertical extent.
func (s *sized) along(horizontal bool) (main, cross float64) {
	if horizontal {
		return s.w, s.h + s.marginTop
	}
	return s.h + s.marginTop, s.w
}

func (l *layouter) textWidth(t *resolve.Text) float64 {
	st := t.Style
	w := l.m.Width(t.Value, st.FontSize, st.FontWeight)
	if st.LetterSpacing != 0 {
		w += st.LetterSpacing * st.FontSize * float64(utf8.RuneCountInString(t.Value))
	}
	return w
}

func (l *layouter) measure(n resolve.Node) *sized {
	switch v := n.(type) {
	case *resolve.Text:
		tw := l.textWidth(v)
		return &sized{node: n, w: tw, h: v.Style.FontSize * v.Style.LineHeight, textW: tw}
	case *resolve.Frame:
		s := &sized{node: n, marginTop: v.MarginTop}
		var main, cross float64
		for i, c := range v.Children {
			k := l.measure(c)
			s.kids = append(s.kids, k)
			km, kc := k.along(v.Horizontal)
			main += km
			if i > 0 {
				main += v.Gap
			}
			cross = max(cross, kc)
		}
		p := v.Padding
		if v.Horizontal {
			s.w, s.h = main+p.Left+p.Right, cross+p.Top+p.Bottom
		} else {
			s.w, s.h = cross+p.Left+p.Right, main+p.Top+p.Bottom
		}
		s.w = max(s.w, v.MinWidth)
		return s
	}
	return &sized{node: n}
}

// place lays s out in the border box (x, y, w, h).
func (l *layouter) place(s *sized, x, y, w, h float64) {
	switch v := s.node.(type) {
	case *resolve.Text:
		l.emit(v, boxAt(x, y, w, h), s.textW)
	case *resolve.Frame:
		l.placeFrame(v, s, x, y, w, h)
	}
}

func (l *layouter) placeFrame(f *resolve.Frame, s *sized, x, y, w, h float64) {
	p := f.Padding
	ix, iy := x+p.Left, y+p.Top
	iw, ih := w-p.Left-p.Right, h-p.Top-p.Bottom
	mainSize, crossSize := ih, iw
	if f.Horizontal {
		mainSize, crossSize = iw, ih
	}

	used := 0.0
	totalGrow := 0.0
	for i, k := range s.kids {
		km, _ := k.along(f.Horizontal)
		used += km
		if i > 0 {
			used += f.Gap
		}
		totalGrow += k.grow()
	}
	free := mainSize - used

	extra := make([]float64, len(s.kids))
	if free > 0 && totalGrow > 0 {
		for i, k := range s.kids {
			extra[i] = free * k.grow() / totalGrow
		}
		free = 0
	}

	gap := f.Gap
	pos := 0.0
	switch f.Justify {
	case resolve.AlignEnd:
		pos = free
	case resolve.AlignCenter:
		pos = free / 2
	case resolve.AlignSpaceBetween:
		if len(s.kids) > 1 && free > 0 {
			gap += free / float64(len(s.kids)-1)
		}
	}

	for i, k := range s.kids {
		km, kc := k.along(f.Horizontal)
		align := k.alignSelf()
		if align == resolve.AlignAuto {
			align = f.AlignItems
		}
		if align == resolve.AlignStretch {
			kc = crossSize
		}
		var off float64
		switch align {
		case resolve.AlignEnd:
			off = crossSize - kc
		case resolve.AlignCenter:
			off = (crossSize - kc) / 2
		}

		size := km + extra[i]
		if f.Horizontal {
			l.place(k, ix+pos, iy+off+k.marginTop, size, kc-k.marginTop)
		} else {
			l.place(k, ix+off, iy+pos+k.marginTop, kc, size-k.marginTop)
		}
		pos += size + gap
	}
}

func (l *layouter) emit(t *resolve.Text, b Box, textW float64) {
	st := t.Style
	met := l.m.Metrics(st.FontSize, st.FontWeight)
	lineH := st.FontSize * st.LineHeight
	baseline := b.Top + (lineH-(met.Ascent+met.Descent))/2 + met.Ascent

	textX := b.Left
	switch st.TextAlign {
	case resolve.TextRight:
		textX = b.Right - textW
	case resolve.TextCenter:
		textX = b.CenterX() - textW/2
	}

	l.items = append(l.items, Item{
		ID:        t.ID,
		Field:     t.Field,
		Value:     t.Value,
		Box:       b,
		TextX:     textX,
		Baseline:  baseline,
		TextWidth: textW,
		Style:     st,
		Color:     st.ColorFor(resolve.PanelFallback),
	})
}
