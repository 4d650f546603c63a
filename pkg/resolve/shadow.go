package resolve

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// Text-shadow lists in CSS syntax:
//
//	0 0 8px rgba(255, 255, 255, 0.8), 0 0 16px #fff9
var (
	shadowLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{4}|[0-9A-Fa-f]{3})`},
		{Name: "Number", Pattern: `-?(?:\d+\.\d+|\d+|\.\d+)(?:px)?`},
		{Name: "Ident", Pattern: `[A-Za-z][A-Za-z-]*`},
		{Name: "Symbol", Pattern: `[(),]`},
	})

	shadowParser = participle.MustBuild[shadowList](
		participle.Lexer(shadowLexer),
		participle.Elide("Whitespace"),
	)
)

type shadowList struct {
	Layers []*shadowLayer `parser:"( 'none' | @@ ( ',' @@ )* )"`
}

type shadowLayer struct {
	Parts []*shadowPart `parser:"@@+"`
}

type shadowPart struct {
	Func   *colorFunc `parser:"  @@"`
	Hex    *string    `parser:"| @Color"`
	Length *string    `parser:"| @Number"`
	Name   *string    `parser:"| @Ident"`
}

type colorFunc struct {
	Name string   `parser:"@( 'rgba' | 'rgb' )"`
	Args []string `parser:"'(' @Number ( ',' @Number )* ')'"`
}

var namedColors = map[string]color.NRGBA{
	"white":       {R: 255, G: 255, B: 255, A: 255},
	"black":       {A: 255},
	"transparent": {},
}

// ParseShadow parses a CSS text-shadow value. "none" and "" yield no layers.
func ParseShadow(s string) ([]Shadow, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	ast, err := shadowParser.ParseString("", s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse shadow %q", s)
	}
	out := make([]Shadow, 0, len(ast.Layers))
	for _, l := range ast.Layers {
		sh, err := l.shadow()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse shadow %q", s)
		}
		out = append(out, sh)
	}
	return out, nil
}

func (l *shadowLayer) shadow() (Shadow, error) {
	var (
		lengths []float64
		c       = color.NRGBA{A: 255} // currentColor stand-in
	)
	for _, p := range l.Parts {
		var err error
		switch {
		case p.Length != nil:
			var v float64
			v, err = parseLength(*p.Length)
			lengths = append(lengths, v)
		case p.Func != nil:
			c, err = p.Func.color()
		case p.Hex != nil:
			c, err = parseHex(*p.Hex)
		case p.Name != nil:
			named, ok := namedColors[strings.ToLower(*p.Name)]
			if !ok {
				err = errors.New(errors.ErrCodeInvalidFormat, "unknown color %q", *p.Name)
			}
			c = named
		}
		if err != nil {
			return Shadow{}, err
		}
	}
	if len(lengths) < 2 || len(lengths) > 3 {
		return Shadow{}, errors.New(errors.ErrCodeInvalidFormat, "shadow needs 2 or 3 lengths, got %d", len(lengths))
	}
	sh := Shadow{OffsetX: lengths[0], OffsetY: lengths[1], Color: c}
	if len(lengths) == 3 {
		if lengths[2] < 0 {
			return Shadow{}, errors.New(errors.ErrCodeInvalidFormat, "negative blur radius")
		}
		sh.Blur = lengths[2]
	}
	return sh, nil
}

func parseLength(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
}

func (f *colorFunc) color() (color.NRGBA, error) {
	want := 3
	if f.Name == "rgba" {
		want = 4
	}
	if len(f.Args) != want {
		return color.NRGBA{}, errors.New(errors.ErrCodeInvalidFormat, "%s() takes %d arguments", f.Name, want)
	}
	var v [4]float64
	v[3] = 1
	for i, a := range f.Args {
		if strings.HasSuffix(a, "px") {
			return color.NRGBA{}, errors.New(errors.ErrCodeInvalidFormat, "unexpected unit in %s()", f.Name)
		}
		n, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return color.NRGBA{}, err
		}
		v[i] = n
	}
	clamp := func(x, hi float64) uint8 {
		if x < 0 {
			x = 0
		}
		if x > hi {
			x = hi
		}
		return uint8(x*255/hi + 0.5)
	}
	return color.NRGBA{R: clamp(v[0], 255), G: clamp(v[1], 255), B: clamp(v[2], 255), A: clamp(v[3], 1)}, nil
}

func parseHex(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 || len(h) == 4 {
		var b strings.Builder
		for _, r := range h {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		h = b.String()
	}
	if len(h) == 6 {
		h += "ff"
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, err
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// Outermost returns the layer with the largest blur, or false when empty.
func Outermost(shadows []Shadow) (Shadow, bool) {
	if len(shadows) == 0 {
		return Shadow{}, false
	}
	best := shadows[0]
	for _, s := range shadows[1:] {
		if s.Blur > best.Blur {
			best = s
		}
	}
	return best, true
}
