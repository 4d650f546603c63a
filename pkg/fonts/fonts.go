// Package fonts provides font data and text measurement for layout and
// rasterization.
//
// The Go fonts from golang.org/x/image are built in so that rendering works
// without any system fonts. Templates designed with CJK typefaces should
// point the [fonts] config section at a TTF/OTF that covers those glyphs.
// Runes missing from the loaded font are drawn as its .notdef glyph and
// measured with the same advance.
package fonts

import (
	"fmt"
	"os"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// BoldThreshold is the lowest CSS font weight drawn with the bold face.
const BoldThreshold = 600

// FamilyName is the family name registered with vector backends.
const FamilyName = "backdrop"

// Set holds raw TTF/OTF data for the two weights the renderer uses.
type Set struct {
	Regular []byte
	Bold    []byte
}

// Default returns the built-in Go fonts.
func Default() Set {
	return Set{Regular: goregular.TTF, Bold: gobold.TTF}
}

// Load reads font files, keeping the built-in font for an empty path.
func Load(regularPath, boldPath string) (Set, error) {
	s := Default()
	if regularPath != "" {
		data, err := os.ReadFile(regularPath)
		if err != nil {
			return Set{}, fmt.Errorf("read regular font: %w", err)
		}
		s.Regular = data
	}
	if boldPath != "" {
		data, err := os.ReadFile(boldPath)
		if err != nil {
			return Set{}, fmt.Errorf("read bold font: %w", err)
		}
		s.Bold = data
	}
	return s, nil
}

// ForWeight returns the font data for a CSS font weight.
func (s Set) ForWeight(weight int) []byte {
	if weight >= BoldThreshold {
		return s.Bold
	}
	return s.Regular
}
