package form

import (
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize replaces every character outside [a-zA-Z0-9_-] with "_".
func Sanitize(s string) string {
	return unsafeFileChars.ReplaceAllString(s, "_")
}

// DisplayNames returns the names used in file names: romanized when
// present, otherwise the Japanese ones.
func (d Data) DisplayNames() (last, first string) {
	last, first = d.LastNameEN, d.FirstNameEN
	if last == "" {
		last = d.LastNameJP
	}
	if first == "" {
		first = d.FirstNameJP
	}
	return last, first
}

// FileName returns "<last>_<first>_<templateID>.<ext>" with both names
// sanitized. ext defaults to png.
func (d Data) FileName(templateID, ext string) string {
	if ext == "" {
		ext = "png"
	}
	last, first := d.DisplayNames()
	return Sanitize(last) + "_" + Sanitize(first) + "_" + templateID + "." + ext
}

// ArchiveName returns "<last>_<first>_backgrounds.zip". Names keep their
// script; only path separators and control characters are replaced.
func (d Data) ArchiveName() string {
	last, first := d.DisplayNames()
	clean := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, last+"_"+first)
	return clean + "_backgrounds.zip"
}
