package template

import (
	"encoding/json"
	"sort"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// Layout is the pre-processed layout document stored next to each
// background in a bundle ({textLayers, frames, width, height}).
type Layout struct {
	TextLayers map[string]*TextField `json:"textLayers"`
	Frames     map[string]*Frame     `json:"frames"`
	Width      float64               `json:"width"`
	Height     float64               `json:"height"`
}

// Parse decodes a layout document. Text layers missing an id are dropped;
// frame child lists are pruned of references to unknown nodes and of
// self-references.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode layout")
	}
	if l.Width <= 0 || l.Height <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "layout size must be positive, got %gx%g", l.Width, l.Height)
	}
	l.normalize()
	return &l, nil
}

// Marshal encodes the layout as indented JSON.
func (l *Layout) Marshal() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

func (l *Layout) normalize() {
	if l.TextLayers == nil {
		l.TextLayers = make(map[string]*TextField)
	}
	if l.Frames == nil {
		l.Frames = make(map[string]*Frame)
	}

	textIDs := make(map[string]bool, len(l.TextLayers))
	for field, t := range l.TextLayers {
		if t == nil || t.ID == "" {
			delete(l.TextLayers, field)
			continue
		}
		t.Field = field
		textIDs[t.ID] = true
	}

	for id, f := range l.Frames {
		if f == nil {
			delete(l.Frames, id)
			continue
		}
		if f.ID == "" {
			f.ID = id
		}
	}
	for _, f := range l.Frames {
		f.Children = filterIDs(f.Children, func(id string) bool { return textIDs[id] })
		f.ChildFrames = filterIDs(f.ChildFrames, func(id string) bool {
			_, ok := l.Frames[id]
			return ok && id != f.ID
		})
	}
}

func filterIDs(ids []string, keep func(string) bool) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}

// Meta is the catalog-side description of a template.
type Meta struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	NodeID      string
}

// Template builds an immutable template from the layout.
func (l *Layout) Template(meta Meta, bg Image) *Template {
	t := &Template{
		ID:          meta.ID,
		Name:        meta.Name,
		DisplayName: meta.DisplayName,
		Description: meta.Description,
		NodeID:      meta.NodeID,
		Background:  bg,
		Fields:      make(map[string]*TextField, len(l.TextLayers)),
		Frames:      make(map[string]*Frame, len(l.Frames)),
		Width:       l.Width,
		Height:      l.Height,
	}
	if t.Name == "" {
		t.Name = meta.ID
	}
	if t.DisplayName == "" {
		t.DisplayName = t.Name
	}

	// First match wins when two text nodes share a field name; with a map
	// source the tie is broken by node id for determinism.
	fields := make([]string, 0, len(l.TextLayers))
	for field := range l.TextLayers {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	seenIDs := make(map[string]bool)
	for _, field := range fields {
		tf := *l.TextLayers[field]
		tf.Field = field
		if seenIDs[tf.ID] {
			continue
		}
		seenIDs[tf.ID] = true
		t.Fields[field] = &tf
	}
	for id, f := range l.Frames {
		cp := *f
		cp.Children = append([]string(nil), f.Children...)
		cp.ChildFrames = append([]string(nil), f.ChildFrames...)
		t.Frames[id] = &cp
	}
	return t
}
