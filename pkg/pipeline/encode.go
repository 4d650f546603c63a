package pipeline

import (
	"encoding/json"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/template"
)

// templateEntry is the cached form of a loaded template.
type templateEntry struct {
	Meta      template.Meta   `json:"meta"`
	Layout    json.RawMessage `json:"layout"`
	Image     []byte          `json:"image,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	URL       string          `json:"url,omitempty"`
}

func encodeTemplate(t *template.Template) ([]byte, error) {
	l := &template.Layout{TextLayers: t.Fields, Frames: t.Frames, Width: t.Width, Height: t.Height}
	layout, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return json.Marshal(templateEntry{
		Meta: template.Meta{
			ID:          t.ID,
			Name:        t.Name,
			DisplayName: t.DisplayName,
			Description: t.Description,
			NodeID:      t.NodeID,
		},
		Layout:    layout,
		Image:     t.Background.Data,
		MediaType: t.Background.MediaType,
		URL:       t.Background.URL,
	})
}

func decodeTemplate(data []byte) (*template.Template, error) {
	var e templateEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode cached template")
	}
	l, err := template.Parse(e.Layout)
	if err != nil {
		return nil, err
	}
	return l.Template(e.Meta, template.Image{Data: e.Image, MediaType: e.MediaType, URL: e.URL}), nil
}

// templateHash identifies a template's content, so re-fetched designs do
// not reuse images rendered from the old version.
func templateHash(t *template.Template) string {
	data, err := encodeTemplate(t)
	if err != nil {
		return ""
	}
	return cache.Hash(data)
}

// formHash covers every field that reaches the image. The template
// selection is left out.
func formHash(d form.Data) string {
	d.SelectedTemplates = nil
	return cache.HashJSON(d)
}
