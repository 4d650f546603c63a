// Package source loads templates from design data.
//
// A template is a background image plus a layout document. Two sources are
// provided:
//
//   - [Bundle] reads a local directory written by [WriteBundle]: an
//     index.json, and a <id>.png background and <id>.json layout per
//     template.
//   - [Figma] fetches rendered frames and node trees from the Figma REST
//     API and extracts the layout on the fly.
//
// Templates are read-only once loaded and can be shared between
// goroutines.
package source

import (
	"context"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/template"
)

// Source provides templates by id.
type Source interface {
	// Load returns the template with the given catalog id.
	Load(ctx context.Context, id string) (*template.Template, error)
	// List returns the templates the source can load, in catalog order.
	List(ctx context.Context) ([]template.Entry, error)
	// Name identifies the source in logs ("bundle", "figma").
	Name() string
}

// Fetched is one template's raw design data.
type Fetched struct {
	Entry  template.Entry
	Layout *template.Layout
	Image  []byte
}

// Template assembles the fetched data into a template.
func (f Fetched) Template() *template.Template {
	return f.Layout.Template(f.Entry.Meta(), template.Image{Data: f.Image, MediaType: "image/png"})
}

func notFound(id, src string) error {
	return errors.New(errors.ErrCodeTemplateNotFound, "template %q not found in %s", id, src)
}
