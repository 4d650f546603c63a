package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/template"
)

// IndexFile is the name of a bundle's index.
const IndexFile = "index.json"

// IndexEntry locates one template inside a bundle.
type IndexEntry struct {
	NodeID    string  `json:"nodeId"`
	ImageFile string  `json:"imageFile"`
	DataFile  string  `json:"dataFile"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Bundle loads templates from a local directory. Loaded templates are
// kept in memory for the life of the Bundle.
type Bundle struct {
	dir     string
	catalog *template.Catalog

	indexOnce sync.Once
	index     map[string]IndexEntry
	indexErr  error

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewBundle opens dir lazily; nothing is read until the first call. A nil
// catalog uses [template.DefaultCatalog].
func NewBundle(dir string, catalog *template.Catalog) *Bundle {
	if catalog == nil {
		catalog = template.DefaultCatalog()
	}
	return &Bundle{dir: dir, catalog: catalog, cache: make(map[string]*template.Template)}
}

func (b *Bundle) Name() string { return "bundle" }

// Dir returns the bundle directory.
func (b *Bundle) Dir() string { return b.dir }

// Index reads and caches index.json.
func (b *Bundle) Index() (map[string]IndexEntry, error) {
	b.indexOnce.Do(func() {
		path := filepath.Join(b.dir, IndexFile)
		data, err := os.ReadFile(path)
		if err != nil {
			b.indexErr = errors.Wrap(errors.ErrCodeDataLoad, err, "read template index")
			return
		}
		var idx map[string]IndexEntry
		if err := json.Unmarshal(data, &idx); err != nil {
			b.indexErr = errors.Wrap(errors.ErrCodeDataLoad, err, "decode %s", path)
			return
		}
		b.index = idx
	})
	return b.index, b.indexErr
}

// List returns catalog entries present in the bundle, then any extra
// bundle entries sorted by id.
func (b *Bundle) List(ctx context.Context) ([]template.Entry, error) {
	idx, err := b.Index()
	if err != nil {
		return nil, err
	}
	var out []template.Entry
	listed := make(map[string]bool, len(idx))
	for _, e := range b.catalog.Templates {
		if _, ok := idx[e.ID]; ok {
			out = append(out, e)
			listed[e.ID] = true
		}
	}
	var extra []string
	for id := range idx {
		if !listed[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, template.Entry{ID: id, Name: id, DisplayName: id, NodeID: idx[id].NodeID})
	}
	return out, nil
}

// Load reads the layout and background of one template.
func (b *Bundle) Load(ctx context.Context, id string) (*template.Template, error) {
	if err := errors.ValidateTemplateID(id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	tpl, ok := b.cache[id]
	b.mu.Unlock()
	if ok {
		return tpl, nil
	}

	idx, err := b.Index()
	if err != nil {
		return nil, err
	}
	entry, ok := idx[id]
	if !ok {
		return nil, notFound(id, b.dir)
	}

	layoutData, err := b.read(entry.DataFile)
	if err != nil {
		return nil, err
	}
	layout, err := template.Parse(layoutData)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "template %s", id)
	}
	img, err := b.read(entry.ImageFile)
	if err != nil {
		return nil, err
	}

	meta, ok := b.catalog.Lookup(id)
	if !ok {
		meta = template.Entry{ID: id, NodeID: entry.NodeID}
	}
	tpl = Fetched{Entry: meta, Layout: layout, Image: img}.Template()

	b.mu.Lock()
	b.cache[id] = tpl
	b.mu.Unlock()
	return tpl, nil
}

func (b *Bundle) read(name string) ([]byte, error) {
	if err := errors.ValidatePath(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(b.dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "read %s", name)
	}
	return data, nil
}

// WriteBundle writes fetched templates and their index to dir, replacing
// files of the same name.
func WriteBundle(dir string, set []Fetched) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", dir)
	}
	idx := make(map[string]IndexEntry, len(set))
	for _, f := range set {
		id := f.Entry.ID
		if err := errors.ValidateTemplateID(id); err != nil {
			return err
		}
		data, err := f.Layout.Marshal()
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "encode layout %s", id)
		}
		e := IndexEntry{
			NodeID:    f.Entry.NodeID,
			ImageFile: id + ".png",
			DataFile:  id + ".json",
			Width:     f.Layout.Width,
			Height:    f.Layout.Height,
		}
		if err := writeFile(filepath.Join(dir, e.ImageFile), f.Image); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, e.DataFile), data); err != nil {
			return err
		}
		idx[id] = e
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode index")
	}
	return writeFile(filepath.Join(dir, IndexFile), data)
}

// writeFile writes through a temp file so readers never see a partial
// file.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	return nil
}
