package template

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/backdrop/pkg/errors"
)

// DefaultFileKey is the design file holding every known template.
const DefaultFileKey = "Tz8aQ9p4SrqCtVT4UEeNa1"

// Entry describes one template in the catalog.
type Entry struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"displayName"`
	Description string `yaml:"description" json:"description"`
	NodeID      string `yaml:"node_id" json:"nodeId"`
}

// Meta converts the entry for [Layout.Template].
func (e Entry) Meta() Meta {
	return Meta{
		ID:          e.ID,
		Name:        e.Name,
		DisplayName: e.DisplayName,
		Description: e.Description,
		NodeID:      e.NodeID,
	}
}

// FigmaNodeID returns the node id in the API's colon form ("41:6091").
func (e Entry) FigmaNodeID() string {
	return strings.ReplaceAll(e.NodeID, "-", ":")
}

// Catalog lists the templates a user can pick from.
type Catalog struct {
	FileKey   string  `yaml:"file_key"`
	Templates []Entry `yaml:"templates"`
}

// DefaultCatalog returns the built-in template list.
func DefaultCatalog() *Catalog {
	return &Catalog{
		FileKey: DefaultFileKey,
		Templates: []Entry{
			{ID: "basic", Name: "basic", DisplayName: "Basic", Description: "シンプルな背景", NodeID: "41-6091"},
			{ID: "oudan", Name: "oudan", DisplayName: "横断", Description: "横断プロジェクト用", NodeID: "58-6635"},
			{ID: "run", Name: "run", DisplayName: "run", Description: "run事業部用", NodeID: "95-818"},
			{ID: "ferretall", Name: "ferretall", DisplayName: "ferret", Description: "ferret全般", NodeID: "439-5172"},
			{ID: "ferretone", Name: "ferretone", DisplayName: "ferretOne", Description: "ferretOne用", NodeID: "95-878"},
			{ID: "ferretSOL", Name: "ferretSOL", DisplayName: "ferretSOL", Description: "ferretSOL用", NodeID: "95-933"},
			{ID: "ferretMedia", Name: "ferretMedia", DisplayName: "ferretMedia", Description: "ferretMedia用", NodeID: "95-997"},
		},
	}
}

// LoadCatalog reads a YAML catalog file:
//
//	file_key: Tz8aQ9p4SrqCtVT4UEeNa1
//	templates:
//	  - id: basic
//	    display_name: Basic
//	    node_id: "41-6091"
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read catalog %s", path)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse catalog %s", path)
	}
	if c.FileKey == "" {
		c.FileKey = DefaultFileKey
	}
	for i := range c.Templates {
		e := &c.Templates[i]
		if e.Name == "" {
			e.Name = e.ID
		}
		if e.DisplayName == "" {
			e.DisplayName = e.Name
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids and node ids and rejects duplicates.
func (c *Catalog) Validate() error {
	if len(c.Templates) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "catalog has no templates")
	}
	seen := make(map[string]bool, len(c.Templates))
	for _, e := range c.Templates {
		if err := errors.ValidateTemplateID(e.ID); err != nil {
			return err
		}
		if err := errors.ValidateNodeID(e.NodeID); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "template %s", e.ID)
		}
		if seen[e.ID] {
			return errors.New(errors.ErrCodeInvalidConfig, "duplicate template id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	for _, e := range c.Templates {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// IDs returns template ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.Templates))
	for i, e := range c.Templates {
		ids[i] = e.ID
	}
	return ids
}
