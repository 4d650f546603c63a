package cache

// Keyer builds cache keys for the values the pipeline stores.
type Keyer interface {
	// HTTPKey keys a raw HTTP response body.
	HTTPKey(namespace, key string) string

	// TemplateKey keys a loaded template (layout plus background).
	TemplateKey(source, templateID string) string

	// ArtifactKey keys one rendered image.
	ArtifactKey(templateID string, opts ArtifactKeyOpts) string
}

// ArtifactKeyOpts holds everything that changes the bytes of a rendered image.
type ArtifactKeyOpts struct {
	FormHash     string  `json:"form_hash"`
	TemplateHash string  `json:"template_hash"`
	Mode         string  `json:"mode"`
	Rasterizer   string  `json:"rasterizer"`
	Format       string  `json:"format"`
	Scale        float64 `json:"scale,omitempty"`
	RulesHash    string  `json:"rules_hash,omitempty"`
}

// DefaultKeyer is the standard [Keyer].
type DefaultKeyer struct{}

// NewDefaultKeyer creates a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// TemplateKey returns "template:<source>:<id>".
func (DefaultKeyer) TemplateKey(source, templateID string) string {
	return "template:" + source + ":" + templateID
}

// ArtifactKey hashes opts so that any option change produces a new key.
func (DefaultKeyer) ArtifactKey(templateID string, opts ArtifactKeyOpts) string {
	return hashKey("artifact:"+templateID, opts)
}

var _ Keyer = DefaultKeyer{}
