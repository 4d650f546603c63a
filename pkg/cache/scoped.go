package cache

// ScopedKeyer wraps a Keyer with a prefix, so that several deployments can
// share one Redis instance without seeing each other's entries.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// TemplateKey generates a prefixed key for template caching.
func (k *ScopedKeyer) TemplateKey(source, templateID string) string {
	return k.prefix + k.inner.TemplateKey(source, templateID)
}

// ArtifactKey generates a prefixed key for artifact caching.
func (k *ScopedKeyer) ArtifactKey(templateID string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(templateID, opts)
}
