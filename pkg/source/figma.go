package source

import (
	"context"
	stderrors "errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/httputil"
	"github.com/matzehuels/backdrop/pkg/template"
)

// DefaultFigmaURL is the Figma REST API root.
const DefaultFigmaURL = "https://api.figma.com"

// ImageScale is the render scale requested for backgrounds.
const ImageScale = 2

// TokenEnv names the environment variable holding the access token.
const TokenEnv = "FIGMA_ACCESS_TOKEN"

// Figma loads templates straight from the design file.
type Figma struct {
	client  *httputil.Client
	baseURL string
	catalog *template.Catalog
	extract template.ExtractOptions
	logger  *log.Logger
}

// FigmaOptions configures [NewFigma].
type FigmaOptions struct {
	Token   string
	Catalog *template.Catalog // default template.DefaultCatalog()
	Cache   cache.Cache       // responses are cached for TTL; nil disables
	TTL     time.Duration
	Keyer   cache.Keyer // default cache.DefaultKeyer
	BaseURL string      // default DefaultFigmaURL
	Logger  *log.Logger
}

// NewFigma creates a Figma source. An empty token is rejected.
func NewFigma(opts FigmaOptions) (*Figma, error) {
	if opts.Token == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "figma access token is required (set %s)", TokenEnv)
	}
	if opts.Catalog == nil {
		opts.Catalog = template.DefaultCatalog()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultFigmaURL
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	headers := map[string]string{"X-Figma-Token": opts.Token}
	return &Figma{
		client:  httputil.NewClient(opts.Cache, "figma", opts.TTL, headers).WithKeyer(opts.Keyer),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		catalog: opts.Catalog,
		extract: template.ExtractOptions{Logger: opts.Logger},
		logger:  opts.Logger,
	}, nil
}

func (f *Figma) Name() string { return "figma" }

// List returns the catalog.
func (f *Figma) List(ctx context.Context) ([]template.Entry, error) {
	return f.catalog.Templates, nil
}

// Load fetches a single template.
func (f *Figma) Load(ctx context.Context, id string) (*template.Template, error) {
	set, err := f.Fetch(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return set[0].Template(), nil
}

type imagesResponse struct {
	Err    *string           `json:"err"`
	Images map[string]string `json:"images"`
}

type nodesResponse struct {
	Err   *string `json:"err"`
	Nodes map[string]*struct {
		Document *template.Node `json:"document"`
	} `json:"nodes"`
}

// Fetch downloads backgrounds and node trees for the given catalog ids
// with one images request and one nodes request. Every id must resolve.
func (f *Figma) Fetch(ctx context.Context, ids []string) ([]Fetched, error) {
	entries := make([]template.Entry, 0, len(ids))
	nodeIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		e, ok := f.catalog.Lookup(id)
		if !ok {
			return nil, notFound(id, "catalog")
		}
		entries = append(entries, e)
		nodeIDs = append(nodeIDs, e.FigmaNodeID())
	}
	key := f.catalog.FileKey
	joined := strings.Join(nodeIDs, ",")

	var images imagesResponse
	q := url.Values{"ids": {joined}, "format": {"png"}, "scale": {strconv.Itoa(ImageScale)}}
	if err := f.get(ctx, "/v1/images/"+url.PathEscape(key)+"?"+q.Encode(), &images); err != nil {
		return nil, err
	}
	if images.Err != nil && *images.Err != "" {
		return nil, errors.New(errors.ErrCodeDataLoad, "figma images: %s", *images.Err)
	}

	var nodes nodesResponse
	q = url.Values{"ids": {joined}}
	if err := f.get(ctx, "/v1/files/"+url.PathEscape(key)+"/nodes?"+q.Encode(), &nodes); err != nil {
		return nil, err
	}
	if nodes.Err != nil && *nodes.Err != "" {
		return nil, errors.New(errors.ErrCodeDataLoad, "figma nodes: %s", *nodes.Err)
	}

	out := make([]Fetched, 0, len(entries))
	for i, e := range entries {
		nid := nodeIDs[i]
		imgURL := images.Images[nid]
		if imgURL == "" {
			return nil, errors.New(errors.ErrCodeDataLoad, "no image for template %s (node %s)", e.ID, nid)
		}
		n := nodes.Nodes[nid]
		if n == nil || n.Document == nil {
			return nil, errors.New(errors.ErrCodeDataLoad, "no node data for template %s (node %s)", e.ID, nid)
		}

		layout, err := template.Extract(n.Document, f.extract)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataLoad, err, "template %s", e.ID)
		}
		img, err := f.client.GetBytes(ctx, imgURL)
		if err != nil {
			return nil, wrapFetch(err, "download background for %s", e.ID)
		}
		f.logger.Debug("fetched template", "template", e.ID, "texts", len(layout.TextLayers), "frames", len(layout.Frames), "bytes", len(img))
		out = append(out, Fetched{Entry: e, Layout: layout, Image: img})
	}
	return out, nil
}

func (f *Figma) get(ctx context.Context, path string, v any) error {
	if err := f.client.GetJSON(ctx, f.baseURL+path, v); err != nil {
		return wrapFetch(err, "figma request %s", strings.SplitN(path, "?", 2)[0])
	}
	return nil
}

func wrapFetch(err error, format string, args ...any) error {
	code := errors.ErrCodeDataLoad
	switch {
	case errors.Is(err, errors.ErrCodeDataLoad):
		return err
	case stderrors.Is(err, httputil.ErrForbidden):
		code = errors.ErrCodeForbidden
	case stderrors.Is(err, httputil.ErrNotFound):
		code = errors.ErrCodeNotFound
	case stderrors.As(err, new(*errors.RateLimitedError)):
		code = errors.ErrCodeRateLimited
	case stderrors.Is(err, httputil.ErrNetwork):
		code = errors.ErrCodeNetwork
	}
	return errors.Wrap(code, err, format, args...)
}
