package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/matzehuels/backdrop/pkg/cache"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/template"
	"github.com/matzehuels/backdrop/pkg/template/templatetest"
)

const nodeTree = `{
  "id": "1:2", "name": "Basic", "type": "FRAME",
  "absoluteBoundingBox": {"x": 100, "y": 50, "width": 400, "height": 225},
  "children": [{
    "id": "1:3", "name": "info", "type": "FRAME", "layoutMode": "VERTICAL",
    "itemSpacing": 8,
    "absoluteBoundingBox": {"x": 300, "y": 80, "width": 180, "height": 60},
    "children": [
      {"id": "1:4", "name": "#last_name_jp", "type": "TEXT",
       "absoluteBoundingBox": {"x": 300, "y": 80, "width": 180, "height": 30},
       "style": {"fontFamily": "Inter", "fontWeight": 700, "fontSize": 24}},
      {"id": "1:5", "name": "#role", "type": "TEXT",
       "absoluteBoundingBox": {"x": 300, "y": 118, "width": 180, "height": 20},
       "style": {"fontSize": 12}},
      {"id": "1:6", "name": "decoration", "type": "RECTANGLE",
       "absoluteBoundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}}
    ]
  }]
}`

func catalog() *template.Catalog {
	return &template.Catalog{
		FileKey:   "KEY",
		Templates: []template.Entry{{ID: "basic", Name: "basic", DisplayName: "Basic", NodeID: "1-2"}},
	}
}

type figmaServer struct {
	*httptest.Server
	png      []byte
	requests atomic.Int32
}

func newFigmaServer(t *testing.T) *figmaServer {
	t.Helper()
	fs := &figmaServer{png: templatetest.Background(8, 4, templatetest.BackgroundColor)}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/images/KEY", func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		if r.Header.Get("X-Figma-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if got := r.URL.Query().Get("scale"); got != "2" {
			t.Errorf("scale = %q, want 2", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"err":    nil,
			"images": map[string]string{r.URL.Query().Get("ids"): fs.URL + "/render/basic.png"},
		})
	})
	mux.HandleFunc("/v1/files/KEY/nodes", func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		if r.URL.Query().Get("ids") != "1:2" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"nodes": {"1:2": {"document": ` + nodeTree + `}}}`))
	})
	mux.HandleFunc("/render/basic.png", func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		_, _ = w.Write(fs.png)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func TestFigmaLoad(t *testing.T) {
	srv := newFigmaServer(t)
	f, err := NewFigma(FigmaOptions{Token: "secret", Catalog: catalog(), BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	tpl, err := f.Load(context.Background(), "basic")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tpl.Width != 400 || tpl.Height != 225 {
		t.Errorf("size = %gx%g, want 400x225", tpl.Width, tpl.Height)
	}
	if tpl.DisplayName != "Basic" {
		t.Errorf("DisplayName = %q", tpl.DisplayName)
	}
	if diff := cmp.Diff([]string{"last_name_jp", "role"}, tpl.FieldNames()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	last := tpl.Fields["last_name_jp"]
	if last.X != 200 || last.Y != 30 || last.FontSize != 24 {
		t.Errorf("last_name_jp = %+v", last)
	}
	if f, ok := tpl.Frames["1:3"]; !ok || len(f.Children) != 2 {
		t.Errorf("info frame = %+v", tpl.Frames["1:3"])
	}
	if !bytes.Equal(tpl.Background.Data, srv.png) {
		t.Error("background bytes differ from the served image")
	}
}

func TestFigmaCachesResponses(t *testing.T) {
	srv := newFigmaServer(t)
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := NewFigma(FigmaOptions{Token: "secret", Catalog: catalog(), BaseURL: srv.URL, Cache: c, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := f.Load(context.Background(), "basic"); err != nil {
			t.Fatal(err)
		}
	}
	if got := srv.requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestFigmaErrors(t *testing.T) {
	srv := newFigmaServer(t)

	if _, err := NewFigma(FigmaOptions{}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("missing token err = %v", err)
	}

	f, _ := NewFigma(FigmaOptions{Token: "wrong", Catalog: catalog(), BaseURL: srv.URL})
	if _, err := f.Load(context.Background(), "basic"); !errors.Is(err, errors.ErrCodeForbidden) {
		t.Errorf("bad token err = %v, want FORBIDDEN", err)
	}

	f, _ = NewFigma(FigmaOptions{Token: "secret", Catalog: catalog(), BaseURL: srv.URL})
	if _, err := f.Load(context.Background(), "oudan"); !errors.Is(err, errors.ErrCodeTemplateNotFound) {
		t.Errorf("unknown template err = %v, want TEMPLATE_NOT_FOUND", err)
	}
}

func TestFigmaRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	f, _ := NewFigma(FigmaOptions{Token: "secret", Catalog: catalog(), BaseURL: srv.URL})
	_, err := f.Load(context.Background(), "basic")
	if !errors.Is(err, errors.ErrCodeRateLimited) {
		t.Fatalf("err = %v, want RATE_LIMITED", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("requests = %d, want 1 for a Retry-After beyond the retry window", n)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	srv := newFigmaServer(t)
	f, err := NewFigma(FigmaOptions{Token: "secret", Catalog: catalog(), BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	set, err := f.Fetch(context.Background(), []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := WriteBundle(dir, set); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	for _, name := range []string{IndexFile, "basic.png", "basic.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	b := NewBundle(dir, catalog())
	entries, err := b.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "basic" {
		t.Errorf("List = %+v", entries)
	}

	got, err := b.Load(context.Background(), "basic")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := set[0].Template()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("bundle template mismatch (-fetched +loaded):\n%s", diff)
	}

	again, _ := b.Load(context.Background(), "basic")
	if again != got {
		t.Error("second Load did not reuse the loaded template")
	}
}

func TestBundleErrors(t *testing.T) {
	dir := t.TempDir()
	b := NewBundle(dir, nil)
	if _, err := b.Load(context.Background(), "basic"); !errors.Is(err, errors.ErrCodeDataLoad) {
		t.Errorf("missing index err = %v, want DATA_LOAD_ERROR", err)
	}

	index := `{
  "basic": {"nodeId": "41-6091", "imageFile": "basic.png", "dataFile": "basic.json"},
  "escape": {"nodeId": "1-1", "imageFile": "../etc/passwd", "dataFile": "../x.json"},
  "extra": {"nodeId": "9-9", "imageFile": "extra.png", "dataFile": "extra.json"}
}`
	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "basic.json"), []byte(`{"width": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	b = NewBundle(dir, nil)

	tests := []struct {
		id   string
		code errors.Code
	}{
		{"basic", errors.ErrCodeDataLoad},
		{"escape", errors.ErrCodeInvalidPath},
		{"missing", errors.ErrCodeTemplateNotFound},
		{"../basic", errors.ErrCodeInvalidTemplate},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if _, err := b.Load(context.Background(), tt.id); !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}

	entries, err := b.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if diff := cmp.Diff([]string{"basic", "escape", "extra"}, ids); diff != "" {
		t.Errorf("List ids mismatch (-want +got):\n%s", diff)
	}
}
