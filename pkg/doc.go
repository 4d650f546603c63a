// Package pkg provides the core libraries for backdrop meeting backgrounds.
//
// # Overview
//
// Backdrop fills designer templates with a person's name, team and role and
// exports them as bitmaps for video calls. The pkg directory is organized
// into four main areas:
//
//  1. Domain logic: [form], [template], [resolve], [render]
//  2. Output: [raster], [export]
//  3. Infrastructure: [cache], [httputil], [source], [config], [observability]
//  4. Orchestration: [pipeline]
//
// # Architecture
//
// The typical data flow through backdrop:
//
//	Figma file or local bundle
//	         ↓
//	    [source] package (node tree + background image)
//	         ↓
//	    [template] package (text layers and auto-layout frames)
//	         ↓
//	    [resolve] package (form values, visibility, frame settings)
//	         ↓
//	    [render] package (layout into a scene, SVG preview)
//	         ↓
//	    [raster] + [export] (PNG/JPEG, one file or a ZIP)
//
// # Quick Start
//
// Export every selected template for a filled-in form:
//
//	src := source.NewBundle("templates", template.DefaultCatalog())
//	set := fonts.Default()
//	painter, _ := render.NewPainter(set)
//	rz := raster.NewCapture(painter, &raster.Loader{})
//
//	r := pipeline.NewRunner(src, rz, cache.NewNullCache(), nil, nil)
//	defer r.Close()
//
//	res, _ := r.Execute(ctx, pipeline.Options{Data: data, Templates: data.SelectedTemplates})
//	os.WriteFile(res.Download.Name, res.Download.Data, 0o644)
//
// # Main Packages
//
// [form] - The person's names, departments, group and role, with validation
// and a file-backed store for the CLI.
//
// [template] - Template model and extraction of "#field" text layers and
// auto-layout frames from a Figma node tree. The catalog maps template ids to
// Figma nodes.
//
// [resolve] - Decides which fields are shown for a form and carries frame
// settings (gap, padding, alignment) into a tree of visible elements. Layout
// rules can be overridden from TOML.
//
// [render] - Flex-style layout of resolved trees into absolute boxes, for the
// preview container or the template's native size, and SVG drawing.
//
// [raster] - Two rasterizers: capture draws the SVG scene, composite draws
// the background and text directly. Both decode embedded, file and remote
// backgrounds through a Loader.
//
// [export] - Bounded-concurrency rasterization with fail-closed semantics,
// output naming from the form, and ZIP packaging.
//
// [pipeline] - Load → render → export with template and artifact caching,
// shared by the CLI and the HTTP server.
//
// # Infrastructure
//
// [cache] - File, Redis and null caches behind one interface, with a Keyer
// that derives template and artifact keys.
//
// [httputil] - Cached HTTP client with retries and typed errors, used by the
// Figma source and remote backgrounds.
//
// [config] - TOML configuration with environment overrides.
//
// [observability] - Hooks for pipeline and cache events.
//
// # Testing
//
// Run tests:
//
//	go test ./...                        # All tests
//	go test ./pkg/render/...             # Specific package
//
// The [templatetest] package builds small in-memory templates for tests.
//
// [form]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/form
// [template]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/template
// [templatetest]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/template/templatetest
// [resolve]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/resolve
// [render]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/render
// [raster]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/raster
// [export]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/export
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/cache
// [httputil]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/httputil
// [source]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/source
// [config]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/config
// [observability]: https://pkg.go.dev/github.com/matzehuels/backdrop/pkg/observability
package pkg
