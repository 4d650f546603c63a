// Package render lays resolved templates out and draws them as vectors.
//
// # Overview
//
// Rendering is the step between the resolver and the rasterizers:
//
//   - [Layout] runs a small flexbox engine over a [resolve.Result] and
//     produces a [Scene] of absolutely positioned text lines
//   - [Preview] scales a template into a container (contain fit)
//   - [Export] lays a template out at native size (cover fit)
//   - [Painter] draws scenes with tdewolff/canvas, either to SVG with
//     [WriteSVG] or to a canvas the raster package rasterizes
//
// # Preview vs Export
//
// Both entry points resolve the same template with the same form data and
// differ only in scale, background fit and mode-specific offsets:
//
//	s, err := render.Preview(tpl, data, 960, 540, render.Options{})
//	// s.Width == 960, s.Scale == min(960/W, 540/H)
//
//	s, err := render.Export(tpl, data, render.Options{})
//	// s.Width == W, s.Scale == 1
//
// A background that cannot be decoded does not fail a preview; the scene
// carries it as [Scene.BackgroundErr] and draws without it.
//
// # Units
//
// Scenes are in canvas pixels with the origin at the top-left. The canvas
// backend works in millimetres with the origin at the bottom-left; [Painter]
// maps one unit to one pixel and flips the y axis.
package render
