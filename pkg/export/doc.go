// Package export rasterizes batches of scenes and packages the results.
//
// # Pipeline
//
// [Pipeline.Run] pushes every [Job] onto a shared queue drained by a fixed
// number of workers. The worker count is the smaller of the configured
// concurrency and the job count, so no more than that many full-size
// bitmaps are held at once. A failing job never stops the others; after
// every settled job the progress callback receives (completed, total).
//
// Results are keyed by template id, never by completion order, so the
// archive is identical however the workers interleave.
//
// # Failure policy
//
// The pipeline fails closed: if any job fails, Run returns a
// [*PartialFailureError] naming how many failed and no output is packaged.
//
// # Packaging
//
// [Package] turns a successful [Result] into a [Download]: one image for a
// single job, otherwise a ZIP with one entry per template in id order,
// compressed with DEFLATE level 6.
package export
