// Package cogview turns a view of a georeferenced raster into a displayable
// image.
//
// A view is an Extent: a ground centre and a ground distance per display
// pixel. Rendering one goes through these steps:
//
//   - SelectRule picks the band composition and stretch for a dataset from an
//     ordered rule list, once per dataset.
//   - SelectLevel picks the overview to read from.
//   - ComputeWindow maps the view onto a clipped source rectangle of that
//     level and a region of the destination buffer.
//   - A Stretcher maps raw samples onto 0-255.
//   - Compose interleaves the bands, or looks classes up in a colour table,
//     and paints a checkerboard where the view leaves the raster.
//
// Session ties these together for an interactive viewer.
package cogview
