// Package geometry holds the coordinate-system and memory-layout transforms
// shared by the model adapters.
//
// Letterbox and RescaleByPadding are exact inverses of each other: both derive
// their scale and integer padding from LetterboxGeometry, so a box produced in
// model space maps back onto the source image without drift.
//
// Layout transforms never resample. HWC2CHW reorders an interleaved
// height x width x channel buffer into planar channel-major order, and
// Transpose2D swaps the two axes of a row-major matrix.
package geometry
