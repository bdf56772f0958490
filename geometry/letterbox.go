package geometry

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Tutortoise/captcha-solver-service/models"
)

// PadColor fills the area of a letterboxed canvas not covered by the source.
var PadColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// LetterboxGeometry describes how a source of one size is placed on a canvas
// of another: one uniform scale, the truncated scaled size, and the top/left
// padding.
type LetterboxGeometry struct {
	Scale        float64
	ScaledWidth  int
	ScaledHeight int
	XOffset      int
	YOffset      int
}

// NewLetterboxGeometry computes the placement of a srcW x srcH image on a
// dstW x dstH canvas.
func NewLetterboxGeometry(srcW, srcH, dstW, dstH int) LetterboxGeometry {
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	nw := int(float64(srcW) * scale)
	nh := int(float64(srcH) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return LetterboxGeometry{
		Scale:        scale,
		ScaledWidth:  nw,
		ScaledHeight: nh,
		XOffset:      (dstW - nw) / 2,
		YOffset:      (dstH - nh) / 2,
	}
}

// Letterbox resizes img preserving its aspect ratio and centres it on a
// width x height canvas filled with PadColor.
func Letterbox(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	g := NewLetterboxGeometry(b.Dx(), b.Dy(), width, height)

	resized := imaging.Resize(img, g.ScaledWidth, g.ScaledHeight, imaging.CatmullRom)
	canvas := imaging.New(width, height, PadColor)
	return imaging.Paste(canvas, resized, image.Pt(g.XOffset, g.YOffset))
}

// ForwardMap maps a center-form box from original-image space into
// letterboxed model space.
func ForwardMap(bbox models.BBox, original, target image.Point) models.BBox {
	g := NewLetterboxGeometry(original.X, original.Y, target.X, target.Y)
	return models.BBox{
		float32(float64(bbox[0])*g.Scale + float64(g.XOffset)),
		float32(float64(bbox[1])*g.Scale + float64(g.YOffset)),
		float32(float64(bbox[2]) * g.Scale),
		float32(float64(bbox[3]) * g.Scale),
	}
}

// RescaleByPadding maps a center-form box from letterboxed model space back
// into original-image space. Width and height are only divided by the scale.
func RescaleByPadding(bbox models.BBox, original, target image.Point) models.BBox {
	g := NewLetterboxGeometry(original.X, original.Y, target.X, target.Y)
	return models.BBox{
		float32((float64(bbox[0]) - float64(g.XOffset)) / g.Scale),
		float32((float64(bbox[1]) - float64(g.YOffset)) / g.Scale),
		float32(float64(bbox[2]) / g.Scale),
		float32(float64(bbox[3]) / g.Scale),
	}
}

// XYWH2XYXY converts a center-form box to corner form.
func XYWH2XYXY(bbox models.BBox) models.BBox {
	cx, cy, w, h := bbox[0], bbox[1], bbox[2], bbox[3]
	return models.BBox{cx - w*0.5, cy - h*0.5, cx + w*0.5, cy + h*0.5}
}
