package captcha

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/Tutortoise/captcha-solver-service/models"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropRect is the pixel rectangle covered by box inside bounds. The corner
// and the size are each truncated to whole pixels, then clipped.
func CropRect(bounds image.Rectangle, box models.BBox) image.Rectangle {
	x, y := int(box[0]), int(box[1])
	w, h := int(box.Width()), int(box.Height())
	return image.Rect(x, y, x+w, y+h).Add(bounds.Min).Intersect(bounds)
}

// Crop returns the part of img under box. Images that support SubImage are
// not copied.
func Crop(img image.Image, box models.BBox) (image.Image, error) {
	r := CropRect(img.Bounds(), box)
	if r.Empty() {
		return nil, errors.Wrapf(ErrStructuralMismatch, "box %v lies outside the image %v", box, img.Bounds())
	}
	if sub, ok := img.(subImager); ok {
		return sub.SubImage(r), nil
	}
	return imaging.Crop(img, r), nil
}
