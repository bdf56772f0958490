package captcha

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/Tutortoise/captcha-solver-service/models"
)

func TestCrop(t *testing.T) {
	img := imaging.New(40, 30, color.NRGBA{B: 255, A: 255})

	crop, err := Crop(img, models.BBox{5.5, 4, 20.2, 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, crop.Bounds(), test.ShouldResemble, image.Rect(5, 4, 19, 10))

	// corner and size truncate independently
	test.That(t, CropRect(img.Bounds(), models.BBox{2.9, 3.9, 7.8, 9.7}), test.ShouldResemble, image.Rect(2, 3, 6, 8))

	// views share pixels with the source
	img.Set(6, 5, color.NRGBA{R: 255, A: 255})
	r, _, _, _ := crop.At(6, 5).RGBA()
	test.That(t, r, test.ShouldEqual, 0xffff)
}

func TestCropClampsToImage(t *testing.T) {
	img := imaging.New(40, 30, color.White)

	crop, err := Crop(img, models.BBox{-5, -5, 100, 12})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, crop.Bounds(), test.ShouldResemble, image.Rect(0, 0, 40, 12))

	_, err = Crop(img, models.BBox{50, 50, 60, 60})
	test.That(t, errors.Is(err, ErrStructuralMismatch), test.ShouldBeTrue)
}

func TestCropOffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 50, 50))
	crop, err := Crop(img, models.BBox{0, 0, 5, 5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, crop.Bounds(), test.ShouldResemble, image.Rect(10, 10, 15, 15))
}

type plainImage struct {
	image.Image
}

func TestCropCopiesWithoutSubImage(t *testing.T) {
	img := plainImage{imaging.New(20, 20, color.White)}
	crop, err := Crop(img, models.BBox{2, 2, 8, 6})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, crop.Bounds().Dx(), test.ShouldEqual, 6)
	test.That(t, crop.Bounds().Dy(), test.ShouldEqual, 4)
}
