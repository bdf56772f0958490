package geometry

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/Tutortoise/captcha-solver-service/models"
)

func TestNewLetterboxGeometry(t *testing.T) {
	g := NewLetterboxGeometry(200, 100, 64, 64)
	test.That(t, g.Scale, test.ShouldAlmostEqual, 0.32)
	test.That(t, g.ScaledWidth, test.ShouldEqual, 64)
	test.That(t, g.ScaledHeight, test.ShouldEqual, 32)
	test.That(t, g.XOffset, test.ShouldEqual, 0)
	test.That(t, g.YOffset, test.ShouldEqual, 16)

	// odd residual padding truncates
	g = NewLetterboxGeometry(100, 100, 641, 100)
	test.That(t, g.ScaledWidth, test.ShouldEqual, 100)
	test.That(t, g.XOffset, test.ShouldEqual, 270)
	test.That(t, g.YOffset, test.ShouldEqual, 0)
}

func TestLetterbox(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	src := imaging.New(200, 100, red)

	out := Letterbox(src, 64, 64)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 64)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 64)

	test.That(t, out.NRGBAAt(32, 4), test.ShouldResemble, PadColor)
	test.That(t, out.NRGBAAt(32, 60), test.ShouldResemble, PadColor)
	test.That(t, out.NRGBAAt(32, 32), test.ShouldResemble, red)
}

func TestLetterboxInverseLaw(t *testing.T) {
	cases := []struct {
		name     string
		original image.Point
		target   image.Point
		box      models.BBox
	}{
		{"wide into square", image.Pt(344, 384), image.Pt(640, 640), models.BBox{100, 120, 40, 50}},
		{"tall into square", image.Pt(120, 300), image.Pt(640, 640), models.BBox{60, 150, 30, 30}},
		{"upscale", image.Pt(50, 40), image.Pt(105, 105), models.BBox{25, 20, 10, 8}},
		{"downscale odd", image.Pt(1001, 777), image.Pt(640, 481), models.BBox{500.5, 300.25, 120, 90}},
		{"identity", image.Pt(640, 640), image.Pt(640, 640), models.BBox{320, 320, 64, 64}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := ForwardMap(tc.box, tc.original, tc.target)
			back := RescaleByPadding(model, tc.original, tc.target)
			for i := range back {
				test.That(t, back[i], test.ShouldAlmostEqual, tc.box[i], 1e-3)
			}
		})
	}
}

func TestRescaleByPaddingOffsets(t *testing.T) {
	// 200x100 on 64x64: scale 0.32, 16px top padding
	got := RescaleByPadding(models.BBox{32, 32, 16, 8}, image.Pt(200, 100), image.Pt(64, 64))
	test.That(t, got[0], test.ShouldAlmostEqual, 100, 1e-4)
	test.That(t, got[1], test.ShouldAlmostEqual, 50, 1e-4)
	test.That(t, got[2], test.ShouldAlmostEqual, 50, 1e-4)
	test.That(t, got[3], test.ShouldAlmostEqual, 25, 1e-4)
}

func TestXYWH2XYXY(t *testing.T) {
	got := XYWH2XYXY(models.BBox{10, 20, 4, 6})
	test.That(t, got, test.ShouldResemble, models.BBox{8, 17, 12, 23})
}
