package captcha

import (
	"image"
	"image/color"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Tutortoise/captcha-solver-service/models"
)

var (
	boxColor   = color.NRGBA{R: 255, A: 255}
	indexColor = color.NRGBA{R: 255, G: 255, A: 255}
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Annotate draws every box on a copy of img with its 1-based position in
// dets, which is the order the targets must be clicked in.
func Annotate(img image.Image, dets []models.Detection) image.Image {
	dc := gg.NewContextForImage(img)
	size := float64(dc.Height()) / 20
	if size < 10 {
		size = 10
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))

	for i, d := range dets {
		x1, y1 := float64(d.BBox[0]), float64(d.BBox[1])

		dc.SetColor(boxColor)
		dc.SetLineWidth(2)
		dc.DrawRectangle(x1, y1, float64(d.BBox.Width()), float64(d.BBox.Height()))
		dc.Stroke()

		dc.SetColor(indexColor)
		dc.DrawStringAnchored(strconv.Itoa(i+1), x1+2, y1+2, 0, 1)
	}
	return dc.Image()
}
