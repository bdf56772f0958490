package geometry

import "github.com/Tutortoise/captcha-solver-service/models"

// minIoU keeps IoU finite when both boxes have zero area.
const minIoU = 1e-8

// IoU returns intersection over union of two corner-form boxes, never less
// than 1e-8.
func IoU(a, b models.BBox) float32 {
	area1 := (a[2] - a[0]) * (a[3] - a[1])
	area2 := (b[2] - b[0]) * (b[3] - b[1])

	left := max(a[0], b[0])
	top := max(a[1], b[1])
	right := min(a[2], b[2])
	bottom := min(a[3], b[3])

	inter := max(right-left, 0) * max(bottom-top, 0)
	union := area1 + area2 - inter

	iou := inter / union
	// NaN (0/0) fails every comparison, so test for the good case.
	if iou >= minIoU {
		return iou
	}
	return minIoU
}
