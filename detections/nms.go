package detections

import (
	"sort"

	"github.com/Tutortoise/captcha-solver-service/geometry"
	"github.com/Tutortoise/captcha-solver-service/models"
)

// NMS suppresses overlapping boxes within each class independently. Classes
// are emitted in ascending index order and each class from the most to the
// least confident box.
func NMS(grouped map[int][]models.Detection, iouThreshold float32) []models.Detection {
	classes := make([]int, 0, len(grouped))
	for c := range grouped {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	var kept []models.Detection
	for _, c := range classes {
		kept = append(kept, nmsClass(grouped[c], iouThreshold)...)
	}
	return kept
}

// nmsClass keeps the most confident remaining box and drops everything that
// overlaps it by at least iouThreshold, until no candidates remain.
func nmsClass(candidates []models.Detection, iouThreshold float32) []models.Detection {
	remaining := make([]models.Detection, len(candidates))
	copy(remaining, candidates)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Confidence < remaining[j].Confidence
	})

	var kept []models.Detection
	for len(remaining) > 0 {
		best := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		kept = append(kept, best)

		survivors := remaining[:0]
		for _, det := range remaining {
			if geometry.IoU(best.BBox, det.BBox) < iouThreshold {
				survivors = append(survivors, det)
			}
		}
		remaining = survivors
	}
	return kept
}
