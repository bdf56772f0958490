package detections

import (
	"image"
	"runtime"
	"sync"

	"github.com/Tutortoise/captcha-solver-service/geometry"
	"github.com/Tutortoise/captcha-solver-service/models"
)

// decodeParams carries what decode needs to turn anchors into boxes in
// original-image coordinates.
type decodeParams struct {
	original   image.Point
	target     image.Point
	labels     []string
	confidence float32
}

// decode reads anchor-major rows of [cx, cy, w, h, score0, score1, ...] and
// groups the boxes that pass the confidence threshold by class. Degenerate
// boxes are dropped. Anchors are split into chunks scored by parallel
// workers; the per-class order follows anchor order.
func decode(rows []float32, numAnchors, stride int, p decodeParams) map[int][]models.Detection {
	numChunks := (numAnchors + decodeChunkSize - 1) / decodeChunkSize
	chunks := make([][]models.Detection, numChunks)

	numWorkers := runtime.NumCPU()
	if numWorkers > numChunks {
		numWorkers = numChunks
	}
	jobs := make(chan int, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range jobs {
				start := chunk * decodeChunkSize
				end := min(start+decodeChunkSize, numAnchors)
				var local []models.Detection
				for i := start; i < end; i++ {
					if det, ok := decodeAnchor(rows[i*stride:(i+1)*stride], p); ok {
						local = append(local, det)
					}
				}
				chunks[chunk] = local
			}
		}()
	}

	for i := 0; i < numChunks; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	grouped := make(map[int][]models.Detection)
	for _, chunk := range chunks {
		for _, det := range chunk {
			grouped[det.LabelIndex] = append(grouped[det.LabelIndex], det)
		}
	}
	return grouped
}

func decodeAnchor(row []float32, p decodeParams) (models.Detection, bool) {
	labelIndex := 0
	confidence := row[4]
	for c := 1; c < len(row)-4; c++ {
		if row[4+c] > confidence {
			labelIndex, confidence = c, row[4+c]
		}
	}
	if confidence < p.confidence {
		return models.Detection{}, false
	}

	box := models.BBox{row[0], row[1], row[2], row[3]}
	box = geometry.XYWH2XYXY(geometry.RescaleByPadding(box, p.original, p.target))
	if box.Degenerate() {
		return models.Detection{}, false
	}
	return models.Detection{
		Label:      labelFor(p.labels, labelIndex),
		LabelIndex: labelIndex,
		BBox:       box,
		Confidence: confidence,
	}, true
}

func labelFor(labels []string, i int) string {
	if i >= 0 && i < len(labels) {
		return labels[i]
	}
	return UnknownLabel
}
