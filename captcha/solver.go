package captcha

import (
	"context"
	"image"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/detections"
	"github.com/Tutortoise/captcha-solver-service/models"
)

var (
	// ErrStructuralMismatch is returned when the image does not have the
	// expected captcha layout.
	ErrStructuralMismatch = errors.New("captcha layout mismatch")
	// ErrEmptyImage is returned for an image with no pixels.
	ErrEmptyImage = detections.ErrEmptyImage
)

// Detector finds glyphs and targets in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image, labels []string, confidence, iou float32) ([]models.Detection, error)
}

// Scorer rates how alike two crops are. Higher is more alike.
type Scorer interface {
	Similarity(ctx context.Context, a, b image.Image) (float32, error)
}

// Solver pairs glyphs with targets.
type Solver struct {
	detector Detector
	scorer   Scorer
	labels   []string
	glyph    string
	target   string
	logger   *zap.SugaredLogger

	Confidence float32
	IoU        float32
}

// NewSolver needs labels to be exactly [glyph, target].
func NewSolver(detector Detector, scorer Scorer, labels []string, logger *zap.SugaredLogger) (*Solver, error) {
	glyph, target, err := matchingLabels(labels)
	if err != nil {
		return nil, err
	}
	return &Solver{
		detector:   detector,
		scorer:     scorer,
		labels:     labels,
		glyph:      glyph,
		target:     target,
		logger:     logger,
		Confidence: detections.DefaultConfidence,
		IoU:        detections.DefaultIoU,
	}, nil
}

type candidate struct {
	det  models.Detection
	crop image.Image
}

// Solve returns one target per glyph, in the glyphs' left-to-right order.
func (s *Solver) Solve(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	dets, err := s.detector.Detect(ctx, img, s.labels, s.Confidence, s.IoU)
	if err != nil {
		return nil, err
	}

	glyphs := lo.Filter(dets, func(d models.Detection, _ int) bool { return d.Label == s.glyph })
	targets := lo.Filter(dets, func(d models.Detection, _ int) bool { return d.Label == s.target })
	if len(glyphs) != len(targets) {
		return nil, errors.Wrapf(ErrStructuralMismatch, "found %d glyphs and %d targets", len(glyphs), len(targets))
	}
	sort.SliceStable(glyphs, func(i, j int) bool {
		return glyphs[i].BBox[0] < glyphs[j].BBox[0]
	})

	unclaimed := make([]candidate, len(targets))
	for i, t := range targets {
		crop, err := Crop(img, t.BBox)
		if err != nil {
			return nil, err
		}
		unclaimed[i] = candidate{det: t, crop: crop}
	}

	matched := make([]models.Detection, 0, len(glyphs))
	for _, g := range glyphs {
		glyphCrop, err := Crop(img, g.BBox)
		if err != nil {
			return nil, err
		}

		best := -1
		var bestScore float32
		for i, c := range unclaimed {
			score, err := s.scorer.Similarity(ctx, glyphCrop, c.crop)
			if err != nil {
				return nil, errors.Wrap(err, "scoring glyph against target")
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}

		s.logger.Debugw("matched glyph", "glyph", g.BBox, "target", unclaimed[best].det.BBox, "score", bestScore)
		matched = append(matched, unclaimed[best].det)
		unclaimed = append(unclaimed[:best], unclaimed[best+1:]...)
	}
	return matched, nil
}
