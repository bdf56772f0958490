package detections

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/geometry"
	"github.com/Tutortoise/captcha-solver-service/models"
)

// DetectRequest is one run of the detector over one image.
type DetectRequest struct {
	Request

	Image      image.Image
	Labels     []string
	Confidence float32
	IoU        float32

	// Detections is set by Postprocess.
	Detections []models.Detection
}

// NewDetectRequest returns a request ready for Preprocess.
func NewDetectRequest(img image.Image, labels []string, confidence, iou float32) *DetectRequest {
	return &DetectRequest{
		Request:    newRequest(),
		Image:      img,
		Labels:     labels,
		Confidence: confidence,
		IoU:        iou,
	}
}

// Detector binds a YOLO graph with one NCHW image input and one
// [1][4+classes][anchors] output to the pipeline.
type Detector struct {
	*Model
}

// NewDetector wraps guard as a detector.
func NewDetector(guard *engine.Guard, logger *zap.SugaredLogger) (*Detector, error) {
	m, err := NewModel(guard, logger)
	if err != nil {
		return nil, err
	}
	if m.Loaded() && len(m.inputs) != 1 {
		return nil, errors.Errorf("detector needs one input, graph has %d", len(m.inputs))
	}
	return &Detector{Model: m}, nil
}

// Detect runs the detector on img and returns the boxes that survive the
// confidence threshold and per-class NMS, in original-image coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image, labels []string, confidence, iou float32) ([]models.Detection, error) {
	req := NewDetectRequest(img, labels, confidence, iou)
	if err := Run[*DetectRequest](ctx, d, req); err != nil {
		return nil, err
	}
	return req.Detections, nil
}

// DetectDefault runs Detect with DefaultConfidence and DefaultIoU.
func (d *Detector) DetectDefault(ctx context.Context, img image.Image, labels []string) ([]models.Detection, error) {
	return d.Detect(ctx, img, labels, DefaultConfidence, DefaultIoU)
}

func (d *Detector) Preprocess(_ context.Context, req *DetectRequest) error {
	if err := req.Expect(StatusPreprocess); err != nil {
		return err
	}
	if !d.Loaded() {
		return ErrUnloadedModel
	}
	if err := d.imageTensor(&req.Request, 0, req.Image); err != nil {
		return err
	}
	return req.advance(StatusPreprocess, StatusInference)
}

func (d *Detector) RunInference(ctx context.Context, req *DetectRequest) error {
	return d.runInference(ctx, &req.Request)
}

func (d *Detector) Postprocess(_ context.Context, req *DetectRequest) error {
	if err := req.Expect(StatusPostprocess); err != nil {
		return err
	}
	result, err := req.Result()
	if err != nil {
		return err
	}
	out, err := result.At(0)
	if err != nil {
		return err
	}

	shape := out.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] <= 4 {
		return errors.Errorf("detector output has shape %v, want [1][4+classes][anchors]", shape)
	}
	stride, numAnchors := int(shape[1]), int(shape[2])
	if numAnchors == 0 {
		req.Detections = nil
		return req.advance(StatusPostprocess, StatusCompleted)
	}
	rows, err := geometry.Transpose2D(out.Data(), stride, numAnchors)
	if err != nil {
		return err
	}

	b := req.Image.Bounds()
	grouped := decode(rows, numAnchors, stride, decodeParams{
		original:   image.Pt(b.Dx(), b.Dy()),
		target:     d.sizes[0],
		labels:     req.Labels,
		confidence: req.Confidence,
	})
	req.Detections = NMS(grouped, req.IoU)
	return req.advance(StatusPostprocess, StatusCompleted)
}
