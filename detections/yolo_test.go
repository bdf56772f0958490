package detections

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/models"
)

// A 64x32 image on a 32x32 canvas is scaled by 0.5 with 8 pixels of padding
// above and below.
var detectorRows = [][]float32{
	{8, 16, 8, 8, 0.9, 0.1},
	{9, 16, 8, 8, 0.4, 0.1},
	{8, 16, 8, 8, 0.1, 0.8},
	{24, 16, 8, 8, 0.2, 0.1},
	{24, 16, 0, 8, 0.1, 0.9},
}

func TestDetectorDetect(t *testing.T) {
	s := yoloSession(detectorRows)
	d := newTestDetector(t, s)

	dets, err := d.Detect(context.Background(), solidImage(64, 32), []string{"glyph", "target"}, 0.3, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldResemble, []models.Detection{
		{Label: "glyph", LabelIndex: 0, BBox: models.BBox{8, 8, 24, 24}, Confidence: 0.9},
		{Label: "target", LabelIndex: 1, BBox: models.BBox{8, 8, 24, 24}, Confidence: 0.8},
	})
	assertReleased(t, s)

	in := s.Tensors()[0]
	test.That(t, in.Shape(), test.ShouldResemble, []int64{1, 3, 32, 32})
	// top-left is padding
	test.That(t, in.Data()[0], test.ShouldAlmostEqual, 128.0/255.0, 1e-6)
	// plane 0 is blue, plane 2 red
	test.That(t, in.Data()[16*32+16], test.ShouldAlmostEqual, 30.0/255.0, 1e-6)
	test.That(t, in.Data()[2*32*32+16*32+16], test.ShouldAlmostEqual, 200.0/255.0, 1e-6)
}

func TestDetectorUnknownLabel(t *testing.T) {
	d := newTestDetector(t, yoloSession(detectorRows))

	dets, err := d.DetectDefault(context.Background(), solidImage(64, 32), []string{"glyph"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(dets), test.ShouldEqual, 2)
	test.That(t, dets[1].Label, test.ShouldEqual, UnknownLabel)
	test.That(t, dets[1].LabelIndex, test.ShouldEqual, 1)
}

func TestDetectorStageOrder(t *testing.T) {
	s := yoloSession(detectorRows)
	d := newTestDetector(t, s)
	ctx := context.Background()
	req := NewDetectRequest(solidImage(64, 32), []string{"glyph", "target"}, 0.3, 0.5)
	test.That(t, req.Status(), test.ShouldEqual, StatusPreprocess)

	err := d.RunInference(ctx, req)
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
	err = d.Postprocess(ctx, req)
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
	_, err = req.Inputs()
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
	test.That(t, req.Status(), test.ShouldEqual, StatusPreprocess)

	test.That(t, d.Preprocess(ctx, req), test.ShouldBeNil)
	test.That(t, req.Status(), test.ShouldEqual, StatusInference)
	_, err = req.Result()
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
	err = d.Preprocess(ctx, req)
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)

	test.That(t, d.RunInference(ctx, req), test.ShouldBeNil)
	test.That(t, req.Status(), test.ShouldEqual, StatusPostprocess)
	test.That(t, d.Postprocess(ctx, req), test.ShouldBeNil)
	test.That(t, req.Status(), test.ShouldEqual, StatusCompleted)
	test.That(t, len(req.Detections), test.ShouldEqual, 2)

	test.That(t, req.Release(), test.ShouldBeNil)
	test.That(t, req.Release(), test.ShouldBeNil)
	assertReleased(t, s)
}

func TestDetectorInferenceFailureReleases(t *testing.T) {
	s := yoloSession(detectorRows)
	s.RunFunc = func(map[string]engine.Tensor) ([]engine.Tensor, error) {
		return nil, errors.New("shape mismatch")
	}
	d := newTestDetector(t, s)

	req := NewDetectRequest(solidImage(64, 32), nil, 0.3, 0.5)
	err := Run[*DetectRequest](context.Background(), d, req)
	test.That(t, errors.Is(err, ErrDetection), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "shape mismatch")
	var stageErr *StageError
	test.That(t, errors.As(err, &stageErr), test.ShouldBeTrue)
	test.That(t, stageErr.Stage, test.ShouldEqual, StatusInference)
	test.That(t, req.Status(), test.ShouldEqual, StatusError)
	assertReleased(t, s)
}

func TestDetectorPostprocessFailureReleases(t *testing.T) {
	s := yoloSession(detectorRows)
	s.RunFunc = func(map[string]engine.Tensor) ([]engine.Tensor, error) {
		return []engine.Tensor{s.Tensor([]int64{1, 4, 2}, make([]float32, 8))}, nil
	}
	d := newTestDetector(t, s)

	_, err := d.Detect(context.Background(), solidImage(64, 32), nil, 0.3, 0.5)
	test.That(t, errors.Is(err, ErrDetection), test.ShouldBeTrue)
	test.That(t, len(s.Tensors()), test.ShouldEqual, 2)
	assertReleased(t, s)
}

func TestDetectorEmptyImage(t *testing.T) {
	s := yoloSession(detectorRows)
	d := newTestDetector(t, s)

	_, err := d.Detect(context.Background(), solidImage(0, 0), nil, 0.3, 0.5)
	test.That(t, errors.Is(err, ErrEmptyImage), test.ShouldBeTrue)
	test.That(t, s.Runs(), test.ShouldEqual, 0)
}

func TestDetectorUnloaded(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	d, err := NewDetector(engine.NewGuard("yolo", nil, logger), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.Loaded(), test.ShouldBeFalse)
	_, ok := d.InputSize(0)
	test.That(t, ok, test.ShouldBeFalse)

	_, err = d.Detect(context.Background(), solidImage(8, 8), nil, 0.3, 0.5)
	test.That(t, errors.Is(err, ErrUnloadedModel), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrDetection), test.ShouldBeTrue)

	s := yoloSession(detectorRows)
	d = newTestDetector(t, s)
	test.That(t, d.Close(), test.ShouldBeNil)
	test.That(t, d.Close(), test.ShouldBeNil)
	_, err = d.Detect(context.Background(), solidImage(8, 8), nil, 0.3, 0.5)
	test.That(t, errors.Is(err, ErrUnloadedModel), test.ShouldBeTrue)
	test.That(t, s.Closed(), test.ShouldEqual, 1)
}

func TestNewDetectorRejectsDynamicInput(t *testing.T) {
	s := yoloSession(detectorRows)
	s.InputInfo[0].Shape = []int64{1, 3, -1, -1}
	logger := zaptest.NewLogger(t).Sugar()
	_, err := NewDetector(engine.NewGuard("yolo", s, logger), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStatusString(t *testing.T) {
	test.That(t, StatusPreprocess.String(), test.ShouldEqual, "PREPROCESS")
	test.That(t, StatusError.String(), test.ShouldEqual, "ERROR")
	test.That(t, Status(42).String(), test.ShouldEqual, "Status(42)")
}
