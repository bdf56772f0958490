package detections

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"

	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/engine/enginetest"
)

// channelMajor lays anchor rows out the way the detector emits them,
// [4+classes][anchors].
func channelMajor(rows [][]float32) []float32 {
	stride := len(rows[0])
	out := make([]float32, stride*len(rows))
	for i, row := range rows {
		for c, v := range row {
			out[c*len(rows)+i] = v
		}
	}
	return out
}

func yoloSession(rows [][]float32) *enginetest.Session {
	stride := int64(len(rows[0]))
	anchors := int64(len(rows))
	s := &enginetest.Session{
		InputInfo:  []engine.TensorInfo{{Name: "images", Shape: []int64{1, 3, 32, 32}}},
		OutputInfo: []engine.TensorInfo{{Name: "output0", Shape: []int64{1, stride, anchors}}},
	}
	s.RunFunc = func(map[string]engine.Tensor) ([]engine.Tensor, error) {
		return []engine.Tensor{s.Tensor([]int64{1, stride, anchors}, channelMajor(rows))}, nil
	}
	return s
}

func siameseSession(logit float32) *enginetest.Session {
	s := &enginetest.Session{
		InputInfo: []engine.TensorInfo{
			{Name: "input1", Shape: []int64{1, 3, 8, 8}},
			{Name: "input2", Shape: []int64{1, 3, 16, 12}},
		},
		OutputInfo: []engine.TensorInfo{{Name: "output", Shape: []int64{1, 1}}},
	}
	s.RunFunc = func(map[string]engine.Tensor) ([]engine.Tensor, error) {
		return []engine.Tensor{s.Tensor([]int64{1, 1}, []float32{logit})}, nil
	}
	return s
}

func newTestDetector(t *testing.T, s *enginetest.Session) *Detector {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	d, err := NewDetector(engine.NewGuard("yolo", s, logger), logger)
	test.That(t, err, test.ShouldBeNil)
	return d
}

func newTestSiamese(t *testing.T, s *enginetest.Session) *Siamese {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	m, err := NewSiamese(engine.NewGuard("siamese", s, logger), logger)
	test.That(t, err, test.ShouldBeNil)
	return m
}

func solidImage(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
}

func assertReleased(t *testing.T, s *enginetest.Session) {
	t.Helper()
	test.That(t, len(s.Tensors()), test.ShouldBeGreaterThan, 0)
	test.That(t, s.Unreleased(), test.ShouldBeEmpty)
}
