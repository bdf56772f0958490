package detections

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/engine"
	"github.com/Tutortoise/captcha-solver-service/geometry"
)

// Model is the part of an adapter shared by all requests: the guarded
// session and the metadata read from it when it was loaded.
type Model struct {
	guard  *engine.Guard
	inputs []engine.TensorInfo
	sizes  []image.Point
	logger *zap.SugaredLogger
}

// NewModel reads the expected input sizes from guard. A guard without a
// loaded session yields a model whose stages fail with ErrUnloadedModel.
func NewModel(guard *engine.Guard, logger *zap.SugaredLogger) (*Model, error) {
	m := &Model{guard: guard, logger: logger}
	if guard == nil || !guard.Loaded() {
		return m, nil
	}
	m.inputs = guard.Inputs()
	m.sizes = make([]image.Point, len(m.inputs))
	for i, info := range m.inputs {
		size, err := info.SpatialSize()
		if err != nil {
			return nil, errors.Wrapf(err, "model %s", guard.Name())
		}
		m.sizes[i] = size
	}
	return m, nil
}

// Loaded reports whether runs can succeed.
func (m *Model) Loaded() bool {
	return m.guard != nil && m.guard.Loaded()
}

// Inputs returns the graph inputs in declaration order.
func (m *Model) Inputs() []engine.TensorInfo { return m.inputs }

// InputSize returns the width and height expected by the i-th input. ok is
// false when the model is not loaded or has no such input.
func (m *Model) InputSize(i int) (image.Point, bool) {
	if i < 0 || i >= len(m.sizes) {
		return image.Point{}, false
	}
	return m.sizes[i], true
}

// Stats returns the guard counters.
func (m *Model) Stats() engine.GuardStats {
	if m.guard == nil {
		return engine.GuardStats{}
	}
	return m.guard.Stats()
}

// Close closes the session. Requests in flight must be drained first.
func (m *Model) Close() error {
	if m.guard == nil {
		return nil
	}
	return m.guard.Close()
}

// imageTensor letterboxes img to the i-th input's size and hands the CHW
// tensor to req.
func (m *Model) imageTensor(req *Request, i int, img image.Image) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptyImage
	}
	size, ok := m.InputSize(i)
	if !ok {
		return ErrUnloadedModel
	}
	boxed := geometry.Letterbox(img, size.X, size.Y)
	hwc, w, h := geometry.Normalize(boxed)
	chw, err := geometry.HWC2CHW(hwc, h, w, geometry.Channels)
	if err != nil {
		return err
	}
	t, err := m.guard.NewTensor([]int64{1, geometry.Channels, int64(h), int64(w)}, chw)
	if err != nil {
		return errors.Wrapf(err, "creating input %q", m.inputs[i].Name)
	}
	return req.addInput(m.inputs[i].Name, t)
}

// runInference is the RunInference stage shared by every adapter. Only the
// graph run itself holds the session lock.
func (m *Model) runInference(ctx context.Context, req *Request) error {
	if err := req.Expect(StatusInference); err != nil {
		return err
	}
	if !m.Loaded() {
		return ErrUnloadedModel
	}
	inputs, err := req.Inputs()
	if err != nil {
		return err
	}
	result, err := m.guard.Run(ctx, inputs)
	if err != nil {
		m.logger.Errorw("inference failed", "model", m.guard.Name(), "error", err)
		return errors.Wrap(err, "running inference")
	}
	req.result = result
	return req.advance(StatusInference, StatusPostprocess)
}
