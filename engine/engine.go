// Package engine is the tensor-execution capability the model adapters run
// on: load a graph, run it on named float tensors, release what it produced.
package engine

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrUnloadedModel is returned when a graph is run on a session that was never
// loaded or has been closed.
var ErrUnloadedModel = errors.New("model is not loaded")

// TensorInfo is the declared name and shape of one graph input or output.
// Dynamic dimensions are negative.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// SpatialSize returns the width and height expected by an NCHW image input.
func (i TensorInfo) SpatialSize() (image.Point, error) {
	if len(i.Shape) != 4 {
		return image.Point{}, errors.Errorf("input %q has shape %v, want NCHW", i.Name, i.Shape)
	}
	h, w := i.Shape[2], i.Shape[3]
	if h <= 0 || w <= 0 {
		return image.Point{}, errors.Errorf("input %q has dynamic spatial dimensions %v", i.Name, i.Shape)
	}
	return image.Pt(int(w), int(h)), nil
}

// Tensor is a float32 tensor owned by whoever created it. Close must be called
// exactly once.
type Tensor interface {
	Shape() []int64
	Data() []float32
	Close() error
}

// Session is one loaded graph. Run is not safe for concurrent use; wrap the
// session in a Guard to share it.
type Session interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	NewTensor(shape []int64, data []float32) (Tensor, error)
	Run(inputs map[string]Tensor) (*Result, error)
	Close() error
}

// Result holds the output tensors of one Run, in graph output order.
type Result struct {
	names  []string
	values []Tensor
	closed bool
}

func NewResult(names []string, values []Tensor) *Result {
	return &Result{names: names, values: values}
}

func (r *Result) Len() int {
	return len(r.values)
}

// At returns the i-th output.
func (r *Result) At(i int) (Tensor, error) {
	if r.closed {
		return nil, errors.New("result already closed")
	}
	if i < 0 || i >= len(r.values) {
		return nil, errors.Errorf("output %d out of range, result has %d", i, len(r.values))
	}
	return r.values[i], nil
}

// Get returns the output with the given name.
func (r *Result) Get(name string) (Tensor, error) {
	for i, n := range r.names {
		if n == name {
			return r.At(i)
		}
	}
	return nil, errors.Errorf("no output named %q", name)
}

// Close releases every output tensor. Later calls are no-ops.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	for _, v := range r.values {
		if v != nil {
			err = multierr.Combine(err, v.Close())
		}
	}
	return err
}

// CloseTensors releases a set of named tensors, combining the errors.
func CloseTensors(tensors map[string]Tensor) error {
	var err error
	for _, t := range tensors {
		if t != nil {
			err = multierr.Combine(err, t.Close())
		}
	}
	return err
}
