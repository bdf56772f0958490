// Package enginetest provides an in-memory engine.Session that records every
// tensor it hands out, so tests can check that each one is closed exactly once.
package enginetest

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Tutortoise/captcha-solver-service/engine"
)

// Tensor is a slice-backed engine.Tensor that counts Close calls.
type Tensor struct {
	shape []int64
	data  []float32

	mu     sync.Mutex
	closes int
}

func (t *Tensor) Shape() []int64  { return t.shape }
func (t *Tensor) Data() []float32 { return t.data }

func (t *Tensor) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

// Closes returns how many times Close was called.
func (t *Tensor) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Session is a scripted engine.Session.
type Session struct {
	InputInfo  []engine.TensorInfo
	OutputInfo []engine.TensorInfo

	// RunFunc produces the outputs of a run, in OutputInfo order. Build them
	// with Session.Tensor so they are tracked.
	RunFunc func(inputs map[string]engine.Tensor) ([]engine.Tensor, error)

	// NewTensorErr, when set, is consulted before the n-th tensor (0-based)
	// is created.
	NewTensorErr func(n int) error

	mu      sync.Mutex
	tensors []*Tensor
	runs    int
	closed  int
}

func (s *Session) Inputs() []engine.TensorInfo  { return s.InputInfo }
func (s *Session) Outputs() []engine.TensorInfo { return s.OutputInfo }

func (s *Session) NewTensor(shape []int64, data []float32) (engine.Tensor, error) {
	s.mu.Lock()
	n := len(s.tensors)
	s.mu.Unlock()
	if s.NewTensorErr != nil {
		if err := s.NewTensorErr(n); err != nil {
			return nil, err
		}
	}
	size := int64(1)
	for _, d := range shape {
		size *= d
	}
	if int64(len(data)) != size {
		return nil, errors.Errorf("shape %v needs %d values, got %d", shape, size, len(data))
	}
	return s.Tensor(shape, data), nil
}

// Tensor creates a tracked tensor without any checks.
func (s *Session) Tensor(shape []int64, data []float32) *Tensor {
	t := &Tensor{shape: append([]int64(nil), shape...), data: data}
	s.mu.Lock()
	s.tensors = append(s.tensors, t)
	s.mu.Unlock()
	return t
}

func (s *Session) Run(inputs map[string]engine.Tensor) (*engine.Result, error) {
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	for _, info := range s.InputInfo {
		if _, ok := inputs[info.Name]; !ok {
			return nil, errors.Errorf("missing input %q", info.Name)
		}
	}
	if s.RunFunc == nil {
		return nil, errors.New("no RunFunc set")
	}
	outputs, err := s.RunFunc(inputs)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(s.OutputInfo))
	for i, info := range s.OutputInfo {
		names[i] = info.Name
	}
	return engine.NewResult(names, outputs), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Tensors returns every tensor created so far.
func (s *Session) Tensors() []*Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Tensor(nil), s.tensors...)
}

// Runs returns how many times Run was called.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Unreleased returns the tensors whose Close count is not exactly one.
func (s *Session) Unreleased() []*Tensor {
	var out []*Tensor
	for _, t := range s.Tensors() {
		if t.Closes() != 1 {
			out = append(out, t)
		}
	}
	return out
}
