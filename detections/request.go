package detections

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Tutortoise/captcha-solver-service/engine"
)

// Request is the state every adapter request embeds: the current status, the
// input tensors built by Preprocess and the raw result of RunInference. It
// belongs to a single call and is never shared.
type Request struct {
	status   Status
	inputs   map[string]engine.Tensor
	result   *engine.Result
	released bool
}

func newRequest() Request {
	return Request{status: StatusPreprocess, inputs: map[string]engine.Tensor{}}
}

// Base returns the embedded request.
func (r *Request) Base() *Request { return r }

func (r *Request) Status() Status { return r.status }

// Expect fails with ErrInvalidState unless the request is at want.
func (r *Request) Expect(want Status) error {
	if r.status != want {
		return errors.Wrapf(ErrInvalidState, "stage requires %s, request is %s", want, r.status)
	}
	return nil
}

func (r *Request) advance(from, to Status) error {
	if err := r.Expect(from); err != nil {
		return err
	}
	r.status = to
	return nil
}

func (r *Request) fail() {
	r.status = StatusError
}

// addInput hands a tensor to the request, which releases it from then on.
func (r *Request) addInput(name string, t engine.Tensor) error {
	if r.released {
		return multierr.Append(errors.Wrap(ErrInvalidState, "request already released"), t.Close())
	}
	if old, ok := r.inputs[name]; ok {
		delete(r.inputs, name)
		if err := old.Close(); err != nil {
			return multierr.Append(err, t.Close())
		}
	}
	r.inputs[name] = t
	return nil
}

// Inputs returns the tensors built by Preprocess. They exist only once the
// request has reached StatusInference.
func (r *Request) Inputs() (map[string]engine.Tensor, error) {
	switch r.status {
	case StatusInference, StatusPostprocess, StatusCompleted:
	default:
		return nil, errors.Wrapf(ErrInvalidState, "inputs read while %s", r.status)
	}
	if r.released {
		return nil, errors.Wrap(ErrInvalidState, "inputs read after release")
	}
	return r.inputs, nil
}

// Result returns the raw inference output. It exists only once the request
// has reached StatusPostprocess.
func (r *Request) Result() (*engine.Result, error) {
	switch r.status {
	case StatusPostprocess, StatusCompleted:
	default:
		return nil, errors.Wrapf(ErrInvalidState, "result read while %s", r.status)
	}
	if r.released || r.result == nil {
		return nil, errors.Wrap(ErrInvalidState, "result is not available")
	}
	return r.result, nil
}

// Release closes every tensor and the result the request owns. Only the
// first call does anything.
func (r *Request) Release() error {
	if r.released {
		return nil
	}
	r.released = true
	err := engine.CloseTensors(r.inputs)
	if r.result != nil {
		err = multierr.Append(err, r.result.Close())
	}
	r.inputs = nil
	r.result = nil
	return err
}
