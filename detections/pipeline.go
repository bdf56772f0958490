package detections

import (
	"context"

	"go.uber.org/multierr"
)

// Pending is implemented by every adapter request through its embedded
// Request.
type Pending interface {
	Base() *Request
}

// Pipeline is the three-stage contract of a model adapter. Each stage checks
// the request's status first and moves it to the next one on success.
type Pipeline[R Pending] interface {
	Preprocess(ctx context.Context, req R) error
	RunInference(ctx context.Context, req R) error
	Postprocess(ctx context.Context, req R) error
}

// Run chains the stages of p on req and releases everything req owns before
// returning, whatever the outcome.
func Run[R Pending](ctx context.Context, p Pipeline[R], req R) (err error) {
	base := req.Base()
	defer func() {
		err = multierr.Append(err, base.Release())
	}()

	stages := []func(context.Context, R) error{p.Preprocess, p.RunInference, p.Postprocess}
	for _, stage := range stages {
		at := base.status
		if err := stage(ctx, req); err != nil {
			base.fail()
			return &StageError{Stage: at, Err: err}
		}
	}
	if base.status != StatusCompleted {
		stage := base.status
		base.fail()
		return &StageError{Stage: stage, Err: ErrInvalidState}
	}
	return nil
}
