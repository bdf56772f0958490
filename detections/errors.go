package detections

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Tutortoise/captcha-solver-service/engine"
)

var (
	// ErrInvalidState is returned when a stage runs on a request that is not
	// at the stage's required status.
	ErrInvalidState = errors.New("invalid request state")
	// ErrDetection marks any pipeline that did not reach StatusCompleted.
	ErrDetection = errors.New("detection failed")
	// ErrUnloadedModel is returned by every stage of a model that is not loaded.
	ErrUnloadedModel = engine.ErrUnloadedModel
	// ErrEmptyImage is returned for an image with no pixels.
	ErrEmptyImage = errors.New("empty image")
)

// StageError reports the stage a pipeline failed in. It matches both
// ErrDetection and its cause under errors.Is.
type StageError struct {
	Stage Status
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrDetection, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrDetection, e.Err}
}
