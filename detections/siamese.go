package detections

import (
	"context"
	"image"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tutortoise/captcha-solver-service/engine"
)

// SimilarityRequest is one comparison of two crops.
type SimilarityRequest struct {
	Request

	First  image.Image
	Second image.Image

	// Score is set by Postprocess.
	Score float32
}

// NewSimilarityRequest returns a request ready for Preprocess.
func NewSimilarityRequest(first, second image.Image) *SimilarityRequest {
	return &SimilarityRequest{Request: newRequest(), First: first, Second: second}
}

// Siamese binds a two-input similarity graph with a single logit output to
// the pipeline.
type Siamese struct {
	*Model
}

// NewSiamese wraps guard as a similarity scorer.
func NewSiamese(guard *engine.Guard, logger *zap.SugaredLogger) (*Siamese, error) {
	m, err := NewModel(guard, logger)
	if err != nil {
		return nil, err
	}
	if m.Loaded() && len(m.inputs) != 2 {
		return nil, errors.Errorf("similarity model needs two inputs, graph has %d", len(m.inputs))
	}
	return &Siamese{Model: m}, nil
}

// Similarity scores how alike a and b are, in (0,1).
func (s *Siamese) Similarity(ctx context.Context, a, b image.Image) (float32, error) {
	req := NewSimilarityRequest(a, b)
	if err := Run[*SimilarityRequest](ctx, s, req); err != nil {
		return 0, err
	}
	return req.Score, nil
}

func (s *Siamese) Preprocess(_ context.Context, req *SimilarityRequest) error {
	if err := req.Expect(StatusPreprocess); err != nil {
		return err
	}
	if !s.Loaded() {
		return ErrUnloadedModel
	}
	if err := s.imageTensor(&req.Request, 0, req.First); err != nil {
		return err
	}
	if err := s.imageTensor(&req.Request, 1, req.Second); err != nil {
		return err
	}
	return req.advance(StatusPreprocess, StatusInference)
}

func (s *Siamese) RunInference(ctx context.Context, req *SimilarityRequest) error {
	return s.runInference(ctx, &req.Request)
}

func (s *Siamese) Postprocess(_ context.Context, req *SimilarityRequest) error {
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
	data := out.Data()
	if len(data) != 1 {
		return errors.Errorf("similarity output has %d values, want 1", len(data))
	}
	req.Score = sigmoid(data[0])
	return req.advance(StatusPostprocess, StatusCompleted)
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
