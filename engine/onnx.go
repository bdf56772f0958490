package engine

import (
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options configures an ONNX Runtime session.
type Options struct {
	IntraOpThreads int
	InterOpThreads int
}

type onnxTensor struct {
	t *ort.Tensor[float32]
}

func (t *onnxTensor) Shape() []int64  { return []int64(t.t.GetShape()) }
func (t *onnxTensor) Data() []float32 { return t.t.GetData() }
func (t *onnxTensor) Close() error    { return t.t.Destroy() }

// ONNXSession runs one .onnx graph through ONNX Runtime.
type ONNXSession struct {
	path    string
	session *ort.DynamicAdvancedSession
	inputs  []TensorInfo
	outputs []TensorInfo
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// OpenONNX loads the graph at path. The environment must already be
// initialized with InitializeEnvironment.
func OpenONNX(path string, opts Options, logger *zap.SugaredLogger) (*ONNXSession, error) {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading graph info from %s", path)
	}
	inputs, err := tensorInfos(inputInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "graph %s", path)
	}
	outputs, err := tensorInfos(outputInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "graph %s", path)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	threads := DefaultThreads()
	if opts.IntraOpThreads > 0 {
		threads = opts.IntraOpThreads
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, errors.Wrap(err, "setting intra-op threads")
	}
	interOp := threads
	if opts.InterOpThreads > 0 {
		interOp = opts.InterOpThreads
	}
	if err := options.SetInterOpNumThreads(interOp); err != nil {
		return nil, errors.Wrap(err, "setting inter-op threads")
	}

	session, err := ort.NewDynamicAdvancedSession(path, names(inputs), names(outputs), options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating session for %s", path)
	}

	logger.Infow("loaded model", "path", path, "inputs", inputs, "outputs", outputs, "threads", threads)
	return &ONNXSession{
		path:    path,
		session: session,
		inputs:  inputs,
		outputs: outputs,
		logger:  logger,
	}, nil
}

func tensorInfos(infos []ort.InputOutputInfo) ([]TensorInfo, error) {
	out := make([]TensorInfo, 0, len(infos))
	for _, info := range infos {
		if info.OrtValueType != ort.ONNXTypeTensor {
			return nil, errors.Errorf("%q is not a tensor", info.Name)
		}
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, errors.Errorf("%q has element type %v, only float32 is supported", info.Name, info.DataType)
		}
		out = append(out, TensorInfo{Name: info.Name, Shape: append([]int64(nil), info.Dimensions...)})
	}
	return out, nil
}

func names(infos []TensorInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

func (s *ONNXSession) Inputs() []TensorInfo  { return s.inputs }
func (s *ONNXSession) Outputs() []TensorInfo { return s.outputs }

func (s *ONNXSession) NewTensor(shape []int64, data []float32) (Tensor, error) {
	t, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, errors.Wrapf(err, "creating tensor of shape %v", shape)
	}
	return &onnxTensor{t: t}, nil
}

// Run executes the graph. Output tensors are allocated from the declared
// output shapes with a dynamic batch dimension taken as 1.
func (s *ONNXSession) Run(inputs map[string]Tensor) (*Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrUnloadedModel
	}

	in := make([]ort.ArbitraryTensor, len(s.inputs))
	for i, info := range s.inputs {
		t, ok := inputs[info.Name].(*onnxTensor)
		if !ok {
			return nil, errors.Errorf("missing ONNX tensor for input %q", info.Name)
		}
		in[i] = t.t
	}

	outputs := make([]Tensor, len(s.outputs))
	out := make([]ort.ArbitraryTensor, len(s.outputs))
	for i, info := range s.outputs {
		shape := make([]int64, len(info.Shape))
		for j, d := range info.Shape {
			if d < 0 {
				if j != 0 {
					closeAll(outputs)
					return nil, errors.Errorf("output %q has dynamic dimension %d", info.Name, j)
				}
				d = 1
			}
			shape[j] = d
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
		if err != nil {
			closeAll(outputs)
			return nil, errors.Wrapf(err, "allocating output %q", info.Name)
		}
		outputs[i] = &onnxTensor{t: t}
		out[i] = t
	}

	if err := s.session.Run(in, out); err != nil {
		s.logger.Errorw("onnxruntime run failed", "path", s.path, "error", err)
		return nil, multierr.Combine(errors.Wrap(err, "running graph"), closeAll(outputs))
	}
	return NewResult(names(s.outputs), outputs), nil
}

func closeAll(tensors []Tensor) error {
	var err error
	for _, t := range tensors {
		if t != nil {
			err = multierr.Combine(err, t.Close())
		}
	}
	return err
}

// Close destroys the session. It is safe to call more than once.
func (s *ONNXSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.session.Destroy()
}
