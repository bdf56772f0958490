package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Guard serializes runs of one Session. Tensor creation and metadata reads
// do not take the lock; only Run does.
type Guard struct {
	name    string
	slot    chan Session
	done    chan struct{}
	inputs  []TensorInfo
	outputs []TensorInfo
	timeout time.Duration
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	closed     bool
	session    Session
	metrics    *GuardMetrics
	lastErrors []error
}

// GuardMetrics counts runs through a Guard.
type GuardMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalRuns       int64
	failedRuns      int64
	acquireFailures int64
	waitTime        time.Duration
}

// GuardStats is a point-in-time copy of GuardMetrics.
type GuardStats struct {
	Name            string        `json:"name"`
	InUse           int           `json:"inUse"`
	TotalRuns       int64         `json:"totalRuns"`
	FailedRuns      int64         `json:"failedRuns"`
	AcquireFailures int64         `json:"acquireFailures"`
	WaitTime        time.Duration `json:"waitTime"`
	LastErrors      []string      `json:"lastErrors,omitempty"`
}

// NewGuard takes ownership of session. A nil session yields a guard whose
// every Run fails with ErrUnloadedModel.
func NewGuard(name string, session Session, logger *zap.SugaredLogger) *Guard {
	g := &Guard{
		name:    name,
		slot:    make(chan Session, 1),
		done:    make(chan struct{}),
		logger:  logger,
		session: session,
		metrics: &GuardMetrics{},
	}
	if session == nil {
		g.closed = true
		close(g.done)
		return g
	}
	g.inputs = session.Inputs()
	g.outputs = session.Outputs()
	g.slot <- session
	return g
}

// SetAcquireTimeout bounds how long Run waits for the session. Zero, the
// default, waits until the caller's context is done.
func (g *Guard) SetAcquireTimeout(d time.Duration) {
	g.timeout = d
}

func (g *Guard) Name() string          { return g.name }
func (g *Guard) Inputs() []TensorInfo  { return g.inputs }
func (g *Guard) Outputs() []TensorInfo { return g.outputs }

// Loaded reports whether the guard still holds a live session.
func (g *Guard) Loaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}

// NewTensor creates a tensor through the underlying session.
func (g *Guard) NewTensor(shape []int64, data []float32) (Tensor, error) {
	g.mu.Lock()
	session, closed := g.session, g.closed
	g.mu.Unlock()
	if closed {
		return nil, ErrUnloadedModel
	}
	return session.NewTensor(shape, data)
}

// Run executes the graph with exclusive access to the session.
func (g *Guard) Run(ctx context.Context, inputs map[string]Tensor) (*Result, error) {
	session, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer g.release(session)

	result, err := session.Run(inputs)
	g.metrics.mu.Lock()
	g.metrics.totalRuns++
	if err != nil {
		g.metrics.failedRuns++
	}
	g.metrics.mu.Unlock()
	if err != nil {
		g.recordError(err)
		return nil, err
	}
	return result, nil
}

func (g *Guard) acquire(ctx context.Context) (Session, error) {
	if !g.Loaded() {
		return nil, ErrUnloadedModel
	}

	start := time.Now()
	defer func() {
		g.metrics.mu.Lock()
		g.metrics.waitTime += time.Since(start)
		g.metrics.mu.Unlock()
	}()

	var expired <-chan time.Time
	if g.timeout > 0 {
		timer := time.NewTimer(g.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case session := <-g.slot:
		g.metrics.mu.Lock()
		g.metrics.inUse++
		g.metrics.mu.Unlock()
		return session, nil
	case <-g.done:
		return nil, ErrUnloadedModel
	case <-expired:
		g.metrics.mu.Lock()
		g.metrics.acquireFailures++
		g.metrics.mu.Unlock()
		return nil, errors.Errorf("timeout waiting for %s session", g.name)
	case <-ctx.Done():
		g.metrics.mu.Lock()
		g.metrics.acquireFailures++
		g.metrics.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (g *Guard) release(session Session) {
	g.metrics.mu.Lock()
	g.metrics.inUse--
	g.metrics.mu.Unlock()
	g.slot <- session
}

// Close waits for any in-flight run and then closes the session. Later calls
// are no-ops.
func (g *Guard) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	close(g.done)
	g.mu.Unlock()

	session := <-g.slot
	g.logger.Infow("closing model session", "name", g.name)
	return session.Close()
}

func (g *Guard) recordError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastErrors = append(g.lastErrors, err)
	if len(g.lastErrors) > 10 {
		g.lastErrors = g.lastErrors[1:]
	}
}

// Stats returns a copy of the guard's counters.
func (g *Guard) Stats() GuardStats {
	g.metrics.mu.RLock()
	stats := GuardStats{
		Name:            g.name,
		InUse:           g.metrics.inUse,
		TotalRuns:       g.metrics.totalRuns,
		FailedRuns:      g.metrics.failedRuns,
		AcquireFailures: g.metrics.acquireFailures,
		WaitTime:        g.metrics.waitTime,
	}
	g.metrics.mu.RUnlock()

	g.mu.Lock()
	for _, err := range g.lastErrors {
		stats.LastErrors = append(stats.LastErrors, err.Error())
	}
	g.mu.Unlock()
	return stats
}
