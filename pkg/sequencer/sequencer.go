// Package sequencer renders and sends the requests of a collection in
// dependency order, binding values extracted from each response for the
// requests that follow.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackcoderx/restseq/pkg/auth"
	"github.com/blackcoderx/restseq/pkg/deps"
	"github.com/blackcoderx/restseq/pkg/extract"
	"github.com/blackcoderx/restseq/pkg/grammar"
	"github.com/blackcoderx/restseq/pkg/resolver"
	"github.com/blackcoderx/restseq/pkg/transport"
	"go.uber.org/zap"
)

// Strategy selects the order requests are visited in.
type Strategy string

const (
	// DependencyOrder visits producers before consumers.
	DependencyOrder Strategy = "dependency"
	// DeclarationOrder visits requests as they were added to the collection.
	DeclarationOrder Strategy = "declaration"
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", DependencyOrder:
		return DependencyOrder, nil
	case DeclarationOrder:
		return DeclarationOrder, nil
	default:
		return "", fmt.Errorf("unknown strategy '%s' (use: dependency, declaration)", s)
	}
}

// Status is the final state of one step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ErrCancelled marks requests never visited because the run was cancelled.
var ErrCancelled = errors.New("run cancelled before request was sent")

// ErrNoTransport is returned when a run starts without a transport.
var ErrNoTransport = errors.New("sequencer: no transport configured")

// DependencyFailedError explains why a request was skipped.
type DependencyFailedError struct {
	Producer string
	Tag      string
	Cause    error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("skipped: producer %s of tag %q did not succeed: %v", e.Producer, e.Tag, e.Cause)
}

func (e *DependencyFailedError) Unwrap() error { return e.Cause }

// Step is the outcome of visiting one request.
type Step struct {
	RequestID string
	Rendered  []byte
	Response  *transport.Response
	Status    Status
	Err       error
	Misses    []extract.Miss
	Duration  time.Duration
}

// Transport delivers rendered bytes and returns the response.
type Transport interface {
	Send(ctx context.Context, raw []byte) (*transport.Response, error)
}

// TransportFactory opens one transport per concurrent worker.
type TransportFactory func() (Transport, error)

// OverrideFunc supplies fuzzable overrides for one render pass of a request.
type OverrideFunc func(requestID string) map[string]string

// Sequencer drives runs over one collection.
type Sequencer struct {
	coll      *grammar.Collection
	graph     *deps.Graph
	transport Transport
	tokens    auth.TokenProvider
	basePath  string
	timeout   time.Duration
	overrides OverrideFunc
	logger    *zap.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithTransport sets the transport used by Run and RunAll.
func WithTransport(t Transport) Option { return func(s *Sequencer) { s.transport = t } }

// WithTokenProvider sets the provider behind AuthToken primitives.
func WithTokenProvider(p auth.TokenProvider) Option { return func(s *Sequencer) { s.tokens = p } }

// WithBasePath replaces every BasePath primitive for the run.
func WithBasePath(p string) Option { return func(s *Sequencer) { s.basePath = p } }

// WithTimeout bounds each request; zero means no per-request deadline.
func WithTimeout(d time.Duration) Option { return func(s *Sequencer) { s.timeout = d } }

// WithOverrides installs a fuzzing strategy's value overrides.
func WithOverrides(f OverrideFunc) Option { return func(s *Sequencer) { s.overrides = f } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the dependency graph of coll and returns a Sequencer for it.
func New(coll *grammar.Collection, opts ...Option) (*Sequencer, error) {
	graph, err := deps.Build(coll)
	if err != nil {
		return nil, err
	}
	s := &Sequencer{
		coll:   coll,
		graph:  graph,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, id := range coll.IDs() {
		for _, tag := range graph.Unbound(id) {
			s.logger.Warn("Tag has no producer", zap.String("request", id), zap.String("tag", tag))
		}
	}
	return s, nil
}

// Graph returns the dependency graph.
func (s *Sequencer) Graph() *deps.Graph { return s.graph }

// Order returns the visiting order for strategy. A cyclic grammar fails with
// *deps.CyclicDependencyError under either strategy.
func (s *Sequencer) Order(strategy Strategy) ([]string, error) {
	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	if strategy == DeclarationOrder {
		return s.coll.IDs(), nil
	}
	return order, nil
}

// Run plans a run and returns its steps as a lazy sequence. Each request is
// rendered only after the previous response has been bound. The sequence can
// be consumed once; call Run again for a fresh run with an empty value store.
// Cancelling ctx stops the sequence before the next request is sent.
func (s *Sequencer) Run(ctx context.Context, strategy Strategy) (iter.Seq[Step], error) {
	if s.transport == nil {
		return nil, ErrNoTransport
	}
	order, err := s.Order(strategy)
	if err != nil {
		return nil, err
	}

	r := s.newRun()
	var used atomic.Bool
	return func(yield func(Step) bool) {
		if used.Swap(true) {
			return
		}
		for _, id := range order {
			if ctx.Err() != nil {
				return
			}
			if !yield(r.execute(ctx, s.transport, id)) {
				return
			}
		}
	}, nil
}

// RunAll consumes a run and returns one step per request. Requests not visited
// because ctx was cancelled are reported as skipped with ErrCancelled.
func (s *Sequencer) RunAll(ctx context.Context, strategy Strategy) ([]Step, error) {
	seq, err := s.Run(ctx, strategy)
	if err != nil {
		return nil, err
	}
	order, _ := s.Order(strategy)

	steps := make([]Step, 0, len(order))
	for step := range seq {
		steps = append(steps, step)
	}
	for _, id := range order[len(steps):] {
		steps = append(steps, Step{RequestID: id, Status: StatusSkipped, Err: ErrCancelled})
	}
	return steps, nil
}

// run is the state of one execution: a fresh value store and the set of
// requests that did not succeed.
type run struct {
	s   *Sequencer
	res *resolver.Resolver

	mu     sync.Mutex
	failed map[string]error
}

func (s *Sequencer) newRun() *run {
	return &run{
		s: s,
		res: resolver.New(
			resolver.WithTokenProvider(s.tokens),
			resolver.WithLogger(s.logger),
		),
		failed: make(map[string]error),
	}
}

func (r *run) markFailed(id string, err error) {
	r.mu.Lock()
	r.failed[id] = err
	r.mu.Unlock()
}

func (r *run) failure(id string) (error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok := r.failed[id]
	return err, ok
}

// execute renders, sends and extracts for one request.
func (r *run) execute(ctx context.Context, t Transport, id string) Step {
	s := r.s
	startTime := time.Now()
	step := Step{RequestID: id}
	log := s.logger.With(zap.String("request", id))

	finish := func(status Status, err error) Step {
		step.Status = status
		step.Err = err
		step.Duration = time.Since(startTime)
		if status != StatusSucceeded {
			r.markFailed(id, err)
		}
		return step
	}

	req, ok := s.coll.Get(id)
	if !ok {
		return finish(StatusFailed, fmt.Errorf("%w: %s", grammar.ErrUnknownRequest, id))
	}

	// Skip consumers whose producer failed or was itself skipped.
	for _, dep := range s.graph.Producers(id) {
		if cause, failed := r.failure(dep.Producer); failed {
			log.Warn("Skipping request", zap.String("producer", dep.Producer), zap.String("tag", dep.Tag))
			return finish(StatusSkipped, &DependencyFailedError{Producer: dep.Producer, Tag: dep.Tag, Cause: cause})
		}
	}

	res := r.res
	if s.overrides != nil {
		if o := s.overrides(id); len(o) > 0 {
			res = res.WithOverrides(o)
		}
	}

	log.Debug("Rendering request")
	raw, err := req.Render(&grammar.RenderContext{
		Context:  ctx,
		Resolver: res,
		BasePath: s.basePath,
	})
	if err != nil {
		log.Warn("Render failed", zap.Error(err))
		return finish(StatusFailed, err)
	}
	step.Rendered = raw

	// In-flight requests outlive cancellation of the run; the per-request
	// timeout still applies.
	sendCtx := context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, s.timeout)
		defer cancel()
	}

	resp, err := t.Send(sendCtx, raw)
	if err != nil {
		terr := transport.Wrap("send", err)
		log.Warn("Send failed", zap.Error(terr), zap.Bool("timeout", terr.Timeout))
		return finish(StatusFailed, terr)
	}
	step.Response = resp

	for _, edge := range s.coll.EdgesFor(id) {
		value, ok := extract.Apply(edge.Rule, resp)
		if !ok {
			miss := extract.Miss{Producer: id, Tag: edge.Rule.Tag, Path: edge.Rule.Path}
			log.Warn("Extraction miss", zap.String("tag", miss.Tag), zap.String("path", miss.Path))
			step.Misses = append(step.Misses, miss)
			continue
		}
		r.res.Bind(edge.Rule.Tag, value)
		log.Debug("Bound value", zap.String("tag", edge.Rule.Tag), zap.String("value", value))
	}

	log.Debug("Request completed", zap.Int("status", resp.StatusCode))
	return finish(StatusSucceeded, nil)
}
