package hook

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/recognizer"
)

// AnyLabel in a binding matches every prediction.
const AnyLabel = "*"

// DefaultMaxInFlight bounds concurrently running plugins.
const DefaultMaxInFlight = 4

// Dispatcher runs the bound plugins for each stable prediction. Plugins run
// in the background so Publish never blocks the recognition loop; a
// prediction arriving while MaxInFlight plugins are running is dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	bindings []config.HookBinding
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	results []Result
	// OnResult, when set, is called after every plugin run.
	OnResult func(Result)
}

// Result is the outcome of one plugin run.
type Result struct {
	Binding  config.HookBinding
	Request  *Request
	Response *Response
	Err      error
}

// NewDispatcher returns a Dispatcher for bindings. maxInFlight <= 0 uses
// DefaultMaxInFlight.
func NewDispatcher(m *Manager, e *Executor, bindings []config.HookBinding, maxInFlight int, logger *zap.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  m,
		executor: e,
		bindings: bindings,
		logger:   logging.OrNop(logger).Named("hook"),
		ctx:      ctx,
		cancel:   cancel,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Matches returns the bindings that apply to label.
func (d *Dispatcher) Matches(label string) []config.HookBinding {
	label = labels.Normalize(label)
	var out []config.HookBinding
	for _, b := range d.bindings {
		if b.Label == AnyLabel || labels.Normalize(b.Label) == label {
			out = append(out, b)
		}
	}
	return out
}

// Publish implements recognizer.Sink.
func (d *Dispatcher) Publish(p recognizer.Prediction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	for _, b := range d.Matches(p.Label) {
		plugin, err := d.manager.Get(b.Plugin)
		if err != nil {
			d.logger.Warn("hook plugin not found", zap.String("plugin", b.Plugin), zap.String("label", p.Label))
			continue
		}
		if !plugin.Supports(b.Action) {
			d.logger.Warn("hook action not supported",
				zap.String("plugin", b.Plugin), zap.String("action", b.Action))
			continue
		}
		req, err := newRequest(b, p)
		if err != nil {
			d.logger.Warn("invalid hook params", zap.String("plugin", b.Plugin), zap.Error(err))
			continue
		}
		if !d.sem.TryAcquire(1) {
			d.logger.Debug("hook busy, dropping prediction", zap.String("plugin", b.Plugin), zap.String("label", p.Label))
			continue
		}

		d.wg.Add(1)
		go func(b config.HookBinding) {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.run(b, plugin, req)
		}(b)
	}
}

func (d *Dispatcher) run(b config.HookBinding, plugin *Plugin, req *Request) {
	resp, err := d.executor.Execute(d.ctx, plugin, req)
	switch {
	case err != nil:
		d.logger.Warn("hook failed", zap.String("plugin", b.Plugin), zap.String("action", b.Action), zap.Error(err))
	case !resp.Success:
		d.logger.Warn("hook reported failure", zap.String("plugin", b.Plugin), zap.String("action", b.Action),
			zap.String("error", resp.Error))
	default:
		d.logger.Info("hook executed", zap.String("plugin", b.Plugin), zap.String("action", b.Action),
			zap.String("label", req.Label))
	}

	r := Result{Binding: b, Request: req, Response: resp, Err: err}
	d.mu.Lock()
	d.results = append(d.results, r)
	onResult := d.OnResult
	d.mu.Unlock()
	if onResult != nil {
		onResult(r)
	}
}

// Results returns the outcomes of finished plugin runs.
func (d *Dispatcher) Results() []Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Result(nil), d.results...)
}

// Wait blocks until every started plugin has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting predictions, kills running plugins and waits for them.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}

func newRequest(b config.HookBinding, p recognizer.Prediction) (*Request, error) {
	req := &Request{
		Action:     b.Action,
		Label:      p.Label,
		Index:      p.Index,
		Confidence: p.Confidence,
		Timestamp:  p.Timestamp,
	}
	if len(b.Params) > 0 {
		params, err := json.Marshal(b.Params)
		if err != nil {
			return nil, err
		}
		req.Params = params
	}
	return req, nil
}
