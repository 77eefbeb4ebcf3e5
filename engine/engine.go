package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/logging"
	"github.com/hupe1980/modelmux/model"
)

// Operation is a unit of work run against one backend. Any output is written
// by the operation itself; the engine does not collect results.
type Operation func(ctx context.Context, name string, m model.Model) error

// Options configures an Engine instance using the functional options pattern.
//
// Example:
//
//	h := New(func(o *Options) {
//	    o.Logger = logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	    o.Output = os.Stdout
//	})
type Options struct {
	// Logger provides structured logging for run diagnostics.
	// Defaults to NoOp logger if nil.
	Logger logging.Logger

	// Output receives the per-backend banners. Defaults to os.Stdout.
	Output io.Writer

	// Banner renders the progress marker written before each run.
	// Defaults to DefaultBanner.
	Banner func(name string) string

	// Callbacks are registered on construction, in order.
	Callbacks []Callback
}

// DefaultBanner renders "=== name ===".
func DefaultBanner(name string) string {
	return fmt.Sprintf("\n=== %s ===\n", name)
}

// Engine is the dispatch harness. It owns an ordered registry of named chat
// backends and runs caller supplied operations against one or all of them,
// isolating failures per backend.
//
// Concurrency Model:
//   - The registry is populated during setup and sealed by the first run;
//     later registrations fail with core.ErrRegistrySealed
//   - RunAll visits backends one at a time in registration order
//   - The registry is guarded by an RWMutex so lookups are safe from any goroutine
//
// Error Handling:
//   - Invoke returns failures (including recovered panics) wrapped with the backend name
//   - RunOne and RunAll log and swallow every failure; nothing escapes to the caller
type Engine struct {
	logger    logging.Logger
	out       io.Writer
	banner    func(name string) string
	callbacks *CallbackManager

	mu       sync.RWMutex
	names    []string               // Registration order
	backends map[string]model.Model // Registered backends by name
	sealed   bool
}

// New creates a new Engine with optional configuration.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Output: os.Stdout,
		Banner: DefaultBanner,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Banner == nil {
		opts.Banner = DefaultBanner
	}

	e := &Engine{
		logger:    opts.Logger,
		out:       opts.Output,
		banner:    opts.Banner,
		callbacks: NewCallbackManager(),
		backends:  make(map[string]model.Model),
	}
	for _, cb := range opts.Callbacks {
		e.callbacks.RegisterCallback(cb)
	}

	return e
}

// Register adds a backend under name.
//
// Names must be non-empty and unique, and registration is only possible
// before the first run. Registration order is the order RunAll follows.
//
// Parameters:
//   - name: The registry key, matched exactly by Lookup and RunOne
//   - m: The chat backend to dispatch to
//
// Returns:
//   - error: core.ErrInvalidBackend, core.ErrDuplicateBackend or
//     core.ErrRegistrySealed (wrapped), or nil on success
//
// Example:
//
//	if err := e.Register("openai", openai.NewModel(optFn)); err != nil {
//	    return fmt.Errorf("register: %w", err)
//	}
func (e *Engine) Register(name string, m model.Model) error {
	if name == "" || m == nil {
		return fmt.Errorf("%w: name=%q", core.ErrInvalidBackend, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed {
		return fmt.Errorf("register %s: %w", name, core.ErrRegistrySealed)
	}
	if _, exists := e.backends[name]; exists {
		return fmt.Errorf("register %s: %w", name, core.ErrDuplicateBackend)
	}

	e.backends[name] = m
	e.names = append(e.names, name)

	return nil
}

// AddCallback registers a lifecycle callback.
func (e *Engine) AddCallback(cb Callback) { e.callbacks.RegisterCallback(cb) }

// Lookup retrieves a registered backend by exact name.
func (e *Engine) Lookup(name string) (model.Model, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.backends[name]
	return m, ok
}

// Names returns the registered backend names in registration order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.names)
}

// Len returns the number of registered backends.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.names)
}

// Invoke runs op against the named backend and returns its outcome.
//
// Unlike RunOne, Invoke writes no banner, fires no callbacks and does not
// log. It is the building block for callers that need the error itself.
//
// Parameters:
//   - ctx: Context passed through to op
//   - name: The backend to run against
//   - op: The operation to execute
//
// Returns:
//   - error: core.ErrBackendNotFound (op not called), the op's error wrapped
//     with the backend name, core.ErrOperationPanicked for a recovered panic,
//     or nil on success
//
// Example:
//
//	err := e.Invoke(ctx, "anthropic", scenario.SingleShot(system, question, os.Stdout))
//	if errors.Is(err, core.ErrBackendNotFound) {
//	    // not configured
//	}
func (e *Engine) Invoke(ctx context.Context, name string, op Operation) error {
	if op == nil {
		return errors.New("nil operation")
	}

	m, err := e.resolve(name)
	if err != nil {
		return err
	}

	return call(ctx, name, m, op)
}

// RunOne runs op against the named backend. Failures are logged with the
// backend name attached and swallowed.
//
// The lifecycle of one run is:
//  1. An unknown name logs "backend not found", fires CallbackOnNotFound and stops
//  2. The banner is written to Options.Output
//  3. CallbackBeforeRun fires; an error skips the operation
//  4. The operation runs under panic recovery
//  5. CallbackOnError fires on failure, then CallbackAfterRun always fires
//
// Panics raised by the banner, the backend's Info, callbacks or the
// operation are recovered. RunOne never panics and never returns an error.
func (e *Engine) RunOne(ctx context.Context, name string, op Operation) {
	runID := uuid.NewString()
	log := logging.With(e.logger, "backend", name, "run_id", runID)

	if op == nil {
		log.Error("run skipped", "error", "nil operation")
		return
	}

	m, err := e.resolve(name)
	if err != nil {
		log.Warn("backend not found", "error", err)
		e.fire(ctx, log, CallbackOnNotFound, &CallbackContext{RunID: runID, Backend: name, Err: err})
		return
	}

	if err := guard(name, func() { _, _ = io.WriteString(e.out, e.banner(name)) }); err != nil {
		log.Warn("banner failed", "error", err)
	}

	cc := &CallbackContext{RunID: runID, Backend: name, Model: m}
	var info model.Info
	if err := e.fire(ctx, log, CallbackBeforeRun, cc); err != nil {
		cc.Err = err
	} else if err := guard(name, func() { info = m.Info() }); err != nil {
		cc.Err = fmt.Errorf("info: %w", err)
	} else {
		log.Debug("run started", "provider", info.Provider, "model", info.Name)
		start := time.Now()
		cc.Err = call(ctx, name, m, op)
		cc.Duration = time.Since(start)
	}

	if cc.Err != nil {
		log.Error("run failed", "error", cc.Err, "duration", cc.Duration)
		_ = e.fire(ctx, log, CallbackOnError, cc)
	} else {
		log.Debug("run completed", "duration", cc.Duration)
	}

	_ = e.fire(ctx, log, CallbackAfterRun, cc)
}

// RunAll runs op against every registered backend, one after another, in
// registration order. A failing backend never prevents the next from running.
func (e *Engine) RunAll(ctx context.Context, op Operation) {
	e.seal()
	for _, name := range e.Names() {
		e.RunOne(ctx, name, op)
	}
}

func (e *Engine) seal() {
	e.mu.Lock()
	e.sealed = true
	e.mu.Unlock()
}

func (e *Engine) resolve(name string) (model.Model, error) {
	e.seal()
	m, ok := e.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrBackendNotFound, name)
	}
	return m, nil
}

// fire executes callbacks of one type. Callback failures and panics are
// logged and returned, never propagated as panics.
func (e *Engine) fire(ctx context.Context, log logging.Logger, t CallbackType, cc *CallbackContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback: %w: %v", t, core.ErrOperationPanicked, r)
		}
		if err != nil {
			log.Warn("callback failed", "callback", string(t), "error", err)
		}
	}()
	return e.callbacks.ExecuteCallbacks(ctx, t, cc)
}

func call(ctx context.Context, name string, m model.Model, op Operation) error {
	var opErr error
	if err := guard(name, func() { opErr = op(ctx, name, m) }); err != nil {
		return err
	}
	if opErr != nil {
		return fmt.Errorf("backend %s: %w", name, opErr)
	}
	return nil
}

// guard runs fn and converts a panic into core.ErrOperationPanicked.
func guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s: %w: %v", name, core.ErrOperationPanicked, r)
		}
	}()
	fn()
	return nil
}

// WithTimeout bounds each call of op by d. A non-positive d returns op unchanged.
func WithTimeout(op Operation, d time.Duration) Operation {
	if d <= 0 {
		return op
	}
	return func(ctx context.Context, name string, m model.Model) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return op(ctx, name, m)
	}
}
