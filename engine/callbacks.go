package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/modelmux/model"
)

// CallbackType defines the specific lifecycle points where callbacks can be executed.
//
// Available callback types:
//   - BeforeRun/AfterRun: Around one backend run
//   - OnError: When a backend run fails
//   - OnNotFound: When a requested backend is not registered
type CallbackType string

const (
	// CallbackBeforeRun is triggered after the banner and before the operation.
	// An error returned here skips the operation for that backend.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterRun is triggered after every run of a registered backend,
	// whether it succeeded or not. Err is set on failure.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackOnError is triggered when a backend run fails.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnNotFound is triggered when a backend name is not registered.
	CallbackOnNotFound CallbackType = "on_not_found"
)

// CallbackContext provides context information for callback execution.
type CallbackContext struct {
	// RunID uniquely identifies one RunOne call.
	RunID string

	// Backend is the requested backend name.
	Backend string

	// Model is the resolved backend. Nil for CallbackOnNotFound.
	Model model.Model

	// Err is the run failure, if any.
	Err error

	// Duration is the operation's wall time. Zero before the run.
	Duration time.Duration

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType
}

// Callback defines the interface for run lifecycle hooks.
//
// Callbacks run synchronously on the harness goroutine and should be fast.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackBeforeRun,
//	    func(ctx context.Context, callbackCtx *CallbackContext) error {
//	        log.Printf("starting backend: %s", callbackCtx.Backend)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops execution of the remaining callbacks of that type.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
//
// Multiple callbacks can be registered for the same type and are executed
// in registration order.
//
// Parameters:
//   - callback: The callback implementation to register
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(loggingCallback)
//	for _, cb := range summary.Callbacks() {
//	    manager.RegisterCallback(cb)
//	}
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
//
// Callbacks are executed sequentially in registration order. The first
// error stops execution; later callbacks of that type are not run.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - callbackType: The type of callbacks to execute
//   - callbackCtx: Run information handed to each callback; its
//     CallbackType field is set to callbackType
//
// Returns:
//   - error: The first callback error wrapped with the callback type, or nil
//
// Example:
//
//	err := manager.ExecuteCallbacks(ctx, CallbackBeforeRun, callbackCtx)
//	if err != nil {
//	    return fmt.Errorf("callback failed: %w", err)
//	}
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a message sink.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterRun, func(message string) {
//	    log.Printf("[HARNESS] %s", message)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute formats the event. A nil sink silently succeeds.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] backend=%s run=%s", c.callbackType, callbackCtx.Backend, callbackCtx.RunID)
	if callbackCtx.Err != nil {
		message += fmt.Sprintf(" error=%v", callbackCtx.Err)
	}
	c.logger(message)
	return nil
}

// Summary tallies run outcomes for a final report. It is not safe to share
// between concurrently running engines.
type Summary struct {
	mu       sync.Mutex
	ok       []string
	failed   []string
	notFound []string
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary { return &Summary{} }

// Callbacks returns the callbacks that feed the summary.
func (s *Summary) Callbacks() []Callback {
	return []Callback{
		NewFunctionCallback(CallbackAfterRun, func(_ context.Context, cc *CallbackContext) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cc.Err != nil {
				s.failed = append(s.failed, cc.Backend)
			} else {
				s.ok = append(s.ok, cc.Backend)
			}
			return nil
		}),
		NewFunctionCallback(CallbackOnNotFound, func(_ context.Context, cc *CallbackContext) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.notFound = append(s.notFound, cc.Backend)
			return nil
		}),
	}
}

// Counts returns the number of successful, failed and missing runs.
func (s *Summary) Counts() (ok, failed, notFound int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ok), len(s.failed), len(s.notFound)
}

// String renders a one line report.
func (s *Summary) String() string {
	ok, failed, notFound := s.Counts()
	return fmt.Sprintf("%d runs: %d succeeded, %d failed, %d not found", ok+failed+notFound, ok, failed, notFound)
}
