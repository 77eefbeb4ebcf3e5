// Package modelmux provides a high-level façade over the dispatch engine
// enabling model-agnostic calls to several hosted chat providers. Most
// applications interact with this package by:
//  1. Creating a Mux via New()
//  2. Registering backends, either by hand (Register) or from a loaded
//     config.Config (RegisterFromConfig)
//  3. Running operations against one backend (RunOne) or all of them (RunAll)
//
// The façade delegates dispatch to engine.Engine while keeping setup and
// usage ergonomics concise. Failures are isolated per backend: they are
// logged with the backend name and never abort the remaining backends.
package modelmux

import (
	"context"
	"errors"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/modelmux/config"
	"github.com/hupe1980/modelmux/engine"
	"github.com/hupe1980/modelmux/logging"
	"github.com/hupe1980/modelmux/model"
	"github.com/hupe1980/modelmux/model/anthropic"
	"github.com/hupe1980/modelmux/model/openai"
)

// Backend names used by RegisterFromConfig.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// Options configures the Mux instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Output receives the per-backend banners (defaults to os.Stdout).
	Output io.Writer

	// Callbacks observe run lifecycle events.
	Callbacks []engine.Callback
}

// Mux is the high-level façade aggregating the dispatch engine.
type Mux struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Mux instance with optional overrides.
func New(optFns ...func(o *Options)) *Mux {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Output: os.Stdout,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Output = opts.Output
		o.Callbacks = opts.Callbacks
	})

	return &Mux{opts: opts, engine: e}
}

// Register adds a named backend.
func (m *Mux) Register(name string, backend model.Model) error {
	return m.engine.Register(name, backend)
}

// RegisterFromConfig constructs and registers every active provider in cfg,
// OpenAI first. It returns the registered names.
func (m *Mux) RegisterFromConfig(cfg *config.Config) ([]string, error) {
	var names []string
	for _, b := range NewBackends(cfg) {
		if err := m.Register(b.Name, b.Model); err != nil {
			return names, err
		}
		names = append(names, b.Name)
	}
	return names, nil
}

// Names returns the registered backend names in registration order.
func (m *Mux) Names() []string { return m.engine.Names() }

// AddCallback registers a lifecycle callback.
func (m *Mux) AddCallback(cb engine.Callback) { m.engine.AddCallback(cb) }

// Invoke runs op against one backend and returns its error.
func (m *Mux) Invoke(ctx context.Context, name string, op engine.Operation) error {
	return m.engine.Invoke(ctx, name, op)
}

// RunOne runs op against one backend, logging and swallowing failures.
func (m *Mux) RunOne(ctx context.Context, name string, op engine.Operation) {
	m.engine.RunOne(ctx, name, op)
}

// RunAll runs op against every backend in registration order.
func (m *Mux) RunAll(ctx context.Context, op engine.Operation) {
	m.engine.RunAll(ctx, op)
}

// Backend pairs a registry name with a constructed model.
type Backend struct {
	Name  string
	Model model.Model
}

// NewBackends builds provider backends from cfg. Credentials and sampling
// settings are copied from cfg into each constructor; providers without an
// API key or marked disabled are skipped.
func NewBackends(cfg *config.Config) []Backend {
	var backends []Backend

	if p := cfg.OpenAI; p.Active() {
		backends = append(backends, Backend{
			Name: BackendOpenAI,
			Model: openai.NewModel(func(o *openai.Options) {
				o.APIKey = p.APIKey
				o.BaseURL = p.BaseURL
				o.Model = p.Model
				o.Temperature = p.Temperature
				if p.MaxTokens > 0 {
					o.MaxCompletionTokens = p.MaxTokens
				}
				o.MaxRetries = p.MaxRetries
			}),
		})
	}

	if p := cfg.Anthropic; p.Active() {
		backends = append(backends, Backend{
			Name: BackendAnthropic,
			Model: anthropic.NewModel(func(o *anthropic.Options) {
				o.APIKey = p.APIKey
				o.BaseURL = p.BaseURL
				o.Model = anthropicsdk.Model(p.Model)
				o.Temperature = p.Temperature
				if p.MaxTokens > 0 {
					o.MaxTokens = p.MaxTokens
				}
				o.MaxRetries = p.MaxRetries
			}),
		})
	}

	return backends
}

// ErrNoBackends is returned by callers that require at least one backend.
var ErrNoBackends = errors.New("no backends configured: set " + config.EnvOpenAIAPIKey + " and/or " + config.EnvAnthropicAPIKey)
