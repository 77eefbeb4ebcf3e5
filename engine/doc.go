// Package engine implements the modelmux dispatch harness.
//
// An Engine holds a registry of named chat backends (model.Model values) in
// registration order and runs caller supplied Operations against them:
//
//   - Invoke: the result-returning inner call for one backend
//   - RunOne: Invoke plus banner, logging and callbacks; never fails the caller
//   - RunAll: RunOne for each backend, sequentially, in registration order
//
// Failure isolation is per backend. A registry miss is reported as a
// warning and skipped; an operation failure (error or panic) is logged with
// the backend name and run id attached and swallowed. There is no retry and
// no aggregation of results; operations write their own output.
//
// Lifecycle callbacks (before_run, after_run, on_error, on_not_found) allow
// callers to observe runs, e.g. to print a final Summary.
//
// Example:
//
//	h := engine.New(func(o *engine.Options) { o.Logger = logger })
//	_ = h.Register("openai", openai.NewModel(func(o *openai.Options) { o.APIKey = cfg.OpenAI.APIKey }))
//	_ = h.Register("anthropic", anthropic.NewModel(func(o *anthropic.Options) { o.APIKey = cfg.Anthropic.APIKey }))
//	h.RunAll(ctx, scenario.SingleShot(system, question, os.Stdout))
package engine
