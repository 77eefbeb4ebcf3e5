package model

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/prompt"
)

// Chunk is one streamed fragment of assistant content.
type Chunk struct {
	Index   int    `json:"index"` // Position in the stream, starting at 0
	Content string `json:"content"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "fake", etc.
}

// Model is the chat capability every backend provides.
//
// Stream returns a lazy, finite, forward-only fragment sequence. Both channels
// are closed when the stream ends; at most one error is sent. Fragments
// delivered before an error remain valid.
type Model interface {
	Invoke(ctx context.Context, msgs []core.Message) (core.Message, error)
	Stream(ctx context.Context, msgs []core.Message) (<-chan Chunk, <-chan error)
	FormatMessages(tmpl *prompt.Template, vars map[string]any) ([]core.Message, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Base supplies the provider independent parts of Model. Embed it in
// concrete backends.
type Base struct{}

// FormatMessages renders tmpl with vars. It performs no I/O.
func (Base) FormatMessages(tmpl *prompt.Template, vars map[string]any) ([]core.Message, error) {
	if tmpl == nil {
		return nil, errors.New("nil prompt template")
	}
	return tmpl.Format(vars)
}

// ForEach pulls fragments in arrival order and hands each to fn. It returns
// the stream's terminal error, or the first error returned by fn. When fn
// fails the remaining fragments are drained so the producer can finish.
func ForEach(chunks <-chan Chunk, errs <-chan error, fn func(Chunk) error) error {
	var fnErr error
	for c := range chunks {
		if fnErr != nil {
			continue
		}
		fnErr = fn(c)
	}
	if fnErr != nil {
		return fnErr
	}
	return <-errs
}

// Collect concatenates all fragments. On failure the text delivered so far is
// returned together with the error.
func Collect(chunks <-chan Chunk, errs <-chan error) (string, error) {
	var b strings.Builder
	err := ForEach(chunks, errs, func(c Chunk) error {
		b.WriteString(c.Content)
		return nil
	})
	return b.String(), err
}

// StreamError returns an already terminated stream that yields only err.
func StreamError(err error) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk)
	errCh := make(chan error, 1)
	errCh <- err
	close(out)
	close(errCh)
	return out, errCh
}
