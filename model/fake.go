package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/modelmux/core"
)

// FakeOptions configures a FakeModel.
type FakeOptions struct {
	// Responses maps the last human message to a canned completion.
	Responses map[string]string
	// InvokeError, when set, is returned by every Invoke call.
	InvokeError error
	// StreamError, when set, terminates Stream after StreamFailAfter fragments.
	StreamError     error
	StreamFailAfter int
	// Block makes Invoke and Stream wait for ctx cancellation.
	Block bool
}

// FakeModel is a deterministic in‑memory Model useful for tests & demos.
// Streaming splits the completion into word fragments whose concatenation
// equals the Invoke result for the same input.
type FakeModel struct {
	Base

	info Info
	opts FakeOptions

	mu          sync.Mutex
	invokeCalls int
	streamCalls int
}

var _ Model = (*FakeModel)(nil)

// NewFakeModel constructs a FakeModel.
func NewFakeModel(name string, optFns ...func(o *FakeOptions)) *FakeModel {
	opts := FakeOptions{Responses: map[string]string{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Responses == nil {
		opts.Responses = map[string]string{}
	}
	return &FakeModel{
		info: Info{Name: name, Provider: "fake"},
		opts: opts,
	}
}

// AddResponse registers a canned completion for an input prompt.
func (m *FakeModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.Responses[prompt] = response
}

// InvokeCalls returns how often Invoke was called.
func (m *FakeModel) InvokeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invokeCalls
}

// StreamCalls returns how often Stream was called.
func (m *FakeModel) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// Invoke implements Model.
func (m *FakeModel) Invoke(ctx context.Context, msgs []core.Message) (core.Message, error) {
	m.mu.Lock()
	m.invokeCalls++
	m.mu.Unlock()

	if m.opts.Block {
		<-ctx.Done()
		return core.Message{}, ctx.Err()
	}
	if m.opts.InvokeError != nil {
		return core.Message{}, m.opts.InvokeError
	}

	text, err := m.respond(msgs)
	if err != nil {
		return core.Message{}, err
	}
	return core.NewAssistantMessage(text), nil
}

// Stream implements Model.
func (m *FakeModel) Stream(ctx context.Context, msgs []core.Message) (<-chan Chunk, <-chan error) {
	m.mu.Lock()
	m.streamCalls++
	m.mu.Unlock()

	text, err := m.respond(msgs)
	if err != nil {
		return StreamError(err)
	}

	out := make(chan Chunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if m.opts.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}

		for i, frag := range Fragments(text) {
			if m.opts.StreamError != nil && i == m.opts.StreamFailAfter {
				errCh <- m.opts.StreamError
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{Index: i, Content: frag}:
			}
		}
		if m.opts.StreamError != nil {
			errCh <- m.opts.StreamError
		}
	}()

	return out, errCh
}

// Info implements Model.
func (m *FakeModel) Info() Info { return m.info }

func (m *FakeModel) respond(msgs []core.Message) (string, error) {
	last, ok := core.LastOfRole(msgs, core.RoleHuman)
	if !ok {
		return "", errors.New("no human message provided")
	}

	m.mu.Lock()
	canned, ok := m.opts.Responses[last.Content]
	m.mu.Unlock()
	if ok {
		return canned, nil
	}

	return fmt.Sprintf("%s response to: %s", m.info.Name, last.Content), nil
}

// Fragments splits text after every space, keeping the separators so that
// joining the fragments reproduces text exactly.
func Fragments(text string) []string {
	var out []string
	for _, f := range strings.SplitAfter(text, " ") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
