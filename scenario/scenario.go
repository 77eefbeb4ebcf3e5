// Package scenario provides the three chat usage patterns as engine
// operations: single-shot completion, templated completion and streaming
// completion. Each operation writes its labelled output to the supplied
// writer and returns any backend failure to the harness.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/engine"
	"github.com/hupe1980/modelmux/model"
	"github.com/hupe1980/modelmux/prompt"
)

// SingleShot sends [system, human] through the backend's blocking Invoke
// and prints the response.
func SingleShot(system, human string, w io.Writer) engine.Operation {
	msgs := []core.Message{core.NewSystemMessage(system), core.NewHumanMessage(human)}
	return func(ctx context.Context, _ string, m model.Model) error {
		fmt.Fprintln(w, "Single-shot completion:")
		return invoke(ctx, m, msgs, w)
	}
}

// Templated formats tmpl with vars through the backend, then invokes it.
// The template may be shared between backends.
func Templated(tmpl *prompt.Template, vars map[string]any, w io.Writer) engine.Operation {
	return func(ctx context.Context, _ string, m model.Model) error {
		fmt.Fprintln(w, "Templated completion:")
		msgs, err := m.FormatMessages(tmpl, vars)
		if err != nil {
			return fmt.Errorf("format messages: %w", err)
		}
		return invoke(ctx, m, msgs, w)
	}
}

// Streaming prints every fragment as it arrives. On a mid-stream failure the
// fragments already printed stay on the console and the error is returned.
func Streaming(msgs []core.Message, w io.Writer) engine.Operation {
	return func(ctx context.Context, _ string, m model.Model) error {
		fmt.Fprintln(w, "Streaming completion:")
		chunks, errs := m.Stream(ctx, msgs)
		err := model.ForEach(chunks, errs, func(c model.Chunk) error {
			_, werr := io.WriteString(w, c.Content)
			return werr
		})
		fmt.Fprintln(w)
		if err != nil {
			return fmt.Errorf("stream: %w", err)
		}
		return nil
	}
}

func invoke(ctx context.Context, m model.Model, msgs []core.Message, w io.Writer) error {
	resp, err := m.Invoke(ctx, msgs)
	if err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	if resp.Role != core.RoleAssistant {
		return errors.New("invoke: response is not an assistant message")
	}
	fmt.Fprintln(w, resp.Content)
	return nil
}
