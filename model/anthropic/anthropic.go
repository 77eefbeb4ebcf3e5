// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64

	// Client settings, ignored by NewModelFromClient.
	APIKey     string
	BaseURL    string
	MaxRetries int
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	model.Base

	client *anthropic.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// DefaultBaseURL is the Anthropic API endpoint used when Options.BaseURL is empty.
const DefaultBaseURL = "https://api.anthropic.com/"

// NewModel creates a new Anthropic model using the official client. Key and
// endpoint come from Options only; ANTHROPIC_API_KEY and ANTHROPIC_BASE_URL
// are not consulted.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := anthropic.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(opts.MaxRetries),
	)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Invoke sends a blocking Messages request and joins the returned text blocks.
func (m *Model) Invoke(ctx context.Context, msgs []core.Message) (core.Message, error) {
	resp, err := m.client.Messages.New(ctx, m.buildParams(msgs))
	if err != nil {
		return core.Message{}, fmt.Errorf("anthropic api error: %w", err)
	}
	if len(resp.Content) == 0 {
		return core.Message{}, fmt.Errorf("anthropic: %w: no content blocks", core.ErrEmptyResponse)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return core.NewAssistantMessage(text.String()), nil
}

// Stream forwards text_delta events as model.Chunk values. Other event kinds
// (message_start, content_block_stop, ...) carry no assistant text.
func (m *Model) Stream(ctx context.Context, msgs []core.Message) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := m.client.Messages.NewStreaming(ctx, m.buildParams(msgs))
		defer stream.Close()

		idx := 0
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok || delta.Delta.Type != "text_delta" {
				continue
			}
			text := delta.Delta.AsTextDelta().Text
			if text == "" {
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- model.Chunk{Index: idx, Content: text}:
				idx++
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(msgs []core.Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(msgs),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if system := extractSystem(msgs); len(system) > 0 {
		params.System = system
	}
	return params
}

// buildMessages converts conversation turns to Anthropic message format.
// System turns are carried separately by extractSystem.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return messages
}

// extractSystem collects system turns as system prompt blocks.
func extractSystem(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}
