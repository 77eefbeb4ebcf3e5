package scenario

import (
	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/prompt"
)

// Demo inputs used when the configuration does not override them.
const (
	DefaultSystemPrompt = "You are a helpful assistant. Keep answers short."
	DefaultQuestion     = "What is the capital of France?"
	DefaultStreamPrompt = "Write a haiku about distributed systems."
)

// DefaultTemplate asks a question in a configurable persona and style.
var DefaultTemplate = prompt.Must(prompt.FromMessages(
	prompt.System("You are a {role}. Answer in a {style} style."),
	prompt.Human("{question}"),
))

// DefaultVars binds every variable of DefaultTemplate.
func DefaultVars() map[string]any {
	return map[string]any{
		"role":     "seasoned travel guide",
		"style":    "enthusiastic",
		"question": "What should I see in Paris in one day?",
	}
}

// DefaultStreamMessages is the conversation used by the streaming demo.
func DefaultStreamMessages() []core.Message {
	return []core.Message{
		core.NewSystemMessage(DefaultSystemPrompt),
		core.NewHumanMessage(DefaultStreamPrompt),
	}
}
