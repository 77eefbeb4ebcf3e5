package prompt

import (
	"strings"
	"testing"

	"github.com/hupe1980/modelmux/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistantTemplate(t *testing.T) *Template {
	t.Helper()
	tmpl, err := FromMessages(
		System("You are a {role}. Answer in a {style} style."),
		Human("{question}"),
	)
	require.NoError(t, err)
	return tmpl
}

func TestTemplate_Variables(t *testing.T) {
	tmpl := newAssistantTemplate(t)
	assert.Equal(t, []string{"question", "role", "style"}, tmpl.Variables())
	assert.Equal(t, []string{"question", "role", "style"}, tmpl.InputVariables())
}

func TestTemplate_Format(t *testing.T) {
	tmpl := newAssistantTemplate(t)

	msgs, err := tmpl.Format(map[string]any{
		"role":     "patient tutor",
		"style":    "concise",
		"question": "What is a goroutine?",
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Message{
		core.NewSystemMessage("You are a patient tutor. Answer in a concise style."),
		core.NewHumanMessage("What is a goroutine?"),
	}, msgs)
}

func TestTemplate_FormatIsDeterministic(t *testing.T) {
	tmpl := newAssistantTemplate(t)
	vars := map[string]any{"role": "poet", "style": "rhyming", "question": "Why is the sky blue?"}

	first, err := tmpl.Format(vars)
	require.NoError(t, err)
	second, err := tmpl.Format(vars)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTemplate_FormatMissingVariable(t *testing.T) {
	tmpl := newAssistantTemplate(t)

	msgs, err := tmpl.Format(map[string]any{"role": "poet", "question": "Why?"})
	require.ErrorIs(t, err, core.ErrMissingVariable)
	assert.Contains(t, err.Error(), "style")
	assert.Nil(t, msgs)
}

func TestTemplate_FormatReportsAllMissing(t *testing.T) {
	tmpl := newAssistantTemplate(t)

	_, err := tmpl.Format(nil)
	require.ErrorIs(t, err, core.ErrMissingVariable)
	assert.Contains(t, err.Error(), "question, role, style")
}

func TestTemplate_FormatNeverLeavesPlaceholders(t *testing.T) {
	tmpl := newAssistantTemplate(t)

	msgs, err := tmpl.Format(map[string]any{"role": "r", "style": "s", "question": "q", "extra": "ignored"})
	require.NoError(t, err)
	for _, m := range msgs {
		assert.False(t, strings.Contains(m.Content, "{"), m.Content)
	}
}

func TestTemplate_Partial(t *testing.T) {
	base := newAssistantTemplate(t)
	tmpl := base.Partial(map[string]any{"role": "pirate"})

	assert.Equal(t, []string{"question", "style"}, tmpl.InputVariables())
	assert.Equal(t, []string{"question", "role", "style"}, base.InputVariables())

	msgs, err := tmpl.Format(map[string]any{"style": "salty", "question": "Ahoy?"})
	require.NoError(t, err)
	assert.Equal(t, "You are a pirate. Answer in a salty style.", msgs[0].Content)

	// Format values override partials.
	msgs, err = tmpl.Format(map[string]any{"role": "captain", "style": "salty", "question": "Ahoy?"})
	require.NoError(t, err)
	assert.Equal(t, "You are a captain. Answer in a salty style.", msgs[0].Content)
}

func TestNew_WithPartialsOption(t *testing.T) {
	tmpl, err := New([]MessageTemplate{Human("{greeting}, {name}")}, func(o *Options) {
		o.Partials = map[string]any{"greeting": "Hello"}
	})
	require.NoError(t, err)

	msgs, err := tmpl.Format(map[string]any{"name": "Gopher"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Gopher", msgs[0].Content)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrInvalidTemplate)

	_, err = New([]MessageTemplate{{Role: "tool", Text: "x"}})
	assert.ErrorIs(t, err, core.ErrInvalidTemplate)

	_, err = FromMessages(Human("unclosed {name"))
	assert.ErrorIs(t, err, core.ErrInvalidTemplate)
}

func TestFromPairs(t *testing.T) {
	tmpl, err := FromPairs([][2]string{{"system", "Be {mood}."}, {"user", "{question}"}, {"ai", "ok"}})
	require.NoError(t, err)

	msgs := tmpl.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, core.RoleHuman, msgs[1].Role)
	assert.Equal(t, core.RoleAssistant, msgs[2].Role)

	_, err = FromPairs([][2]string{{"narrator", "x"}})
	assert.ErrorIs(t, err, core.ErrInvalidTemplate)
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(FromMessages(Human("hi"))) })
	assert.Panics(t, func() { Must(FromMessages()) })
}
