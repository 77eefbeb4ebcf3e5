// Package prompt implements chat prompt templates: an ordered list of
// (role, text) pairs whose text may reference {named} placeholders. Formatting
// a template with bound variables yields a concrete []core.Message.
//
// Templates are immutable after construction and safe to share across
// backends and goroutines. Formatting performs no I/O and is deterministic
// for a given variable set. A placeholder without a bound value fails the
// format call; it is never left in the output or replaced by a default.
package prompt

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/modelmux/core"
	"github.com/hupe1980/modelmux/internal/util"
)

// MessageTemplate is one templated conversation turn.
type MessageTemplate struct {
	Role core.Role
	Text string
}

// System returns a system MessageTemplate.
func System(text string) MessageTemplate { return MessageTemplate{Role: core.RoleSystem, Text: text} }

// Human returns a human MessageTemplate.
func Human(text string) MessageTemplate { return MessageTemplate{Role: core.RoleHuman, Text: text} }

// Assistant returns an assistant MessageTemplate.
func Assistant(text string) MessageTemplate {
	return MessageTemplate{Role: core.RoleAssistant, Text: text}
}

// Options configures a Template.
type Options struct {
	// Partials pre-binds variables. Values passed to Format take precedence.
	Partials map[string]any
}

type compiled struct {
	role core.Role
	text string
	segs []util.Segment
}

// Template is a parsed chat prompt template.
type Template struct {
	messages  []compiled
	variables []string
	partials  map[string]any
}

// New parses the given message templates. Unknown roles and malformed
// placeholders are rejected with core.ErrInvalidTemplate.
func New(msgs []MessageTemplate, optFns ...func(o *Options)) (*Template, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: no messages", core.ErrInvalidTemplate)
	}

	t := &Template{
		messages: make([]compiled, 0, len(msgs)),
		partials: maps.Clone(opts.Partials),
	}
	if t.partials == nil {
		t.partials = map[string]any{}
	}

	seen := map[string]struct{}{}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: message %d has unknown role %q", core.ErrInvalidTemplate, i, m.Role)
		}
		segs, err := util.ParseTemplate(m.Text)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		for _, name := range util.TemplateVariables(segs) {
			seen[name] = struct{}{}
		}
		t.messages = append(t.messages, compiled{role: m.Role, text: m.Text, segs: segs})
	}

	t.variables = slices.Sorted(maps.Keys(seen))

	return t, nil
}

// FromMessages is a variadic convenience wrapper around New.
func FromMessages(msgs ...MessageTemplate) (*Template, error) { return New(msgs) }

// FromPairs builds a template from (role, text) string pairs, the shape used
// by configuration files. Role names are parsed with core.ParseRole.
func FromPairs(pairs [][2]string, optFns ...func(o *Options)) (*Template, error) {
	msgs := make([]MessageTemplate, 0, len(pairs))
	for i, p := range pairs {
		role, ok := core.ParseRole(p[0])
		if !ok {
			return nil, fmt.Errorf("%w: message %d has unknown role %q", core.ErrInvalidTemplate, i, p[0])
		}
		msgs = append(msgs, MessageTemplate{Role: role, Text: p[1]})
	}
	return New(msgs, optFns...)
}

// Must panics if err is non-nil. Intended for package-level templates.
func Must(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

// Variables returns every placeholder name referenced by the template, sorted.
func (t *Template) Variables() []string { return slices.Clone(t.variables) }

// InputVariables returns the placeholder names that still need a value at
// format time (Variables minus partials), sorted.
func (t *Template) InputVariables() []string {
	out := make([]string, 0, len(t.variables))
	for _, v := range t.variables {
		if _, ok := t.partials[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

// Messages returns the raw message templates in order.
func (t *Template) Messages() []MessageTemplate {
	out := make([]MessageTemplate, len(t.messages))
	for i, m := range t.messages {
		out[i] = MessageTemplate{Role: m.role, Text: m.text}
	}
	return out
}

// Partial returns a copy of the template with additional pre-bound variables.
func (t *Template) Partial(vars map[string]any) *Template {
	nt := &Template{
		messages:  t.messages,
		variables: t.variables,
		partials:  maps.Clone(t.partials),
	}
	maps.Copy(nt.partials, vars)
	return nt
}

// Format binds vars (over any partials) and renders the message sequence.
// Every missing variable is reported in one core.ErrMissingVariable error.
func (t *Template) Format(vars map[string]any) ([]core.Message, error) {
	bound := maps.Clone(t.partials)
	maps.Copy(bound, vars)

	var missing []string
	for _, v := range t.variables {
		if _, ok := bound[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrMissingVariable, strings.Join(missing, ", "))
	}

	out := make([]core.Message, 0, len(t.messages))
	for _, m := range t.messages {
		text, err := util.RenderTemplate(m.segs, bound)
		if err != nil {
			return nil, err
		}
		out = append(out, core.Message{Role: m.role, Content: text})
	}

	return out, nil
}
