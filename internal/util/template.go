package util

import (
	"fmt"
	"strings"

	"github.com/hupe1980/modelmux/core"
)

// Segment is one piece of a parsed placeholder template: either literal text
// or a reference to a named variable.
type Segment struct {
	Literal  string
	Variable string
}

// IsVariable reports whether the segment references a variable.
func (s Segment) IsVariable() bool { return s.Variable != "" }

// ParseTemplate splits text into literal and {variable} segments. Doubled
// braces ("{{" and "}}") are literal braces. This lives in internal to avoid
// committing to public API stability prematurely.
func ParseTemplate(text string) ([]Segment, error) {
	var (
		segs []Segment
		lit  strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d", core.ErrInvalidTemplate, i)
			}
			name := strings.TrimSpace(text[i+1 : i+1+end])
			if !validName(name) {
				return nil, fmt.Errorf("%w: bad placeholder %q at offset %d", core.ErrInvalidTemplate, name, i)
			}
			flush()
			segs = append(segs, Segment{Variable: name})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: single '}' at offset %d", core.ErrInvalidTemplate, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return segs, nil
}

// TemplateVariables returns the distinct variable names referenced by segs in
// first-seen order.
func TemplateVariables(segs []Segment) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, s := range segs {
		if !s.IsVariable() {
			continue
		}
		if _, ok := seen[s.Variable]; ok {
			continue
		}
		seen[s.Variable] = struct{}{}
		names = append(names, s.Variable)
	}
	return names
}

// RenderTemplate substitutes every variable segment with its value from vars.
// A variable absent from vars is an error; nothing is substituted silently.
func RenderTemplate(segs []Segment, vars map[string]any) (string, error) {
	var buf strings.Builder
	for _, s := range segs {
		if !s.IsVariable() {
			buf.WriteString(s.Literal)
			continue
		}
		v, ok := vars[s.Variable]
		if !ok {
			return "", fmt.Errorf("%w: %s", core.ErrMissingVariable, s.Variable)
		}
		if v != nil {
			buf.WriteString(fmt.Sprint(v))
		}
	}
	return buf.String(), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
