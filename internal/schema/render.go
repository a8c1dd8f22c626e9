package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Render writes r as an indented outline. Required properties are marked
// with "*"; circular and missing references are spelled out on their own
// line instead of being expanded.
func Render(w io.Writer, r *Resolved) error {
	pw := &printer{w: w}
	pw.node(0, "", r)
	return pw.err
}

// String is Render into a string.
func (r *Resolved) String() string {
	var b strings.Builder
	_ = Render(&b, r)
	return b.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(indent int, format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s"+format+"\n", append([]any{strings.Repeat("  ", indent)}, args...)...)
}

func (p *printer) node(indent int, label string, r *Resolved) {
	if r == nil {
		return
	}
	prefix := ""
	if label != "" {
		prefix = label + ": "
	}

	switch r.Kind {
	case KindCircular:
		p.printf(indent, "%s<circular reference: %s>", prefix, r.Ref)
		return
	case KindMissing:
		p.printf(indent, "%s<schema not found: %s>", prefix, r.Name)
		return
	}

	p.printf(indent, "%s%s", prefix, summary(r))

	if r.Items != nil {
		p.node(indent+1, "items", r.Items)
	}
	for name, prop := range r.Properties.All() {
		if r.IsRequired(name) {
			name += "*"
		}
		p.node(indent+1, name, prop)
	}
	for i, m := range r.Members {
		p.node(indent+1, fmt.Sprintf("%s[%d]", r.Composition, i), m)
	}
}

func summary(r *Resolved) string {
	var parts []string
	typ := r.Type
	if typ == "" {
		switch {
		case r.Properties != nil || r.Composition != "":
			typ = "object"
		default:
			typ = "any"
		}
	}
	if r.Format != "" {
		typ += "(" + r.Format + ")"
	}
	if r.Name != "" {
		typ = r.Name + " " + typ
	}
	parts = append(parts, typ)

	if r.Nullable {
		parts = append(parts, "nullable")
	}
	if len(r.Enum) > 0 {
		parts = append(parts, "enum "+compact(r.Enum))
	}
	if r.HasExample {
		parts = append(parts, "example "+compact(r.Example))
	}
	out := strings.Join(parts, ", ")
	if r.Description != "" {
		out += "  # " + firstLine(r.Description)
	}
	return out
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Example builds a starter value for r: declared examples first, then
// defaults and enum members, then the zero value of the type. Circular and
// missing branches become nil.
func Example(r *Resolved) any {
	if r == nil || r.Kind != KindValue {
		return nil
	}
	if r.HasExample {
		return r.Example
	}
	if r.Default != nil {
		return r.Default
	}
	if len(r.Enum) > 0 {
		return r.Enum[0]
	}

	switch r.Type {
	case "string":
		return ""
	case "integer", "number":
		return 0
	case "boolean":
		return false
	case "array":
		if r.Items == nil || r.Items.Kind != KindValue {
			return []any{}
		}
		return []any{Example(r.Items)}
	}

	if r.Properties == nil && len(r.Members) == 0 {
		if r.Type == "object" {
			return map[string]any{}
		}
		return nil
	}

	out := map[string]any{}
	for name, prop := range r.Properties.All() {
		out[name] = Example(prop)
	}
	for i, m := range r.Members {
		if r.Composition != "allOf" && i > 0 {
			break
		}
		if mv, ok := Example(m).(map[string]any); ok {
			for k, v := range mv {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		}
	}
	return out
}
