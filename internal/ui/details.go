package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"oasplay/internal/httpclient"
	"oasplay/internal/model"
	"oasplay/internal/schema"
	"oasplay/internal/session"
)

// paneDef is one parameter pane of the builder screen.
type paneDef struct {
	name  string
	title string
	locs  []model.ParamLocation
}

var builderPanes = []paneDef{
	{name: "path", title: "Path Params", locs: []model.ParamLocation{model.ParamInPath}},
	{name: "query", title: "Query Params", locs: []model.ParamLocation{model.ParamInQuery}},
	{name: "headers", title: "Header & Cookie Params", locs: []model.ParamLocation{model.ParamInHeader, model.ParamInCookie}},
	{name: "body", title: "Body"},
}

// visiblePanes lists the panes that have something to show for op. The path
// pane is always present so the screen is never empty.
func visiblePanes(op *model.Operation) []paneDef {
	var out []paneDef
	for _, p := range builderPanes {
		switch {
		case p.name == "body":
			if op.RequestBody != nil {
				out = append(out, p)
			}
		case len(paneParams(op, p)) > 0:
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, builderPanes[0])
	}
	return out
}

func paneParams(op *model.Operation, p paneDef) []model.Parameter {
	var out []model.Parameter
	for _, loc := range p.locs {
		out = append(out, op.ParamsIn(loc)...)
	}
	return out
}

// paramHint describes an unset parameter from its schema.
func paramHint(doc *model.Document, p model.Parameter) string {
	var parts []string
	if r := schema.Resolve(p.Schema, doc); r != nil && r.Kind == schema.KindValue {
		if len(r.Enum) > 0 {
			vals := make([]string, 0, len(r.Enum))
			for _, e := range r.Enum {
				vals = append(vals, fmt.Sprint(e))
			}
			parts = append(parts, strings.Join(vals, "|"))
		}
		if r.Default != nil {
			parts = append(parts, fmt.Sprintf("default: %v", r.Default))
		}
		if r.HasExample && len(parts) == 0 {
			parts = append(parts, fmt.Sprintf("e.g. %v", r.Example))
		}
		if len(parts) == 0 && r.Type != "" {
			parts = append(parts, r.Type)
		}
	}
	if p.Description != "" {
		parts = append(parts, firstLine(p.Description))
	}
	return strings.Join(parts, ", ")
}

// paramLine renders "*name = value"; parseParamLine reverses it.
func paramLine(name string, required bool, value string) string {
	req := ""
	if required {
		req = "*"
	}
	return fmt.Sprintf("%s%s = %s", req, name, value)
}

func parseParamLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "(") {
		return ""
	}
	line = strings.TrimPrefix(line, "*")
	name, _, _ := strings.Cut(line, "=")
	return strings.TrimSpace(name)
}

// operationDetails is the text of the details pane. Expanded operations
// also show every referenced component schema, resolved.
func operationDetails(p httpclient.Palette, doc *model.Document, ref model.OperationRef, st session.OperationState) string {
	op := ref.Operation
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", p.Method(ref.Key.Method), p.Path(ref.Key.Path))
	if op.Summary != "" {
		fmt.Fprintln(&b, op.Summary)
	}
	if op.Deprecated {
		fmt.Fprintln(&b, "(deprecated)")
	}
	if op.Description != "" && op.Description != op.Summary {
		fmt.Fprintf(&b, "\n%s\n", op.Description)
	}

	if len(op.Parameters) > 0 {
		fmt.Fprintln(&b, "\nParameters:")
		for _, param := range op.Parameters {
			fmt.Fprintf(&b, "  %s [%s]", param.Name, param.In)
			if param.Required {
				b.WriteString(" required")
			}
			if hint := paramHint(doc, param); hint != "" {
				fmt.Fprintf(&b, "  %s", hint)
			}
			b.WriteString("\n")
		}
	}

	if op.RequestBody != nil {
		fmt.Fprintln(&b, "\nRequest body:")
		for ct := range op.RequestBody.Content.Keys() {
			fmt.Fprintf(&b, "  %s\n", ct)
		}
	}

	if op.Responses.Len() > 0 {
		fmt.Fprintln(&b, "\nResponses:")
		for code, resp := range op.Responses.All() {
			fmt.Fprintf(&b, "  %s %s\n", code, resp.Description)
		}
	}

	if !st.Expanded {
		fmt.Fprintln(&b, "\n(tab: show schemas)")
		return b.String()
	}

	names := schema.CollectReferenced(op, doc)
	if len(names) == 0 {
		fmt.Fprintln(&b, "\nNo referenced schemas.")
	}
	for _, name := range names {
		fmt.Fprintf(&b, "\nSchema %s:\n", name)
		r := schema.Resolve(&model.Reference{Ref: model.ComponentSchemaPrefix + name}, doc)
		_ = schema.Render(&b, r)
	}
	return b.String()
}

// bodySeed is the text handed to the external editor: the current body if
// one is set, else an example built from the first JSON request schema.
func bodySeed(doc *model.Document, op *model.Operation, st session.OperationState) string {
	var v any
	switch {
	case st.HasBody:
		v = st.Body
	case op.RequestBody != nil:
		for ct, mt := range op.RequestBody.Content.All() {
			if httpclient.IsJSON(ct) || v == nil {
				v = schema.Example(schema.Resolve(mt.Schema, doc))
			}
			if httpclient.IsJSON(ct) {
				break
			}
		}
	}
	if v == nil {
		return "{}\n"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}\n"
	}
	return string(b) + "\n"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
