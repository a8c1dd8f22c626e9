package schema

import (
	"oasplay/internal/model"
)

// CollectReferenced returns the names of every component schema op depends
// on: those referenced from its request body and response content, and,
// transitively, those their definitions reference. Names are listed in the
// order they are first discovered. Names with no matching component are
// still listed; Resolve reports them as missing.
func CollectReferenced(op *model.Operation, doc *model.Document) []string {
	if op == nil {
		return nil
	}

	var queue []string
	push := func(ref string) {
		name, _ := model.RefName(ref)
		queue = append(queue, name)
	}

	if op.RequestBody != nil {
		for mt := range op.RequestBody.Content.Values() {
			walkRefs(mt.Schema, push)
		}
	}
	for resp := range op.Responses.Values() {
		for mt := range resp.Content.Values() {
			walkRefs(mt.Schema, push)
		}
	}

	var out []string
	seen := map[string]bool{}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)

		if def, ok := doc.Schema(name); ok {
			walkRefs(def, push)
		}
	}
	return out
}

// walkRefs calls fn for every $ref inside s without following it.
func walkRefs(s model.Schema, fn func(ref string)) {
	switch v := s.(type) {
	case *model.Reference:
		fn(v.Ref)
	case *model.ObjectSchema:
		for p := range v.Properties.Values() {
			walkRefs(p, fn)
		}
		for _, m := range v.Members {
			walkRefs(m, fn)
		}
	case *model.ArraySchema:
		walkRefs(v.Items, fn)
		for p := range v.Properties.Values() {
			walkRefs(p, fn)
		}
	}
}
