// Package schema expands component references into display trees and
// computes which component schemas an operation depends on.
package schema

import (
	"github.com/speakeasy-api/openapi/sequencedmap"

	"oasplay/internal/apierr"
	"oasplay/internal/model"
)

type Kind int

const (
	KindValue Kind = iota
	KindCircular
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindCircular:
		return "circular"
	case KindMissing:
		return "missing"
	default:
		return "value"
	}
}

// Resolved is a schema with every reachable component reference expanded.
// Circular and Missing nodes are markers: they carry Ref/Name and nothing
// else.
type Resolved struct {
	Kind Kind

	// Ref is the reference a marker stands for. Via is the reference that
	// was expanded to produce a value node.
	Ref  string
	Via  string
	Name string

	Type        string
	Format      string
	Description string
	Example     any
	HasExample  bool
	Nullable    bool
	Enum        []any
	Default     any

	Required    []string
	Properties  *sequencedmap.Map[string, *Resolved]
	Items       *Resolved
	Composition string
	Members     []*Resolved
}

// Err reports a marker node as a *apierr.ReferenceError; value nodes return nil.
func (r *Resolved) Err() error {
	if r == nil {
		return nil
	}
	switch r.Kind {
	case KindCircular:
		return &apierr.ReferenceError{Ref: r.Ref, Name: r.Name, IsCircular: true}
	case KindMissing:
		return &apierr.ReferenceError{Ref: r.Ref, Name: r.Name, IsMissing: true}
	default:
		return nil
	}
}

// IsRequired reports whether a property of this node is required.
func (r *Resolved) IsRequired(name string) bool {
	return r != nil && model.IsRequired(r.Required, name)
}

// ancestors is the chain of references expanded on the path from the root to
// the current node. It is never mutated, so sibling branches cannot observe
// each other's references.
type ancestors struct {
	ref    string
	parent *ancestors
}

func (a *ancestors) contains(ref string) bool {
	for ; a != nil; a = a.parent {
		if a.ref == ref {
			return true
		}
	}
	return false
}

func (a *ancestors) with(ref string) *ancestors {
	return &ancestors{ref: ref, parent: a}
}

// Resolve expands s against doc's component schemas. A reference that
// reappears among its own ancestors becomes a Circular marker; a reference
// to an absent component becomes a Missing marker. Results are not cached.
func Resolve(s model.Schema, doc *model.Document) *Resolved {
	return resolve(s, doc, nil)
}

func resolve(s model.Schema, doc *model.Document, seen *ancestors) *Resolved {
	switch v := s.(type) {
	case nil:
		return nil

	case *model.Reference:
		name, _ := model.RefName(v.Ref)
		if seen.contains(v.Ref) {
			return &Resolved{Kind: KindCircular, Ref: v.Ref, Name: name}
		}
		target, ok := doc.Schema(name)
		if !ok || target == nil {
			return &Resolved{Kind: KindMissing, Ref: v.Ref, Name: name}
		}
		out := resolve(target, doc, seen.with(v.Ref))
		if out == nil {
			out = &Resolved{}
		}
		if out.Kind == KindValue {
			out.Via = v.Ref
			out.Name = name
		}
		return out

	case *model.Primitive:
		out := leaf(v.Meta)
		out.Type = v.Type
		out.Format = v.Format
		out.Enum = v.Enum
		out.Default = v.Default
		return out

	case *model.ObjectSchema:
		out := leaf(v.Meta)
		out.Type = v.Type
		out.Required = v.Required
		out.Composition = v.Composition
		out.Properties = resolveProperties(v.Properties, doc, seen)
		for _, m := range v.Members {
			if r := resolve(m, doc, seen); r != nil {
				out.Members = append(out.Members, r)
			}
		}
		return out

	case *model.ArraySchema:
		out := leaf(v.Meta)
		out.Type = "array"
		out.Required = v.Required
		out.Items = resolve(v.Items, doc, seen)
		out.Properties = resolveProperties(v.Properties, doc, seen)
		return out

	default:
		return &Resolved{}
	}
}

func resolveProperties(props *sequencedmap.Map[string, model.Schema], doc *model.Document, seen *ancestors) *sequencedmap.Map[string, *Resolved] {
	if props == nil {
		return nil
	}
	out := sequencedmap.New[string, *Resolved]()
	for name, p := range props.All() {
		if r := resolve(p, doc, seen); r != nil {
			out.Set(name, r)
		}
	}
	return out
}

func leaf(m model.Meta) *Resolved {
	return &Resolved{
		Description: m.Description,
		Example:     m.Example,
		HasExample:  m.HasExample,
		Nullable:    m.Nullable,
	}
}
