package model

import (
	"net/url"
	"strings"

	"github.com/speakeasy-api/openapi/sequencedmap"
)

// ComponentSchemaPrefix is the only $ref form the resolver expands.
const ComponentSchemaPrefix = "#/components/schemas/"

// Schema is one of Reference, Primitive, ObjectSchema or ArraySchema.
// Traversals switch over the concrete type; the unexported method keeps the
// set closed.
type Schema interface {
	schemaNode()
}

// Meta holds the annotations every value schema may carry.
type Meta struct {
	Description string
	Example     any
	HasExample  bool
	Nullable    bool
}

// Reference points at a named component schema.
type Reference struct {
	Ref string
}

// Primitive is a value schema without properties or items (string, integer,
// number, boolean, or an untyped leaf).
type Primitive struct {
	Meta
	Type    string
	Format  string
	Enum    []any
	Default any
}

// ObjectSchema has named properties. Members holds the schemas listed under
// allOf/anyOf/oneOf; they are walked like properties and never merged.
type ObjectSchema struct {
	Meta
	Type        string
	Properties  *sequencedmap.Map[string, Schema]
	Required    []string
	Composition string
	Members     []Schema
}

// ArraySchema has an items schema. Malformed documents sometimes also give an
// array properties; those are kept and walked too.
type ArraySchema struct {
	Meta
	Items      Schema
	Properties *sequencedmap.Map[string, Schema]
	Required   []string
}

func (*Reference) schemaNode()    {}
func (*Primitive) schemaNode()    {}
func (*ObjectSchema) schemaNode() {}
func (*ArraySchema) schemaNode()  {}

// IsRequired reports whether name is listed in required.
func IsRequired(required []string, name string) bool {
	for _, r := range required {
		if r == name {
			return true
		}
	}
	return false
}

// RefName extracts the component name from a local schema reference. ok is
// false for refs outside #/components/schemas/ (external files, other
// sections); callers then treat the whole ref as the name.
func RefName(ref string) (string, bool) {
	if !strings.HasPrefix(ref, ComponentSchemaPrefix) {
		return ref, false
	}
	name := strings.TrimPrefix(ref, ComponentSchemaPrefix)
	if name == "" || strings.Contains(name, "/") {
		return ref, false
	}
	return unescapePointer(name), true
}

// unescapePointer decodes a JSON pointer token (RFC 6901) plus the
// percent-encoding some generators apply to names.
func unescapePointer(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	s = strings.ReplaceAll(s, "~0", "~")
	if strings.Contains(s, "%") {
		if dec, err := url.PathUnescape(s); err == nil {
			return dec
		}
	}
	return s
}
