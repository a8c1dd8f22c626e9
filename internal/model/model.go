package model

import (
	"strings"

	"github.com/speakeasy-api/openapi/sequencedmap"
)

type ParamLocation string

type Method string

const (
	ParamInPath   ParamLocation = "path"
	ParamInQuery  ParamLocation = "query"
	ParamInHeader ParamLocation = "header"
	ParamInCookie ParamLocation = "cookie"

	MethodGet     Method = "get"
	MethodPut     Method = "put"
	MethodPost    Method = "post"
	MethodDelete  Method = "delete"
	MethodOptions Method = "options"
	MethodHead    Method = "head"
	MethodPatch   Method = "patch"
	MethodTrace   Method = "trace"
)

// Methods lists the operation keys a path item may carry, in the order
// OpenAPI documents them.
var Methods = []Method{MethodGet, MethodPut, MethodPost, MethodDelete, MethodOptions, MethodHead, MethodPatch, MethodTrace}

// ParseMethod accepts any casing; ok is false for keys that are not HTTP methods
// (path-level "parameters", "summary", extensions and so on).
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Upper is the wire form of the method.
func (m Method) Upper() string {
	return strings.ToUpper(string(m))
}

// SendsBody reports whether a request body is serialized for this method.
func (m Method) SendsBody() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch:
		return true
	default:
		return false
	}
}

// OperationKey identifies an operation inside one loaded document.
type OperationKey struct {
	Method Method
	Path   string
}

func (k OperationKey) String() string {
	return k.Method.Upper() + " " + k.Path
}

type Info struct {
	Title       string
	Description string
	Version     string
}

type Server struct {
	URL         string
	Description string
}

type Components struct {
	Schemas *sequencedmap.Map[string, Schema]
}

type Document struct {
	// Version is the value of the "openapi" or "swagger" field.
	Version    string
	Info       Info
	Servers    []Server
	Paths      *sequencedmap.Map[string, *PathItem]
	Components Components

	// Warnings collects non-fatal problems found while building the model.
	Warnings []string
}

// Schema looks up a component schema by name.
func (d *Document) Schema(name string) (Schema, bool) {
	if d == nil {
		return nil, false
	}
	return d.Components.Schemas.Get(name)
}

// Operation looks up an operation by key.
func (d *Document) Operation(key OperationKey) (*Operation, bool) {
	if d == nil {
		return nil, false
	}
	item, ok := d.Paths.Get(key.Path)
	if !ok || item == nil {
		return nil, false
	}
	return item.Operations.Get(key.Method)
}

// BaseURL returns servers[0].url, or "" when the document declares none.
func (d *Document) BaseURL() string {
	if d == nil || len(d.Servers) == 0 {
		return ""
	}
	return strings.TrimSpace(d.Servers[0].URL)
}

type PathItem struct {
	Operations *sequencedmap.Map[Method, *Operation]
}

type Operation struct {
	Summary     string
	Description string
	OperationID string
	Tags        []string
	Deprecated  bool

	Parameters  []Parameter
	RequestBody *RequestBodyDef
	Responses   *sequencedmap.Map[string, ResponseDef]
}

// ParamsIn returns the parameters declared for one location, in order.
func (o *Operation) ParamsIn(in ParamLocation) []Parameter {
	if o == nil {
		return nil
	}
	var out []Parameter
	for _, p := range o.Parameters {
		if p.In == in {
			out = append(out, p)
		}
	}
	return out
}

type Parameter struct {
	Name        string
	In          ParamLocation
	Required    bool
	Description string
	Schema      Schema
}

type MediaType struct {
	Schema Schema
}

type RequestBodyDef struct {
	Description string
	Required    bool
	Content     *sequencedmap.Map[string, MediaType]
}

type ResponseDef struct {
	Description string
	Content     *sequencedmap.Map[string, MediaType]
}

// OperationRef pairs an operation with its key for flat listings.
type OperationRef struct {
	Key       OperationKey
	Operation *Operation
}

// Operations flattens the document in path order, then method order as written.
func Operations(doc *Document) []OperationRef {
	var out []OperationRef
	if doc == nil {
		return out
	}
	for path, item := range doc.Paths.All() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations.All() {
			out = append(out, OperationRef{Key: OperationKey{Method: method, Path: path}, Operation: op})
		}
	}
	return out
}
