package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/speakeasy-api/openapi/sequencedmap"
	"gopkg.in/yaml.v3"

	"oasplay/internal/apierr"
	"oasplay/internal/model"
)

const (
	// MaxNestingDepth bounds schema nesting while building the model. YAML
	// aliases can form cycles in the node graph; this stops the walk.
	MaxNestingDepth = 100

	// maxRefHops bounds chains of parameter/response/requestBody $refs.
	maxRefHops = 16

	definitionsPrefix = "#/definitions/"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// Parse builds a Document from YAML or JSON text. It fails with a
// *apierr.ParseError when the text is malformed or lacks info/paths; every
// other irregularity is tolerated and recorded in Document.Warnings.
func Parse(text []byte) (*model.Document, error) {
	text = bytes.TrimSpace(text)
	if len(text) == 0 {
		return nil, &apierr.ParseError{Message: "document is empty"}
	}

	// JSON indented with tabs is not valid YAML; normalize whitespace first.
	// json.Indent keeps key order. Text that is not JSON may still be YAML
	// in flow style, so it goes to the YAML decoder unchanged.
	if text[0] == '{' {
		var buf bytes.Buffer
		if err := json.Indent(&buf, text, "", "  "); err == nil {
			text = buf.Bytes()
		}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(text, &root); err != nil {
		perr := &apierr.ParseError{Message: "invalid YAML", Cause: err}
		if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}

	top := &root
	if top.Kind == yaml.DocumentNode {
		if len(top.Content) == 0 {
			return nil, &apierr.ParseError{Message: "document is empty"}
		}
		top = top.Content[0]
	}
	top = deref(top)
	if top.Kind != yaml.MappingNode {
		return nil, &apierr.ParseError{Line: top.Line, Column: top.Column, Message: "document root is not a mapping"}
	}

	p := &parser{root: top}
	return p.document()
}

type parser struct {
	root     *yaml.Node
	swagger  bool
	consumes []string
	produces []string
	warnings []string
}

func (p *parser) warnf(n *yaml.Node, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if n != nil && n.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", n.Line, msg)
	}
	p.warnings = append(p.warnings, msg)
}

func (p *parser) document() (*model.Document, error) {
	doc := &model.Document{
		Paths:      sequencedmap.New[string, *model.PathItem](),
		Components: model.Components{Schemas: sequencedmap.New[string, model.Schema]()},
	}

	if v := lookup(p.root, "swagger"); v != nil {
		p.swagger = true
		doc.Version = scalar(v)
		p.consumes = stringList(lookup(p.root, "consumes"))
		p.produces = stringList(lookup(p.root, "produces"))
	} else {
		doc.Version = scalar(lookup(p.root, "openapi"))
	}

	info := lookup(p.root, "info")
	if info == nil {
		return nil, &apierr.ParseError{Message: `missing mandatory field "info"`}
	}
	if info.Kind != yaml.MappingNode {
		return nil, &apierr.ParseError{Line: info.Line, Column: info.Column, Message: `"info" is not a mapping`}
	}
	doc.Info = model.Info{
		Title:       scalar(lookup(info, "title")),
		Description: scalar(lookup(info, "description")),
		Version:     scalar(lookup(info, "version")),
	}

	paths := lookup(p.root, "paths")
	if paths == nil {
		return nil, &apierr.ParseError{Message: `missing mandatory field "paths"`}
	}
	if paths.Kind != yaml.MappingNode && !isNull(paths) {
		return nil, &apierr.ParseError{Line: paths.Line, Column: paths.Column, Message: `"paths" is not a mapping`}
	}

	if err := p.components(doc); err != nil {
		return nil, err
	}
	doc.Servers = p.servers()

	var err error
	eachPair(paths, func(k, v *yaml.Node) bool {
		var item *model.PathItem
		item, err = p.pathItem(k.Value, v)
		if err != nil {
			return false
		}
		if item != nil && !doc.Paths.Has(k.Value) {
			doc.Paths.Set(k.Value, item)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	doc.Warnings = p.warnings
	return doc, nil
}

func (p *parser) components(doc *model.Document) error {
	var schemas *yaml.Node
	if p.swagger {
		schemas = lookup(p.root, "definitions")
	} else {
		schemas = lookup(lookup(p.root, "components"), "schemas")
	}

	var err error
	eachPair(schemas, func(k, v *yaml.Node) bool {
		var s model.Schema
		s, err = p.schema(v, 0)
		if err != nil {
			return false
		}
		if !doc.Components.Schemas.Has(k.Value) {
			doc.Components.Schemas.Set(k.Value, s)
		}
		return true
	})
	return err
}

func (p *parser) servers() []model.Server {
	if p.swagger {
		host := scalar(lookup(p.root, "host"))
		basePath := scalar(lookup(p.root, "basePath"))
		if host == "" {
			if basePath == "" {
				return nil
			}
			return []model.Server{{URL: basePath}}
		}
		scheme := "https"
		if schemes := stringList(lookup(p.root, "schemes")); len(schemes) > 0 {
			scheme = schemes[0]
		}
		return []model.Server{{URL: scheme + "://" + host + basePath}}
	}

	var out []model.Server
	list := lookup(p.root, "servers")
	if list == nil || list.Kind != yaml.SequenceNode {
		return out
	}
	for _, n := range list.Content {
		n = deref(n)
		if n.Kind != yaml.MappingNode {
			p.warnf(n, "server entry is not a mapping")
			continue
		}
		out = append(out, model.Server{
			URL:         scalar(lookup(n, "url")),
			Description: scalar(lookup(n, "description")),
		})
	}
	return out
}

func (p *parser) pathItem(path string, n *yaml.Node) (*model.PathItem, error) {
	n = deref(n)
	if n.Kind != yaml.MappingNode {
		p.warnf(n, "path %s is not a mapping", path)
		return nil, nil
	}
	if ref := lookup(n, "$ref"); ref != nil {
		p.warnf(ref, "path %s: path item $ref is not supported", path)
		return nil, nil
	}

	shared, err := p.parameters(lookup(n, "parameters"))
	if err != nil {
		return nil, err
	}

	item := &model.PathItem{Operations: sequencedmap.New[model.Method, *model.Operation]()}
	eachPair(n, func(k, v *yaml.Node) bool {
		method, ok := model.ParseMethod(k.Value)
		if !ok {
			return true
		}
		var op *model.Operation
		op, err = p.operation(v, shared)
		if err != nil {
			return false
		}
		if op != nil && !item.Operations.Has(method) {
			item.Operations.Set(method, op)
			p.checkPathParams(model.OperationKey{Method: method, Path: path}, op, k)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (p *parser) operation(n *yaml.Node, shared []paramNode) (*model.Operation, error) {
	n = deref(n)
	if n.Kind != yaml.MappingNode {
		p.warnf(n, "operation is not a mapping")
		return nil, nil
	}

	op := &model.Operation{
		Summary:     strings.TrimSpace(scalar(lookup(n, "summary"))),
		Description: strings.TrimSpace(scalar(lookup(n, "description"))),
		OperationID: strings.TrimSpace(scalar(lookup(n, "operationId"))),
		Tags:        stringList(lookup(n, "tags")),
		Deprecated:  scalar(lookup(n, "deprecated")) == "true",
		Responses:   sequencedmap.New[string, model.ResponseDef](),
	}

	own, err := p.parameters(lookup(n, "parameters"))
	if err != nil {
		return nil, err
	}
	params := mergeParams(shared, own)

	consumes, produces := p.consumes, p.produces
	if c := stringList(lookup(n, "consumes")); len(c) > 0 {
		consumes = c
	}
	if pr := stringList(lookup(n, "produces")); len(pr) > 0 {
		produces = pr
	}

	var form []paramNode
	for _, pn := range params {
		switch {
		case p.swagger && pn.in == "body":
			body, err := p.swaggerBody(pn, consumes)
			if err != nil {
				return nil, err
			}
			op.RequestBody = body
		case p.swagger && pn.in == "formData":
			form = append(form, pn)
		default:
			param, err := p.parameter(pn)
			if err != nil {
				return nil, err
			}
			if param != nil {
				op.Parameters = append(op.Parameters, *param)
			}
		}
	}
	if len(form) > 0 && op.RequestBody == nil {
		body, err := p.swaggerForm(form, consumes)
		if err != nil {
			return nil, err
		}
		op.RequestBody = body
	}

	if rb := lookup(n, "requestBody"); rb != nil && !p.swagger {
		body, err := p.requestBody(rb)
		if err != nil {
			return nil, err
		}
		op.RequestBody = body
	}

	var rerr error
	eachPair(lookup(n, "responses"), func(k, v *yaml.Node) bool {
		if strings.HasPrefix(k.Value, "x-") {
			return true
		}
		var resp *model.ResponseDef
		resp, rerr = p.response(v, produces)
		if rerr != nil {
			return false
		}
		if resp != nil && !op.Responses.Has(k.Value) {
			op.Responses.Set(k.Value, *resp)
		}
		return true
	})
	if rerr != nil {
		return nil, rerr
	}
	return op, nil
}

// paramNode is a parameter mapping after $ref resolution, keyed for merging.
type paramNode struct {
	name string
	in   string
	node *yaml.Node
}

func (p *parser) parameters(n *yaml.Node) ([]paramNode, error) {
	n = deref(n)
	if n == nil || isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		p.warnf(n, "parameters is not a list")
		return nil, nil
	}
	var out []paramNode
	for _, raw := range n.Content {
		pn := p.follow(raw)
		if pn == nil {
			continue
		}
		if pn.Kind != yaml.MappingNode {
			p.warnf(pn, "parameter is not a mapping")
			continue
		}
		name := scalar(lookup(pn, "name"))
		in := scalar(lookup(pn, "in"))
		if name == "" || in == "" {
			p.warnf(pn, "parameter without name or location skipped")
			continue
		}
		out = append(out, paramNode{name: name, in: in, node: pn})
	}
	return out, nil
}

// mergeParams applies operation-level parameters over path-level ones with
// the same name and location.
func mergeParams(shared, own []paramNode) []paramNode {
	out := make([]paramNode, 0, len(shared)+len(own))
	for _, s := range shared {
		overridden := false
		for _, o := range own {
			if o.name == s.name && o.in == s.in {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, s)
		}
	}
	return append(out, own...)
}

func (p *parser) parameter(pn paramNode) (*model.Parameter, error) {
	var in model.ParamLocation
	switch pn.in {
	case "path":
		in = model.ParamInPath
	case "query":
		in = model.ParamInQuery
	case "header":
		in = model.ParamInHeader
	case "cookie":
		in = model.ParamInCookie
	default:
		p.warnf(pn.node, "parameter %s: unsupported location %q", pn.name, pn.in)
		return nil, nil
	}

	param := &model.Parameter{
		Name:        pn.name,
		In:          in,
		Required:    scalar(lookup(pn.node, "required")) == "true",
		Description: strings.TrimSpace(scalar(lookup(pn.node, "description"))),
	}

	schemaNode := lookup(pn.node, "schema")
	if p.swagger && schemaNode == nil {
		// Swagger 2 puts type/format/items/enum on the parameter itself.
		schemaNode = pn.node
	}
	if schemaNode != nil {
		s, err := p.schema(schemaNode, 0)
		if err != nil {
			return nil, err
		}
		param.Schema = s
	}
	return param, nil
}

func (p *parser) requestBody(n *yaml.Node) (*model.RequestBodyDef, error) {
	n = p.follow(n)
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		p.warnf(n, "requestBody is not a mapping")
		return nil, nil
	}
	content, err := p.content(lookup(n, "content"))
	if err != nil {
		return nil, err
	}
	return &model.RequestBodyDef{
		Description: strings.TrimSpace(scalar(lookup(n, "description"))),
		Required:    scalar(lookup(n, "required")) == "true",
		Content:     content,
	}, nil
}

func (p *parser) swaggerBody(pn paramNode, consumes []string) (*model.RequestBodyDef, error) {
	s, err := p.schema(lookup(pn.node, "schema"), 0)
	if err != nil {
		return nil, err
	}
	return &model.RequestBodyDef{
		Description: strings.TrimSpace(scalar(lookup(pn.node, "description"))),
		Required:    scalar(lookup(pn.node, "required")) == "true",
		Content:     mediaTypes(consumes, "application/json", s),
	}, nil
}

func (p *parser) swaggerForm(form []paramNode, consumes []string) (*model.RequestBodyDef, error) {
	obj := &model.ObjectSchema{Type: "object", Properties: sequencedmap.New[string, model.Schema]()}
	required := false
	for _, pn := range form {
		s, err := p.schema(pn.node, 0)
		if err != nil {
			return nil, err
		}
		if !obj.Properties.Has(pn.name) {
			obj.Properties.Set(pn.name, s)
		}
		if scalar(lookup(pn.node, "required")) == "true" {
			obj.Required = append(obj.Required, pn.name)
			required = true
		}
	}
	return &model.RequestBodyDef{
		Required: required,
		Content:  mediaTypes(consumes, "application/x-www-form-urlencoded", obj),
	}, nil
}

func mediaTypes(types []string, fallback string, s model.Schema) *sequencedmap.Map[string, model.MediaType] {
	out := sequencedmap.New[string, model.MediaType]()
	if len(types) == 0 {
		types = []string{fallback}
	}
	for _, t := range types {
		if !out.Has(t) {
			out.Set(t, model.MediaType{Schema: s})
		}
	}
	return out
}

func (p *parser) response(n *yaml.Node, produces []string) (*model.ResponseDef, error) {
	n = p.follow(n)
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		p.warnf(n, "response is not a mapping")
		return nil, nil
	}
	resp := &model.ResponseDef{Description: strings.TrimSpace(scalar(lookup(n, "description")))}

	if p.swagger {
		if sn := lookup(n, "schema"); sn != nil {
			s, err := p.schema(sn, 0)
			if err != nil {
				return nil, err
			}
			resp.Content = mediaTypes(produces, "application/json", s)
		}
		return resp, nil
	}

	content, err := p.content(lookup(n, "content"))
	if err != nil {
		return nil, err
	}
	resp.Content = content
	return resp, nil
}

func (p *parser) content(n *yaml.Node) (*sequencedmap.Map[string, model.MediaType], error) {
	out := sequencedmap.New[string, model.MediaType]()
	var err error
	eachPair(n, func(k, v *yaml.Node) bool {
		v = deref(v)
		mt := model.MediaType{}
		if sn := lookup(v, "schema"); sn != nil {
			mt.Schema, err = p.schema(sn, 0)
			if err != nil {
				return false
			}
		}
		if !out.Has(k.Value) {
			out.Set(k.Value, mt)
		}
		return true
	})
	return out, err
}

// schema converts a schema node into the tagged model. References are kept
// as references; expansion is the resolver's job.
func (p *parser) schema(n *yaml.Node, depth int) (model.Schema, error) {
	if depth > MaxNestingDepth {
		return nil, &apierr.ParseError{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("schema nesting exceeds %d levels", MaxNestingDepth)}
	}
	n = deref(n)
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		// Boolean schemas and other shorthands are treated as untyped leaves.
		return &model.Primitive{}, nil
	}

	if ref := lookup(n, "$ref"); ref != nil {
		return &model.Reference{Ref: p.schemaRef(scalar(ref))}, nil
	}

	typ, nullable := schemaType(lookup(n, "type"))
	meta := model.Meta{
		Description: strings.TrimSpace(scalar(lookup(n, "description"))),
		Nullable:    nullable || scalar(lookup(n, "nullable")) == "true" || scalar(lookup(n, "x-nullable")) == "true",
	}
	if ex := lookup(n, "example"); ex != nil {
		meta.Example, meta.HasExample = decodeValue(ex), true
	}

	props, err := p.properties(lookup(n, "properties"), depth)
	if err != nil {
		return nil, err
	}
	required := stringList(lookup(n, "required"))

	itemsNode := lookup(n, "items")
	if typ == "array" || (typ == "" && itemsNode != nil) {
		arr := &model.ArraySchema{Meta: meta, Properties: props, Required: required}
		if itemsNode != nil {
			arr.Items, err = p.schema(itemsNode, depth+1)
			if err != nil {
				return nil, err
			}
		}
		return arr, nil
	}

	composition, members := "", []model.Schema(nil)
	for _, kw := range []string{"allOf", "anyOf", "oneOf"} {
		list := deref(lookup(n, kw))
		if list == nil || list.Kind != yaml.SequenceNode {
			continue
		}
		composition = kw
		for _, m := range list.Content {
			s, err := p.schema(m, depth+1)
			if err != nil {
				return nil, err
			}
			if s != nil {
				members = append(members, s)
			}
		}
		break
	}

	if props != nil || typ == "object" || composition != "" {
		return &model.ObjectSchema{
			Meta:        meta,
			Type:        typ,
			Properties:  props,
			Required:    required,
			Composition: composition,
			Members:     members,
		}, nil
	}

	prim := &model.Primitive{
		Meta:   meta,
		Type:   typ,
		Format: scalar(lookup(n, "format")),
	}
	if enum := deref(lookup(n, "enum")); enum != nil && enum.Kind == yaml.SequenceNode {
		for _, e := range enum.Content {
			prim.Enum = append(prim.Enum, decodeValue(e))
		}
	}
	if d := lookup(n, "default"); d != nil {
		prim.Default = decodeValue(d)
	}
	return prim, nil
}

func (p *parser) properties(n *yaml.Node, depth int) (*sequencedmap.Map[string, model.Schema], error) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, nil
	}
	out := sequencedmap.New[string, model.Schema]()
	var err error
	eachPair(n, func(k, v *yaml.Node) bool {
		var s model.Schema
		s, err = p.schema(v, depth+1)
		if err != nil {
			return false
		}
		if s != nil && !out.Has(k.Value) {
			out.Set(k.Value, s)
		}
		return true
	})
	return out, err
}

// schemaRef rewrites Swagger 2 definition refs into the component form.
func (p *parser) schemaRef(ref string) string {
	if strings.HasPrefix(ref, definitionsPrefix) {
		return model.ComponentSchemaPrefix + strings.TrimPrefix(ref, definitionsPrefix)
	}
	return ref
}

// follow dereferences local $refs on parameters, request bodies and
// responses. Schema refs are never followed here.
func (p *parser) follow(n *yaml.Node) *yaml.Node {
	n = deref(n)
	for hop := 0; n != nil && n.Kind == yaml.MappingNode; hop++ {
		refNode := lookup(n, "$ref")
		if refNode == nil {
			return n
		}
		ref := scalar(refNode)
		if hop >= maxRefHops {
			p.warnf(refNode, "$ref chain too long at %s", ref)
			return nil
		}
		target := p.pointer(ref)
		if target == nil {
			p.warnf(refNode, "unresolved $ref %s", ref)
			return nil
		}
		n = target
	}
	return n
}

// pointer evaluates a local JSON pointer ("#/a/b") against the document root.
func (p *parser) pointer(ref string) *yaml.Node {
	if !strings.HasPrefix(ref, "#/") {
		return nil
	}
	cur := p.root
	for _, tok := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		cur = deref(cur)
		switch {
		case cur == nil:
			return nil
		case cur.Kind == yaml.MappingNode:
			cur = lookup(cur, tok)
		case cur.Kind == yaml.SequenceNode:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(cur.Content) {
				return nil
			}
			cur = cur.Content[i]
		default:
			return nil
		}
	}
	return deref(cur)
}

func (p *parser) checkPathParams(key model.OperationKey, op *model.Operation, at *yaml.Node) {
	declared := map[string]bool{}
	for _, param := range op.ParamsIn(model.ParamInPath) {
		declared[param.Name] = true
		if !strings.Contains(key.Path, "{"+param.Name+"}") {
			p.warnf(at, "%s: path parameter %q has no {%s} placeholder", key, param.Name, param.Name)
		}
	}
	for _, name := range Placeholders(key.Path) {
		if !declared[name] {
			p.warnf(at, "%s: placeholder {%s} has no path parameter", key, name)
		}
	}
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders lists the {name} segments of a path template in order.
func Placeholders(path string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(path, -1) {
		out = append(out, m[1])
	}
	return out
}

func schemaType(n *yaml.Node) (typ string, nullable bool) {
	n = deref(n)
	if n == nil {
		return "", false
	}
	if n.Kind == yaml.SequenceNode {
		// OpenAPI 3.1 style: type: [string, "null"]
		for _, t := range n.Content {
			switch v := scalar(t); v {
			case "null":
				nullable = true
			default:
				if typ == "" {
					typ = v
				}
			}
		}
		return typ, nullable
	}
	return scalar(n), false
}

func deref(n *yaml.Node) *yaml.Node {
	for i := 0; n != nil && n.Kind == yaml.AliasNode && i < MaxNestingDepth; i++ {
		n = n.Alias
	}
	return n
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return deref(n.Content[i+1])
		}
	}
	return nil
}

func eachPair(n *yaml.Node, fn func(k, v *yaml.Node) bool) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if !fn(n.Content[i], n.Content[i+1]) {
			return
		}
	}
}

func scalar(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

func isNull(n *yaml.Node) bool {
	n = deref(n)
	return n != nil && n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func stringList(n *yaml.Node) []string {
	n = deref(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		if s := scalar(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodeValue turns an example/enum/default node into plain Go values that
// encoding/json can marshal.
func decodeValue(n *yaml.Node) any {
	var v any
	if err := n.Decode(&v); err != nil {
		return scalar(n)
	}
	return jsonValue(v)
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonValue(val)
		}
		return out
	default:
		return v
	}
}
