package schema

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/speakeasy-api/openapi/sequencedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oasplay/internal/apierr"
	"oasplay/internal/model"
	"oasplay/internal/openapi"
)

func parse(t *testing.T, text string) *model.Document {
	t.Helper()
	doc, err := openapi.Parse([]byte(text))
	require.NoError(t, err)
	return doc
}

func ref(name string) model.Schema {
	return &model.Reference{Ref: model.ComponentSchemaPrefix + name}
}

const graph = `
openapi: 3.0.0
info: {title: graph, version: "1"}
paths:
  /nodes:
    post:
      requestBody:
        content:
          application/json:
            schema: {$ref: '#/components/schemas/A'}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: {$ref: '#/components/schemas/Node'}
  /plain:
    get:
      responses:
        "200": {description: ok}
components:
  schemas:
    A:
      type: object
      properties:
        b: {$ref: '#/components/schemas/B'}
    B:
      type: object
      properties:
        a: {$ref: '#/components/schemas/A'}
        label: {type: string}
    Node:
      type: object
      required: [value]
      properties:
        value: {type: integer, example: 7}
        next: {$ref: '#/components/schemas/Node'}
        children:
          type: array
          items: {$ref: '#/components/schemas/Node'}
    Pair:
      type: object
      properties:
        left: {$ref: '#/components/schemas/Leaf'}
        right: {$ref: '#/components/schemas/Leaf'}
    Leaf:
      type: string
`

func TestResolve_SelfReference(t *testing.T) {
	doc := parse(t, graph)

	r := Resolve(ref("Node"), doc)
	require.Equal(t, KindValue, r.Kind)
	assert.Equal(t, "Node", r.Name)
	assert.Equal(t, "#/components/schemas/Node", r.Via)

	next, ok := r.Properties.Get("next")
	require.True(t, ok)
	assert.Equal(t, KindCircular, next.Kind)
	assert.Equal(t, "#/components/schemas/Node", next.Ref)

	children, _ := r.Properties.Get("children")
	require.NotNil(t, children.Items)
	assert.Equal(t, KindCircular, children.Items.Kind)

	err := next.Err()
	assert.True(t, errors.Is(err, apierr.ErrCircularReference))
	assert.Nil(t, r.Err())
}

func TestResolve_MutualRecursion(t *testing.T) {
	doc := parse(t, graph)

	r := Resolve(ref("A"), doc)
	b, _ := r.Properties.Get("b")
	require.Equal(t, KindValue, b.Kind)
	assert.Equal(t, "B", b.Name)

	a, _ := b.Properties.Get("a")
	assert.Equal(t, KindCircular, a.Kind)
	assert.Equal(t, "#/components/schemas/A", a.Ref)

	label, _ := b.Properties.Get("label")
	assert.Equal(t, "string", label.Type)
}

func TestResolve_SiblingsAreIsolated(t *testing.T) {
	doc := parse(t, graph)

	r := Resolve(ref("Pair"), doc)
	left, _ := r.Properties.Get("left")
	right, _ := r.Properties.Get("right")
	assert.Equal(t, KindValue, left.Kind)
	assert.Equal(t, KindValue, right.Kind, "a ref seen in one branch must not mark its sibling circular")
	assert.Equal(t, "string", right.Type)
}

func TestResolve_MissingSchema(t *testing.T) {
	doc := parse(t, graph)

	obj := &model.ObjectSchema{Type: "object", Properties: sequencedmap.New[string, model.Schema]()}
	obj.Properties.Set("ghost", ref("Ghost"))

	r := Resolve(obj, doc)
	ghost, ok := r.Properties.Get("ghost")
	require.True(t, ok)
	assert.Equal(t, KindMissing, ghost.Kind)
	assert.Equal(t, "Ghost", ghost.Name)
	assert.True(t, errors.Is(ghost.Err(), apierr.ErrMissingSchema))
}

func TestResolve_NilAndLeaf(t *testing.T) {
	assert.Nil(t, Resolve(nil, nil))

	r := Resolve(&model.Primitive{Type: "integer", Format: "int64"}, nil)
	assert.Equal(t, "integer", r.Type)
	assert.Equal(t, "int64", r.Format)
}

func TestResolve_NotMemoized(t *testing.T) {
	doc := parse(t, graph)
	first := Resolve(ref("Node"), doc)
	second := Resolve(ref("Node"), doc)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.String(), second.String())
}

func TestCollectReferenced(t *testing.T) {
	doc := parse(t, graph)

	op, ok := doc.Operation(model.OperationKey{Method: model.MethodPost, Path: "/nodes"})
	require.True(t, ok)
	assert.Equal(t, []string{"A", "Node", "B"}, CollectReferenced(op, doc))

	plain, ok := doc.Operation(model.OperationKey{Method: model.MethodGet, Path: "/plain"})
	require.True(t, ok)
	assert.Empty(t, CollectReferenced(plain, doc))
	assert.Nil(t, CollectReferenced(nil, doc))
}

func TestCollectReferenced_ReportsMissing(t *testing.T) {
	doc := parse(t, `
openapi: 3.0.0
info: {title: x}
paths:
  /a:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  inner:
                    type: array
                    items: {$ref: '#/components/schemas/Ghost'}
`)
	op, _ := doc.Operation(model.OperationKey{Method: model.MethodGet, Path: "/a"})
	assert.Equal(t, []string{"Ghost"}, CollectReferenced(op, doc))
}

func TestRender(t *testing.T) {
	doc := parse(t, graph)

	var b strings.Builder
	require.NoError(t, Render(&b, Resolve(ref("Node"), doc)))
	out := b.String()

	assert.True(t, strings.HasPrefix(out, "Node object\n"), out)
	assert.Contains(t, out, "  value*: integer, example 7\n")
	assert.Contains(t, out, "  next: <circular reference: #/components/schemas/Node>\n")
	assert.Contains(t, out, "    items: <circular reference: #/components/schemas/Node>\n")

	missing := Resolve(ref("Ghost"), doc)
	assert.Equal(t, "<schema not found: Ghost>\n", missing.String())
}

func TestExample(t *testing.T) {
	doc := parse(t, graph)

	got := Example(Resolve(ref("Node"), doc))
	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7, m["value"])
	assert.Nil(t, m["next"])
	assert.Equal(t, []any{}, m["children"])

	b := Example(Resolve(ref("B"), doc)).(map[string]any)
	assert.Equal(t, []string{"a", "label"}, sortedKeys(b))
	assert.Equal(t, "", b["label"])

	assert.Nil(t, Example(nil))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
