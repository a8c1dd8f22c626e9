package openapi

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oasplay/internal/apierr"
	"oasplay/internal/model"
)

const petstore = `
openapi: 3.0.3
info:
  title: Petstore
  version: 1.2.0
servers:
  - url: https://api.example.com/v1
paths:
  /pets/{id}:
    parameters:
      - name: id
        in: path
        required: true
        schema: {type: integer}
      - name: trace
        in: header
        schema: {type: string}
    get:
      summary: Get a pet
      parameters:
        - name: trace
          in: header
          description: overridden
          schema: {type: string}
        - name: fields
          in: query
          schema: {type: string}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
        "404":
          $ref: '#/components/responses/NotFound'
    delete:
      responses:
        "204":
          description: gone
  /pets:
    post:
      requestBody:
        $ref: '#/components/requestBodies/NewPet'
      responses:
        200:
          description: created
components:
  responses:
    NotFound:
      description: missing
  requestBodies:
    NewPet:
      required: true
      content:
        application/json:
          schema:
            $ref: '#/components/schemas/Pet'
  schemas:
    Pet:
      type: object
      required: [name]
      properties:
        name: {type: string, example: Rex}
        tags:
          type: array
          items: {$ref: '#/components/schemas/Tag'}
        kind:
          type: string
          enum: [dog, cat]
    Tag:
      type: object
      properties:
        label: {type: string}
`

func TestParse_OpenAPI3(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	assert.Equal(t, "3.0.3", doc.Version)
	assert.Equal(t, "Petstore", doc.Info.Title)
	assert.Equal(t, "1.2.0", doc.Info.Version)
	assert.Equal(t, "https://api.example.com/v1", doc.BaseURL())
	assert.Empty(t, doc.Warnings)

	assert.Equal(t, []string{"/pets/{id}", "/pets"}, slices.Collect(doc.Paths.Keys()))
	assert.Equal(t, []string{"Pet", "Tag"}, slices.Collect(doc.Components.Schemas.Keys()))

	item, ok := doc.Paths.Get("/pets/{id}")
	require.True(t, ok)
	assert.Equal(t, []model.Method{model.MethodGet, model.MethodDelete}, slices.Collect(item.Operations.Keys()))

	op, ok := doc.Operation(model.OperationKey{Method: model.MethodGet, Path: "/pets/{id}"})
	require.True(t, ok)
	assert.Equal(t, "Get a pet", op.Summary)

	require.Len(t, op.Parameters, 3)
	assert.Equal(t, "id", op.Parameters[0].Name)
	assert.True(t, op.Parameters[0].Required)
	assert.Equal(t, "trace", op.Parameters[1].Name)
	assert.Equal(t, "overridden", op.Parameters[1].Description)
	assert.Equal(t, model.ParamInQuery, op.Parameters[2].In)

	ok200, ok := op.Responses.Get("200")
	require.True(t, ok)
	mt, ok := ok200.Content.Get("application/json")
	require.True(t, ok)
	assert.Equal(t, &model.Reference{Ref: "#/components/schemas/Pet"}, mt.Schema)

	notFound, ok := op.Responses.Get("404")
	require.True(t, ok)
	assert.Equal(t, "missing", notFound.Description)

	post, ok := doc.Operation(model.OperationKey{Method: model.MethodPost, Path: "/pets"})
	require.True(t, ok)
	require.NotNil(t, post.RequestBody)
	assert.True(t, post.RequestBody.Required)
	_, ok = post.Responses.Get("200")
	assert.True(t, ok, "integer response codes are kept as strings")
}

func TestParse_SchemaVariants(t *testing.T) {
	doc, err := Parse([]byte(petstore))
	require.NoError(t, err)

	s, ok := doc.Schema("Pet")
	require.True(t, ok)
	pet, ok := s.(*model.ObjectSchema)
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, pet.Required)
	assert.Equal(t, []string{"name", "tags", "kind"}, slices.Collect(pet.Properties.Keys()))

	name, _ := pet.Properties.Get("name")
	prim, ok := name.(*model.Primitive)
	require.True(t, ok)
	assert.Equal(t, "string", prim.Type)
	assert.True(t, prim.HasExample)
	assert.Equal(t, "Rex", prim.Example)

	tags, _ := pet.Properties.Get("tags")
	arr, ok := tags.(*model.ArraySchema)
	require.True(t, ok)
	assert.Equal(t, &model.Reference{Ref: "#/components/schemas/Tag"}, arr.Items)

	kind, _ := pet.Properties.Get("kind")
	assert.Equal(t, []any{"dog", "cat"}, kind.(*model.Primitive).Enum)
}

func TestParse_JSONWithTabs(t *testing.T) {
	text := "{\n\t\"openapi\": \"3.0.0\",\n\t\"info\": {\"title\": \"T\", \"version\": \"1\"},\n\t\"paths\": {\n\t\t\"/b\": {\"get\": {}},\n\t\t\"/a\": {\"get\": {}}\n\t}\n}"
	doc, err := Parse([]byte(text))
	require.NoError(t, err)
	assert.Equal(t, []string{"/b", "/a"}, slices.Collect(doc.Paths.Keys()))
}

func TestParse_FlowStyleYAML(t *testing.T) {
	doc, err := Parse([]byte(`{openapi: 3.0.0, info: {title: Flight Search API, version: "2.1"}, paths: {/flights: {get: {summary: Search}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "Flight Search API", doc.Info.Title)
	assert.Equal(t, "2.1", doc.Info.Version)
	assert.Equal(t, []string{"/flights"}, slices.Collect(doc.Paths.Keys()))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMsg string
	}{
		{name: "empty", text: "   ", wantMsg: "document is empty"},
		{name: "malformed yaml", text: "openapi: 3.0.0\ninfo: [unclosed\n", wantMsg: "invalid YAML"},
		{name: "malformed json", text: `{"openapi": "3.0.0", "info": [}`, wantMsg: "invalid YAML"},
		{name: "scalar root", text: "just a string", wantMsg: "document root is not a mapping"},
		{name: "missing info", text: "openapi: 3.0.0\npaths: {}\n", wantMsg: `missing mandatory field "info"`},
		{name: "missing paths", text: "openapi: 3.0.0\ninfo: {title: x}\n", wantMsg: `missing mandatory field "paths"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.text))
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.Is(err, apierr.ErrParse))

			var perr *apierr.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantMsg, perr.Message)
		})
	}
}

func TestParse_YAMLErrorLine(t *testing.T) {
	_, err := Parse([]byte("openapi: 3.0.0\ninfo:\n  title: x\n  bad: [\npaths: {}\n"))
	var perr *apierr.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Positive(t, perr.Line)
}

func TestParse_PathParameterWarnings(t *testing.T) {
	text := `
openapi: 3.0.0
info: {title: x, version: "1"}
paths:
  /users/{userId}:
    get:
      parameters:
        - {name: id, in: path, required: true}
`
	doc, err := Parse([]byte(text))
	require.NoError(t, err)
	require.Len(t, doc.Warnings, 2)
	assert.Contains(t, doc.Warnings[0], `path parameter "id" has no {id} placeholder`)
	assert.Contains(t, doc.Warnings[1], "placeholder {userId} has no path parameter")
}

func TestParse_TolerantOfBadShapes(t *testing.T) {
	text := `
openapi: 3.0.0
info: {title: x}
paths:
  /a: nope
  /b:
    get:
      parameters:
        - $ref: '#/components/parameters/Missing'
        - {name: q, in: query}
      responses:
        default: {description: any}
`
	doc, err := Parse([]byte(text))
	require.NoError(t, err)

	assert.False(t, doc.Paths.Has("/a"))
	op, ok := doc.Operation(model.OperationKey{Method: model.MethodGet, Path: "/b"})
	require.True(t, ok)
	require.Len(t, op.Parameters, 1)
	assert.Equal(t, "q", op.Parameters[0].Name)
	assert.Len(t, doc.Warnings, 2)
}

func TestParse_Swagger2(t *testing.T) {
	text := `
swagger: "2.0"
info: {title: Legacy, version: "0.1"}
host: legacy.example.com
basePath: /api
schemes: [http]
consumes: [application/json]
paths:
  /items/{id}:
    put:
      parameters:
        - {name: id, in: path, required: true, type: string}
        - name: body
          in: body
          required: true
          schema: {$ref: '#/definitions/Item'}
      responses:
        200:
          description: ok
          schema:
            type: array
            items: {$ref: '#/definitions/Item'}
  /upload:
    post:
      consumes: [multipart/form-data]
      parameters:
        - {name: file, in: formData, type: file, required: true}
        - {name: note, in: formData, type: string}
      responses:
        204: {description: done}
definitions:
  Item:
    type: object
    properties:
      id: {type: string}
`
	doc, err := Parse([]byte(text))
	require.NoError(t, err)

	assert.Equal(t, "2.0", doc.Version)
	assert.Equal(t, "http://legacy.example.com/api", doc.BaseURL())
	assert.True(t, doc.Components.Schemas.Has("Item"))

	put, ok := doc.Operation(model.OperationKey{Method: model.MethodPut, Path: "/items/{id}"})
	require.True(t, ok)
	require.Len(t, put.Parameters, 1)
	assert.Equal(t, "string", put.Parameters[0].Schema.(*model.Primitive).Type)

	require.NotNil(t, put.RequestBody)
	assert.True(t, put.RequestBody.Required)
	mt, ok := put.RequestBody.Content.Get("application/json")
	require.True(t, ok)
	assert.Equal(t, &model.Reference{Ref: "#/components/schemas/Item"}, mt.Schema)

	resp, ok := put.Responses.Get("200")
	require.True(t, ok)
	rmt, ok := resp.Content.Get("application/json")
	require.True(t, ok)
	arr, ok := rmt.Schema.(*model.ArraySchema)
	require.True(t, ok)
	assert.Equal(t, &model.Reference{Ref: "#/components/schemas/Item"}, arr.Items)

	upload, ok := doc.Operation(model.OperationKey{Method: model.MethodPost, Path: "/upload"})
	require.True(t, ok)
	require.NotNil(t, upload.RequestBody)
	form, ok := upload.RequestBody.Content.Get("multipart/form-data")
	require.True(t, ok)
	obj := form.Schema.(*model.ObjectSchema)
	assert.Equal(t, []string{"file", "note"}, slices.Collect(obj.Properties.Keys()))
	assert.Equal(t, []string{"file"}, obj.Required)
}

func TestParse_AliasesFollowed(t *testing.T) {
	text := `
openapi: 3.0.0
info: {title: x}
x-shared: &id
  name: id
  in: path
  required: true
paths:
  /a/{id}:
    get:
      parameters: [*id]
`
	doc, err := Parse([]byte(text))
	require.NoError(t, err)
	op, ok := doc.Operation(model.OperationKey{Method: model.MethodGet, Path: "/a/{id}"})
	require.True(t, ok)
	require.Len(t, op.Parameters, 1)
	assert.Equal(t, "id", op.Parameters[0].Name)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"org", "repo"}, Placeholders("/repos/{org}/{repo}/issues"))
	assert.Empty(t, Placeholders("/plain"))
}
