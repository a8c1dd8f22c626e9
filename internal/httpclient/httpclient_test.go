package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oasplay/internal/model"
)

func testOperation() *model.Operation {
	return &model.Operation{Parameters: []model.Parameter{
		{Name: "id", In: model.ParamInPath, Required: true},
		{Name: "q", In: model.ParamInQuery},
		{Name: "page", In: model.ParamInQuery},
		{Name: "empty", In: model.ParamInQuery},
		{Name: "X-Trace", In: model.ParamInHeader},
		{Name: "session", In: model.ParamInCookie},
		{Name: "theme", In: model.ParamInCookie},
	}}
}

func TestBuild(t *testing.T) {
	op := testOperation()

	t.Run("path and query", func(t *testing.T) {
		b := Build("/users/{id}", op, map[string]string{"id": "42", "q": "a b&c", "page": "2", "empty": ""}, nil)
		assert.Equal(t, "/users/42?q=a+b%26c&page=2", b.Path)
		assert.Empty(t, b.Unfilled)
	})

	t.Run("empty path value substituted literally", func(t *testing.T) {
		b := Build("/users/{id}/posts", op, map[string]string{"id": ""}, nil)
		assert.Equal(t, "/users//posts", b.Path)
	})

	t.Run("path value escaped", func(t *testing.T) {
		b := Build("/users/{id}", op, map[string]string{"id": "a/b c"}, nil)
		assert.Equal(t, "/users/a%2Fb%20c", b.Path)
	})

	t.Run("unfilled placeholders reported", func(t *testing.T) {
		b := Build("/users/{id}/{other}", op, map[string]string{}, nil)
		assert.Equal(t, "/users/{id}/{other}", b.Path)
		assert.Equal(t, []string{"id", "other"}, b.Unfilled)
	})

	t.Run("every occurrence replaced", func(t *testing.T) {
		b := Build("/{id}/mirror/{id}", op, map[string]string{"id": "7"}, nil)
		assert.Equal(t, "/7/mirror/7", b.Path)
	})

	t.Run("headers and cookies", func(t *testing.T) {
		b := Build("/x", op, map[string]string{"X-Trace": "abc", "session": "s1", "theme": "dark"}, nil)
		assert.Equal(t, map[string]string{"X-Trace": "abc", "Cookie": "session=s1; theme=dark"}, b.Headers)
	})

	t.Run("body passed through", func(t *testing.T) {
		body := map[string]any{"name": "Rex"}
		b := Build("/x", op, nil, body)
		assert.Equal(t, body, b.Body)
	})
}

func newExecutor() *Executor {
	return NewExecutor(5*time.Second, zerolog.Nop())
}

func TestExecute_JSONResponse(t *testing.T) {
	var gotMethod, gotCT, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "/api/pets/1", r.URL.Path)

		w.Header().Set("Content-Type", "application/problem+json")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1, "tags": ["x"]}`))
	}))
	defer srv.Close()

	res := newExecutor().Execute(context.Background(), Request{
		BaseURL: srv.URL + "/api/",
		Path:    "/pets/1",
		Method:  model.MethodPost,
		Body:    map[string]any{"name": "Rex"},
		Headers: map[string]string{"Authorization": "Bearer t"},
	})

	ok, isSuccess := res.(Success)
	require.True(t, isSuccess, "%#v", res)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.JSONEq(t, `{"name":"Rex"}`, string(gotBody))

	assert.Equal(t, 201, ok.Status)
	assert.Equal(t, "Created", ok.StatusText)
	assert.Equal(t, "a, b", ok.Headers["x-multi"])
	assert.Equal(t, "application/problem+json", ok.Headers["content-type"])
	assert.Equal(t, map[string]any{"id": float64(1), "tags": []any{"x"}}, ok.Body)
}

func TestExecute_GetSendsNoBody(t *testing.T) {
	var gotLen int64 = -2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotLen = int64(len(b))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	res := newExecutor().Execute(context.Background(), Request{
		BaseURL: srv.URL,
		Path:    "/ping",
		Method:  model.MethodGet,
		Body:    map[string]any{"ignored": true},
	})

	ok, isSuccess := res.(Success)
	require.True(t, isSuccess)
	assert.Zero(t, gotLen)
	assert.Equal(t, "pong", ok.Body)
}

func TestExecute_ContentTypeOverride(t *testing.T) {
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	newExecutor().Execute(context.Background(), Request{
		BaseURL: srv.URL,
		Method:  model.MethodPut,
		Headers: map[string]string{"content-type": "application/merge-patch+json"},
	})
	assert.Equal(t, "application/merge-patch+json", gotCT)
}

func TestExecute_InvalidJSONFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	res := newExecutor().Execute(context.Background(), Request{BaseURL: srv.URL, Path: "/", Method: model.MethodGet})
	ok, isSuccess := res.(Success)
	require.True(t, isSuccess)
	assert.Equal(t, 500, ok.Status)
	assert.Equal(t, "not json", ok.Body)
}

func TestExecute_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	res := newExecutor().Execute(context.Background(), Request{BaseURL: addr, Path: "/x", Method: model.MethodGet})
	fail, isFailure := res.(Failure)
	require.True(t, isFailure)
	assert.Equal(t, StatusNetworkError, fail.Status)
	assert.NotEmpty(t, fail.Message)
	assert.Empty(t, fail.Headers)
}

func TestExecute_BadURL(t *testing.T) {
	res := newExecutor().Execute(context.Background(), Request{BaseURL: "http://[::1", Path: "/x", Method: model.MethodGet})
	_, isFailure := res.(Failure)
	assert.True(t, isFailure)
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ex := NewExecutor(50*time.Millisecond, zerolog.Nop())
	res := ex.Execute(context.Background(), Request{BaseURL: srv.URL, Method: model.MethodGet})
	fail, isFailure := res.(Failure)
	require.True(t, isFailure)
	assert.Equal(t, StatusNetworkError, fail.Status)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://api.example.com/v1", "/pets", "https://api.example.com/v1/pets"},
		{"https://api.example.com/v1/", "pets", "https://api.example.com/v1/pets"},
		{"", "/pets", "/pets"},
		{"https://api.example.com", "https://other.example.com/x", "https://other.example.com/x"},
		{"https://api.example.com", "", "https://api.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinURL(tt.base, tt.path))
	}
}

func TestIsJSON(t *testing.T) {
	assert.True(t, IsJSON("application/json"))
	assert.True(t, IsJSON("application/vnd.api+json; charset=utf-8"))
	assert.False(t, IsJSON("text/html"))
	assert.False(t, IsJSON(""))
}

func TestSnippet(t *testing.T) {
	got := Snippet(Request{
		BaseURL: "https://api.example.com",
		Path:    "/pets?q=it's",
		Method:  model.MethodPost,
		Body:    map[string]any{"name": "Rex"},
		Headers: map[string]string{"Authorization": "Bearer t"},
	})
	want := strings.Join([]string{
		`curl -X POST 'https://api.example.com/pets?q=it'\''s'`,
		`-H 'Authorization: Bearer t'`,
		`-H 'Content-Type: application/json'`,
		`-d '{"name":"Rex"}'`,
	}, " \\\n  ")
	assert.Equal(t, want, got)

	get := Snippet(Request{Path: "/ping", Method: model.MethodGet, Body: "x"})
	assert.NotContains(t, get, "-d ")
}

func TestPalette_Plain(t *testing.T) {
	p := NewPalette(false)
	assert.Equal(t, "GET    ", p.Method(model.MethodGet))
	assert.Equal(t, "404 Not Found", p.Status(404, "Not Found"))
	assert.Equal(t, "/a/{id}", p.Path("/a/{id}"))

	body := p.Body(map[string]any{"b": []any{true, nil}, "a": 1.5})
	var round any
	require.NoError(t, json.Unmarshal([]byte(body), &round))
	assert.True(t, strings.Index(body, `"a"`) < strings.Index(body, `"b"`))

	out := p.Result(Failure{Status: StatusNetworkError, Message: "dial tcp: refused"})
	assert.Equal(t, "NetworkError\ndial tcp: refused", out)
}

func TestExecute_TruncatesLargeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.URL.Query().Get("body")))
	}))
	defer srv.Close()

	ex := newExecutor()
	ex.maxBody = 4

	res := ex.Execute(context.Background(), Request{BaseURL: srv.URL, Path: "/?body=abcdefgh", Method: model.MethodGet})
	ok, isSuccess := res.(Success)
	require.True(t, isSuccess)
	assert.Equal(t, "abcd", ok.Body)
	assert.True(t, ok.Truncated)
	assert.Contains(t, NewPalette(false).Result(ok), "(body truncated)")

	res = ex.Execute(context.Background(), Request{BaseURL: srv.URL, Path: "/?body=abcd", Method: model.MethodGet})
	ok = res.(Success)
	assert.Equal(t, "abcd", ok.Body)
	assert.False(t, ok.Truncated)
}
