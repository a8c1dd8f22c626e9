package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oasplay/internal/model"
)

// StatusNetworkError is the status of every Failure.
const StatusNetworkError = "NetworkError"

// DefaultTimeout applies when an Executor is built with a zero timeout.
const DefaultTimeout = 30 * time.Second

// maxResponseBody bounds how much of a response is kept for display.
const maxResponseBody = 8 * 1024 * 1024

type Request struct {
	BaseURL string
	Path    string
	Method  model.Method
	Body    any
	Headers map[string]string
}

// ExecutionResult is either Success or Failure.
type ExecutionResult interface {
	executionResult()
}

// Success is any completed HTTP exchange, whatever its status code. Body is
// the decoded JSON value for JSON responses and the raw text otherwise.
type Success struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       any
	Elapsed    time.Duration

	// Truncated is set when the body exceeded the display limit and was cut.
	Truncated bool
}

// Failure means no HTTP response was obtained.
type Failure struct {
	Status  string
	Message string
	Headers map[string]string
}

func (Success) executionResult() {}
func (Failure) executionResult() {}

type Executor struct {
	client  *http.Client
	log     zerolog.Logger
	maxBody int64
}

func NewExecutor(timeout time.Duration, log zerolog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{client: &http.Client{Timeout: timeout}, log: log, maxBody: maxResponseBody}
}

// Execute performs req and normalizes the outcome. It never returns an
// error: transport problems, bad URLs and unserializable bodies all come
// back as a Failure.
func (e *Executor) Execute(ctx context.Context, req Request) ExecutionResult {
	target := JoinURL(req.BaseURL, req.Path)
	method := req.Method.Upper()

	var body io.Reader
	if req.Method.SendsBody() && req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return failure(err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return failure(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	e.log.Debug().Str("method", method).Str("url", target).Msg("sending request")

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		e.log.Debug().Err(err).Str("method", method).Str("url", target).Msg("request failed")
		return failure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody+1))
	if err != nil {
		return failure(err)
	}
	truncated := int64(len(raw)) > e.maxBody
	if truncated {
		raw = raw[:e.maxBody]
		e.log.Warn().Str("method", method).Str("url", target).Int64("limit", e.maxBody).Msg("response body truncated")
	}

	e.log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("response received")

	return Success{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    flattenHeaders(resp.Header),
		Body:       decodeBody(resp.Header.Get("Content-Type"), raw),
		Elapsed:    elapsed,
		Truncated:  truncated,
	}
}

func failure(err error) Failure {
	return Failure{Status: StatusNetworkError, Message: err.Error(), Headers: map[string]string{}}
}

// JoinURL applies path to base. Absolute paths are used as they are;
// otherwise the base's own path prefix is kept.
func JoinURL(base, path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	base = strings.TrimSpace(base)
	if base == "" {
		return path
	}
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}

// IsJSON reports whether a content type denotes JSON, including +json suffixes.
func IsJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func decodeBody(contentType string, raw []byte) any {
	if IsJSON(contentType) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// SortedHeaderNames returns header names in stable display order.
func SortedHeaderNames(h map[string]string) []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
