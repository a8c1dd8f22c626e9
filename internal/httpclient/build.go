package httpclient

import (
	"net/url"
	"regexp"
	"strings"

	"oasplay/internal/model"
)

// Built is a request derived from an operation and user input, before the
// base URL is applied.
type Built struct {
	Path    string
	Body    any
	Headers map[string]string

	// Unfilled lists path placeholders that had no value.
	Unfilled []string
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Build fills the operation's path template and query string from values.
// A path parameter present in values is substituted even when empty; query,
// header and cookie parameters are only sent when non-empty. Body is passed
// through.
func Build(pathTemplate string, op *model.Operation, values map[string]string, body any) Built {
	out := Built{Path: pathTemplate, Body: body, Headers: map[string]string{}}

	for _, p := range op.ParamsIn(model.ParamInPath) {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		out.Path = strings.ReplaceAll(out.Path, "{"+p.Name+"}", url.PathEscape(v))
	}

	var query []string
	for _, p := range op.ParamsIn(model.ParamInQuery) {
		if v := values[p.Name]; v != "" {
			query = append(query, url.QueryEscape(p.Name)+"="+url.QueryEscape(v))
		}
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(out.Path, "?") {
			sep = "&"
		}
		out.Path += sep + strings.Join(query, "&")
	}

	for _, p := range op.ParamsIn(model.ParamInHeader) {
		if v := values[p.Name]; v != "" {
			out.Headers[p.Name] = v
		}
	}

	var cookies []string
	for _, p := range op.ParamsIn(model.ParamInCookie) {
		if v := values[p.Name]; v != "" {
			cookies = append(cookies, p.Name+"="+url.QueryEscape(v))
		}
	}
	if len(cookies) > 0 {
		out.Headers["Cookie"] = strings.Join(cookies, "; ")
	}

	for _, m := range placeholderRe.FindAllStringSubmatch(out.Path, -1) {
		out.Unfilled = append(out.Unfilled, m[1])
	}
	return out
}
