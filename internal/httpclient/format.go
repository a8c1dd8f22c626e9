package httpclient

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/logrusorgru/aurora/v3"

	"oasplay/internal/model"
)

// Palette renders methods, statuses and response bodies for terminals. A
// palette built with color disabled produces plain text.
type Palette struct {
	au aurora.Aurora
}

func NewPalette(color bool) Palette {
	return Palette{au: aurora.NewAurora(color)}
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

// Method pads the method to a fixed width and colors it.
func (p Palette) Method(m model.Method) string {
	s := padRight(m.Upper(), 7)
	switch m {
	case model.MethodGet:
		return p.au.Blue(s).String()
	case model.MethodPost:
		return p.au.Green(s).String()
	case model.MethodPut:
		return p.au.Yellow(s).String()
	case model.MethodDelete:
		return p.au.Red(s).String()
	case model.MethodPatch:
		return p.au.Cyan(s).String()
	case model.MethodHead, model.MethodOptions:
		return p.au.Magenta(s).String()
	default:
		return s
	}
}

// Status colors "200 OK" style text by status class.
func (p Palette) Status(code int, text string) string {
	s := strings.TrimSpace(strconv.Itoa(code) + " " + text)
	switch {
	case code >= 200 && code < 300:
		return p.au.Green(s).String()
	case code >= 400 && code < 500:
		return p.au.Yellow(s).String()
	case code >= 500:
		return p.au.Red(s).String()
	default:
		return s
	}
}

var pathParamRe = regexp.MustCompile(`\{([^}]+)\}`)

// Path highlights {placeholders} in a path template.
func (p Palette) Path(path string) string {
	return pathParamRe.ReplaceAllStringFunc(path, func(m string) string {
		return p.au.Cyan(m).String()
	})
}

// Result renders an ExecutionResult as a status line, headers and body.
func (p Palette) Result(r ExecutionResult) string {
	var sb strings.Builder
	switch v := r.(type) {
	case Success:
		fmt.Fprintf(&sb, "%s  %s\n", p.Status(v.Status, v.StatusText), p.au.Faint(v.Elapsed.Round(1e6)))
		for _, k := range SortedHeaderNames(v.Headers) {
			fmt.Fprintf(&sb, "%s: %s\n", p.au.Cyan(k), v.Headers[k])
		}
		sb.WriteString("\n")
		sb.WriteString(p.Body(v.Body))
		if v.Truncated {
			fmt.Fprintf(&sb, "\n%s", p.au.Yellow("(body truncated)"))
		}
	case Failure:
		fmt.Fprintf(&sb, "%s\n%s", p.au.Red(v.Status), v.Message)
	}
	return sb.String()
}

// Body renders a decoded body: JSON values are pretty-printed and colored,
// text is returned unchanged.
func (p Palette) Body(body any) string {
	if s, ok := body.(string); ok {
		return s
	}
	return p.json(body, 0)
}

func (p Palette) json(v any, indent int) string {
	prefix := strings.Repeat("  ", indent)

	switch val := v.(type) {
	case nil:
		return p.au.BrightBlack("null").String()
	case bool:
		return p.au.Magenta(strconv.FormatBool(val)).String()
	case float64:
		if val == float64(int64(val)) {
			return p.au.Yellow(strconv.FormatInt(int64(val), 10)).String()
		}
		return p.au.Yellow(strconv.FormatFloat(val, 'g', -1, 64)).String()
	case string:
		b, _ := json.Marshal(val)
		return p.au.Green(string(b)).String()
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		var sb strings.Builder
		sb.WriteString("[\n")
		for i, item := range val {
			sb.WriteString(prefix + "  " + p.json(item, indent+1))
			if i < len(val)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(prefix + "]")
		return sb.String()
	case map[string]any:
		if len(val) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("{\n")
		for i, k := range keys {
			kb, _ := json.Marshal(k)
			sb.WriteString(prefix + "  " + p.au.Cyan(string(kb)).String() + ": ")
			sb.WriteString(p.json(val[k], indent+1))
			if i < len(keys)-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(prefix + "}")
		return sb.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
