package httpclient

import (
	"encoding/json"
	"sort"
	"strings"
)

// Snippet renders req as an equivalent curl command, one option per line.
func Snippet(req Request) string {
	lines := []string{"curl -X " + req.Method.Upper() + " " + shellQuote(JoinURL(req.BaseURL, req.Path))}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range req.Headers {
		for existing := range headers {
			if strings.EqualFold(existing, k) {
				delete(headers, existing)
			}
		}
		headers[k] = v
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		lines = append(lines, "-H "+shellQuote(k+": "+headers[k]))
	}

	if req.Method.SendsBody() && req.Body != nil {
		if b, err := json.Marshal(req.Body); err == nil {
			lines = append(lines, "-d "+shellQuote(string(b)))
		}
	}
	return strings.Join(lines, " \\\n  ")
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
