// Package openapi turns OpenAPI 2 and 3 documents into the in-memory model
// used by the rest of oasplay.
package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// MaxDocumentSize bounds how much text Read accepts from a file or URL.
	MaxDocumentSize = 10 * 1024 * 1024
)

// Read returns the raw text of a document given a local path or an http(s)
// URL. A leading "@" marks a local file explicitly.
func Read(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("spec source is empty")
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetch(ctx, source)
	}

	file := strings.TrimPrefix(source, "@")
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, file)
}

func fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := &http.Client{Timeout: defaultTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	return readLimited(resp.Body, rawURL)
}

func readLimited(r io.Reader, source string) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if len(b) > MaxDocumentSize {
		return nil, fmt.Errorf("read %s: document exceeds %d bytes", source, MaxDocumentSize)
	}
	return b, nil
}

// SourceBaseURL guesses a base URL from the URL a document was fetched from:
// the same scheme and host, and the document's directory. It returns "" for
// local sources.
func SourceBaseURL(source string) string {
	source = strings.TrimSpace(source)
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return ""
	}
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	u.RawQuery = ""
	u.Path = path.Dir(u.Path)
	if u.Path == "." || u.Path == "/" {
		u.Path = ""
	}
	return strings.TrimRight(u.String(), "/")
}
