package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Lint runs kin-openapi's structural validation over a document and returns
// its findings. An empty result means the document validated cleanly. The
// error is reserved for text that cannot be loaded at all.
func Lint(ctx context.Context, text []byte) ([]string, error) {
	var raw any
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, fmt.Errorf("lint: %w", err)
	}
	root, ok := jsonValue(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("lint: document root is not a mapping")
	}
	data, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("lint: %w", err)
	}

	var doc *openapi3.T
	if _, isV2 := root["swagger"]; isV2 {
		var v2 openapi2.T
		if err := json.Unmarshal(data, &v2); err != nil {
			return nil, fmt.Errorf("lint: swagger 2.0: %w", err)
		}
		doc, err = openapi2conv.ToV3(&v2)
		if err != nil {
			return []string{fmt.Sprintf("convert swagger 2.0: %v", err)}, nil
		}
	} else {
		loader := &openapi3.Loader{Context: ctx}
		doc, err = loader.LoadFromData(data)
		if err != nil {
			return []string{fmt.Sprintf("load: %v", err)}, nil
		}
	}

	if err := doc.Validate(ctx); err != nil {
		return splitFindings(err), nil
	}
	return nil, nil
}

func splitFindings(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
