package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fetchTimeout = 15 * time.Second

// Fetch resolves source — an http(s) URL or a local file path — to raw
// bytes. A bound context governs network fetches; file reads are
// synchronous and unaffected by ctx.
func Fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", ErrBadSpec, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch: %v", ErrBadSpec, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: fetch returned status %d", ErrBadSpec, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrBadSpec, err)
		}
		return body, nil
	}

	raw, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %v", ErrBadSpec, err)
	}
	return raw, nil
}

// Parse decodes raw as either JSON or YAML — whichever parses — into a
// Document. OpenAPI documents are commonly authored in YAML, so a JSON
// parse failure falls through to a YAML attempt before giving up.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	jsonErr := json.Unmarshal(raw, &doc)
	if jsonErr != nil {
		if yamlErr := yaml.Unmarshal(raw, &doc); yamlErr != nil {
			return nil, fmt.Errorf("%w: not valid JSON or YAML: %v", ErrBadSpec, yamlErr)
		}
	}

	if doc.OpenAPI == "" {
		return nil, fmt.Errorf("%w: missing openapi version field", ErrBadSpec)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, fmt.Errorf("%w: unsupported openapi version %q", ErrBadSpec, doc.OpenAPI)
	}
	return &doc, nil
}
