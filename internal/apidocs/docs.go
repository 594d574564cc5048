// Package apidocs serves the OpenAPI description of the HTTP API.
package apidocs

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var rawDocument []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Document loads and validates the embedded OpenAPI document. The parsed
// document is cached after the first successful call.
func Document(ctx context.Context) (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(rawDocument)
		if err != nil {
			loadErr = fmt.Errorf("failed to load OpenAPI document: %w", err)
			return
		}
		if err := doc.Validate(ctx); err != nil {
			loadErr = fmt.Errorf("invalid OpenAPI document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}

// JSON renders the document as JSON.
func JSON(ctx context.Context) ([]byte, error) {
	doc, err := Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.MarshalJSON()
}

// YAML renders the document as YAML.
func YAML(ctx context.Context) ([]byte, error) {
	doc, err := Document(ctx)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return out, nil
}
