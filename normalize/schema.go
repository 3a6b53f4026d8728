package normalize

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xraph/convene/source"
)

// shapes are deliberately loose: they reject payloads of the wrong JSON
// type, and leave required-field checks to the mappers.
var shapes = map[source.Provider]map[string]any{
	source.ProviderEventbrite: {
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": []any{"string", "number"}},
			"name":        map[string]any{"type": []any{"object", "null"}},
			"description": map[string]any{"type": []any{"object", "null"}},
			"start":       map[string]any{"type": []any{"object", "null"}},
			"end":         map[string]any{"type": []any{"object", "null"}},
			"venue":       map[string]any{"type": []any{"object", "null"}},
			"url":         map[string]any{"type": []any{"string", "null"}},
		},
	},
	source.ProviderFacebook: {
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": []any{"string", "number"}},
			"name":        map[string]any{"type": []any{"string", "null"}},
			"description": map[string]any{"type": []any{"string", "null"}},
			"start_time":  map[string]any{"type": []any{"string", "null"}},
			"end_time":    map[string]any{"type": []any{"string", "null"}},
			"place":       map[string]any{"type": []any{"object", "null"}},
		},
	},
	source.ProviderMeetup: {
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": []any{"string", "number"}},
			"name":        map[string]any{"type": []any{"string", "null"}},
			"description": map[string]any{"type": []any{"string", "null"}},
			"time":        map[string]any{"type": []any{"number", "null"}},
			"duration":    map[string]any{"type": []any{"number", "null"}},
			"venue":       map[string]any{"type": []any{"object", "null"}},
			"link":        map[string]any{"type": []any{"string", "null"}},
		},
	},
	source.ProviderGeneric: {
		"type": "object",
		"properties": map[string]any{
			"id":          map[string]any{"type": []any{"string", "number", "null"}},
			"title":       map[string]any{"type": []any{"string", "null"}},
			"description": map[string]any{"type": []any{"string", "null"}},
			"start_date":  map[string]any{"type": []any{"string", "null"}},
			"end_date":    map[string]any{"type": []any{"string", "null"}},
			"venue":       map[string]any{"type": []any{"string", "null"}},
			"address":     map[string]any{"type": []any{"string", "null"}},
		},
	},
}

// shapeValidator compiles provider shapes once and validates raw payloads.
type shapeValidator struct {
	mu    sync.RWMutex
	cache map[source.Provider]*jsonschema.Schema
}

func newShapeValidator() *shapeValidator {
	return &shapeValidator{cache: make(map[source.Provider]*jsonschema.Schema)}
}

// Validate checks raw against the shape registered for p. Providers without
// a shape are accepted.
func (v *shapeValidator) Validate(p source.Provider, raw []byte) error {
	compiled, err := v.compile(p)
	if err != nil || compiled == nil {
		return err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

func (v *shapeValidator) compile(p source.Provider) (*jsonschema.Schema, error) {
	v.mu.RLock()
	if cached, ok := v.cache[p]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	shape, ok := shapes[p]
	if !ok {
		return nil, nil
	}

	url := "convene://shape/" + string(p)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, shape); err != nil {
		return nil, fmt.Errorf("convene: add shape %s: %w", p, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("convene: compile shape %s: %w", p, err)
	}

	v.mu.Lock()
	v.cache[p] = compiled
	v.mu.Unlock()
	return compiled, nil
}
