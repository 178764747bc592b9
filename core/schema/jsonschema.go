package schema

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const jsonSchemaDraft = "https://json-schema.org/draft/2020-12/schema"

// Target keys accepted in every call payload in addition to the declared fields.
const (
	KeyEntityID  = "entity_id"
	KeyMeterCode = "meter_code"
)

// JSONSchema renders the canonical payload shape of a service as a JSON
// Schema document.
func JSONSchema(svc Service) map[string]any {
	props := map[string]any{
		KeyEntityID: map[string]any{
			"description": "Entities to apply the call to.",
			"anyOf": []any{
				map[string]any{"type": "string"},
				map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
	}
	if AcceptsMeterCode(svc) {
		props[KeyMeterCode] = map[string]any{
			"description": "Meter number, as an alternative to entity_id.",
			"type":        "string",
		}
	}

	var required []any
	for _, f := range svc.Fields {
		prop := map[string]any{}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		switch f.Selector.Type() {
		case SelectorText:
			prop["type"] = "string"
		case SelectorBoolean:
			prop["type"] = "boolean"
		}
		if f.HasDefault() {
			prop["default"] = f.Default
		}
		if f.Example != nil {
			prop["examples"] = []any{f.Example}
		}
		props[f.Name] = prop

		if f.Required {
			required = append(required, f.Name)
		}
	}

	out := map[string]any{
		"$schema":              jsonSchemaDraft,
		"title":                svc.Name,
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if svc.Description != "" {
		out["description"] = svc.Description
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// CompileJSONSchema renders and compiles the JSON Schema of a service,
// proving the rendered document is itself valid.
func CompileJSONSchema(svc Service) (*jsonschema.Schema, error) {
	url := "mesgate://services/" + svc.Name + ".json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, JSONSchema(svc)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", svc.Name, err)
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", svc.Name, err)
	}
	return sch, nil
}

// AcceptsMeterCode reports whether calls to the service may identify the
// meter by its number. This applies to meter services that take inputs.
func AcceptsMeterCode(svc Service) bool {
	return svc.TargetsDeviceClass("meter") && len(svc.Fields) > 0
}
