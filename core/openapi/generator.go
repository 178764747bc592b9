// Package openapi generates an OpenAPI 3.0 description of the service API
// from a services document. Every service becomes one call operation with a
// request schema derived from its fields.
package openapi

import (
	"encoding/json"
	"sort"

	"github.com/artpar/mesgate/core/schema"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers,omitempty"`
	Paths      map[string]PathItem   `json:"paths"`
	Components Components            `json:"components"`
	Security   []SecurityRequirement `json:"security,omitempty"`
	Tags       []Tag                 `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string            `json:"tags,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query, header
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Default              any                `json:"default,omitempty"`
	Example              any                `json:"example,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas         map[string]*Schema        `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme defines an authentication method.
type SecurityScheme struct {
	Type        string `json:"type"`
	Scheme      string `json:"scheme,omitempty"`
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty"`
	In          string `json:"in,omitempty"`
}

// SecurityRequirement specifies required security schemes.
type SecurityRequirement map[string][]string

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Generator generates OpenAPI specs from a services document.
type Generator struct {
	doc     *schema.Document
	info    Info
	servers []Server
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(doc *schema.Document) *Generator {
	return &Generator{
		doc: doc,
		info: Info{
			Title:       "mesgate API",
			Version:     "dev",
			Description: "Mosenergosbyt meter services. Generated from the services document.",
		},
	}
}

// SetInfo sets the API info.
func (g *Generator) SetInfo(info Info) {
	g.info = info
}

// AddServer adds a server URL.
func (g *Generator) AddServer(url, description string) {
	g.servers = append(g.servers, Server{
		URL:         url,
		Description: description,
	})
}

// Generate creates the OpenAPI specification.
func (g *Generator) Generate() *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{
				"Error":       errorSchema(),
				"ErrorList":   {Type: "object", Properties: map[string]*Schema{"errors": {Type: "array", Items: ref("Error")}}},
				"CallResult":  callResultSchema(),
				"ServiceList": {Type: "object", Properties: map[string]*Schema{"data": {Type: "array", Items: &Schema{Type: "object"}}}},
			},
			SecuritySchemes: map[string]SecurityScheme{
				"bearerAuth": {
					Type:        "http",
					Scheme:      "bearer",
					Description: "API token; server.api_token_hash holds its bcrypt hash",
				},
				"apiKey": {
					Type:        "apiKey",
					In:          "header",
					Name:        "X-API-Key",
					Description: "API token in a header",
				},
			},
		},
		Security: []SecurityRequirement{{"bearerAuth": {}}, {"apiKey": {}}},
	}

	spec.Paths["/api/services"] = PathItem{
		Get: &Operation{
			Tags:        []string{"catalogue"},
			Summary:     "List services",
			OperationID: "listServices",
			Responses: map[string]Response{
				"200": jsonResponse("Service descriptors", ref("ServiceList")),
				"401": errorResponse("Missing or invalid token"),
			},
		},
	}

	tags := map[string]bool{"catalogue": true}
	for _, svc := range g.doc.Services {
		tag := serviceTag(svc)
		tags[tag] = true
		g.generateService(spec, svc, tag)
	}

	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec.Tags = append(spec.Tags, Tag{Name: name})
	}

	return spec
}

func (g *Generator) generateService(spec *Spec, svc schema.Service, tag string) {
	requestName := schemaName(svc.Name) + "Request"
	spec.Components.Schemas[requestName] = requestSchema(svc)

	spec.Paths["/api/services/"+svc.Name] = PathItem{
		Post: &Operation{
			Tags:        []string{tag},
			Summary:     svc.Description,
			OperationID: svc.Name,
			RequestBody: &RequestBody{
				Required: false,
				Content: map[string]MediaType{
					"application/json": {Schema: ref(requestName)},
				},
			},
			Responses: map[string]Response{
				"200": jsonResponse("Call result", ref("CallResult")),
				"400": errorResponse("Payload failed validation; one error per field"),
				"401": errorResponse("Missing or invalid token"),
				"404": errorResponse("Unknown service"),
				"422": errorResponse("Meter not found, operation unsupported or readings rejected"),
				"502": errorResponse("Portal failure"),
			},
		},
	}
}

// requestSchema renders the payload of a service. entity_id and, for meter
// services, meter_code come first; declared fields follow.
func requestSchema(svc schema.Service) *Schema {
	closed := false
	s := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			schema.KeyEntityID: {
				Description: "Entities to apply the call to.",
				OneOf: []*Schema{
					{Type: "string"},
					{Type: "array", Items: &Schema{Type: "string"}},
				},
			},
		},
		AdditionalProperties: &closed,
	}
	if schema.AcceptsMeterCode(svc) {
		s.Properties[schema.KeyMeterCode] = &Schema{
			Type:        "string",
			Description: "Meter number, as an alternative to entity_id.",
		}
	}

	for _, f := range svc.Fields {
		prop := &Schema{Description: f.Description, Example: f.Example}
		switch f.Selector.Type() {
		case schema.SelectorBoolean:
			prop.Type = "boolean"
		default:
			prop.Type = "string"
		}
		if f.HasDefault() {
			prop.Default = f.Default
		}
		s.Properties[f.Name] = prop
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func errorSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"status": {Type: "string"},
			"code":   {Type: "string"},
			"title":  {Type: "string"},
			"detail": {Type: "string"},
			"source": {
				Type: "object",
				Properties: map[string]*Schema{
					"pointer":   {Type: "string", Example: "/data/indications"},
					"parameter": {Type: "string"},
				},
			},
		},
	}
}

func callResultSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"data": {
				Type: "object",
				Properties: map[string]*Schema{
					"call_id": {Type: "string"},
					"service": {Type: "string"},
					"data":    {Type: "object", Description: "Handler output, e.g. entity_id, meter_code, indications, comment."},
				},
			},
		},
	}
}

// serviceTag groups operations by the device class they target.
func serviceTag(svc schema.Service) string {
	if c := svc.Target.Entity.DeviceClass; c != "" {
		return c
	}
	return "integration"
}

// schemaName converts a snake_case service name to PascalCase.
func schemaName(name string) string {
	out := make([]byte, 0, len(name))
	upper := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

func ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func jsonResponse(description string, s *Schema) Response {
	return Response{
		Description: description,
		Content:     map[string]MediaType{"application/json": {Schema: s}},
	}
}

func errorResponse(description string) Response {
	return jsonResponse(description, ref("ErrorList"))
}

// ToJSON converts the spec to formatted JSON.
func (spec *Spec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

// ToJSONCompact converts the spec to compact JSON.
func (spec *Spec) ToJSONCompact() ([]byte, error) {
	return json.Marshal(spec)
}
