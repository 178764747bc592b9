package schema

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a service schema document from a YAML file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a service schema document from YAML bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(&doc); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	return &doc, nil
}

// serviceYAML is the on-disk form of a service. Fields stay a node so
// their order survives decoding.
type serviceYAML struct {
	Description string    `yaml:"description,omitempty"`
	Target      *Target   `yaml:"target,omitempty"`
	Fields      yaml.Node `yaml:"fields,omitempty"`
}

type fieldYAML struct {
	Description string   `yaml:"description,omitempty"`
	Required    bool     `yaml:"required,omitempty"`
	Advanced    bool     `yaml:"advanced,omitempty"`
	Default     any      `yaml:"default,omitempty"`
	Example     any      `yaml:"example,omitempty"`
	Selector    Selector `yaml:"selector"`
}

var (
	serviceKeys = []string{"description", "target", "fields"}
	fieldKeys   = []string{"description", "required", "advanced", "default", "example", "selector"}
	targetKeys  = []string{"entity"}
	entityKeys  = []string{"integration", "device_class"}
)

// UnmarshalYAML decodes the top-level mapping of service names.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	if isNull(node) {
		*d = Document{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: document must be a mapping of services", node.Line)
	}

	services := make([]Service, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		svc, err := decodeService(key.Value, value)
		if err != nil {
			return err
		}
		services = append(services, svc)
	}

	d.Services = services
	return nil
}

func decodeService(name string, node *yaml.Node) (Service, error) {
	var raw serviceYAML
	if !isNull(node) {
		if err := checkKeys(node, serviceKeys...); err != nil {
			return Service{}, fmt.Errorf("service %q: %w", name, err)
		}
		if target := mappingValue(node, "target"); target != nil && !isNull(target) {
			if err := checkTarget(target); err != nil {
				return Service{}, fmt.Errorf("service %q: target: %w", name, err)
			}
		}
		if err := node.Decode(&raw); err != nil {
			return Service{}, fmt.Errorf("service %q: %w", name, err)
		}
	}

	svc := Service{
		Name:        name,
		Description: raw.Description,
	}
	if raw.Target != nil {
		svc.Target = *raw.Target
	}

	if raw.Fields.Kind == 0 || isNull(&raw.Fields) {
		return svc, nil
	}
	if raw.Fields.Kind != yaml.MappingNode {
		return Service{}, fmt.Errorf("service %q: line %d: fields must be a mapping", name, raw.Fields.Line)
	}

	for i := 0; i+1 < len(raw.Fields.Content); i += 2 {
		key, value := raw.Fields.Content[i], raw.Fields.Content[i+1]

		var f fieldYAML
		if !isNull(value) {
			if err := checkKeys(value, fieldKeys...); err != nil {
				return Service{}, fmt.Errorf("service %q: field %q: %w", name, key.Value, err)
			}
			if err := value.Decode(&f); err != nil {
				return Service{}, fmt.Errorf("service %q: field %q: %w", name, key.Value, err)
			}
		}

		svc.Fields = append(svc.Fields, Field{
			Name:        key.Value,
			Description: f.Description,
			Required:    f.Required,
			Advanced:    f.Advanced,
			Default:     f.Default,
			Example:     f.Example,
			Selector:    f.Selector,
		})
	}

	return svc, nil
}

func checkTarget(node *yaml.Node) error {
	if err := checkKeys(node, targetKeys...); err != nil {
		return err
	}
	if entity := mappingValue(node, "entity"); entity != nil && !isNull(entity) {
		return checkKeys(entity, entityKeys...)
	}
	return nil
}

// checkKeys rejects mapping keys outside allowed. Non-mapping nodes are
// left for Decode to report.
func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !slices.Contains(allowed, key.Value) {
			return fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// Validate checks the document-level invariants and reports every violation.
func Validate(doc *Document) error {
	var errs []string

	if len(doc.Services) == 0 {
		errs = append(errs, "document declares no services")
	}

	seen := make(map[string]bool, len(doc.Services))
	for _, svc := range doc.Services {
		if !isValidIdentifier(svc.Name) {
			errs = append(errs, fmt.Sprintf("service name %q is not a valid identifier", svc.Name))
		}
		if seen[svc.Name] {
			errs = append(errs, fmt.Sprintf("service %q declared more than once", svc.Name))
		}
		seen[svc.Name] = true

		if svc.Target.IsEmpty() {
			errs = append(errs, fmt.Sprintf("service %q: target filter is empty", svc.Name))
		}

		errs = append(errs, validateFields(svc)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validateFields(svc Service) []string {
	var errs []string

	seen := make(map[string]bool, len(svc.Fields))
	for _, f := range svc.Fields {
		if !isValidIdentifier(f.Name) {
			errs = append(errs, fmt.Sprintf("service %q: field name %q is not a valid identifier", svc.Name, f.Name))
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Sprintf("service %q: field %q declared more than once", svc.Name, f.Name))
		}
		seen[f.Name] = true

		if err := validateField(f); err != nil {
			errs = append(errs, fmt.Sprintf("service %q: %v", svc.Name, err))
		}
	}

	return errs
}

// validateField validates a single field definition.
func validateField(f Field) error {
	if f.Selector.Type() == "" {
		return fmt.Errorf("field %q: selector is required", f.Name)
	}

	if f.Required && f.HasDefault() {
		return fmt.Errorf("field %q: required field must not declare a default", f.Name)
	}

	if f.HasDefault() && !f.Selector.Accepts(f.Default) {
		return fmt.Errorf("field %q: default %v is not a valid %s value", f.Name, f.Default, f.Selector.Type())
	}

	return nil
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
