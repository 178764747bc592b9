package schema

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Marshal serializes a document back to YAML, preserving service and
// field order. Parse(Marshal(doc)) yields an equal document.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	return buf.Bytes(), nil
}

// MarshalYAML encodes the document as an ordered mapping of services.
func (d Document) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	for _, svc := range d.Services {
		value, err := encodeService(svc)
		if err != nil {
			return nil, err
		}
		root.Content = append(root.Content, scalar(svc.Name), value)
	}

	return root, nil
}

func encodeService(svc Service) (*yaml.Node, error) {
	raw := serviceYAML{Description: svc.Description}
	if !svc.Target.IsEmpty() {
		target := svc.Target
		raw.Target = &target
	}

	if len(svc.Fields) > 0 {
		fields := &yaml.Node{Kind: yaml.MappingNode}
		for _, f := range svc.Fields {
			value := &yaml.Node{}
			err := value.Encode(fieldYAML{
				Description: f.Description,
				Required:    f.Required,
				Advanced:    f.Advanced,
				Default:     f.Default,
				Example:     f.Example,
				Selector:    f.Selector,
			})
			if err != nil {
				return nil, fmt.Errorf("service %q: field %q: %w", svc.Name, f.Name, err)
			}
			fields.Content = append(fields.Content, scalar(f.Name), value)
		}
		raw.Fields = *fields
	}

	node := &yaml.Node{}
	if err := node.Encode(raw); err != nil {
		return nil, fmt.Errorf("service %q: %w", svc.Name, err)
	}
	return node, nil
}

func scalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
