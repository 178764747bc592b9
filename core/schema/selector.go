package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SelectorType identifies the input widget of a field.
type SelectorType string

const (
	SelectorText    SelectorType = "text"
	SelectorBoolean SelectorType = "boolean"
)

// Selector declares the input widget of a field. Exactly one member is set.
type Selector struct {
	Text    *TextSelector
	Boolean *BooleanSelector
}

// TextSelector is a free text input.
type TextSelector struct {
	Multiline bool `yaml:"multiline"`
}

// BooleanSelector is an on/off toggle. It has no options.
type BooleanSelector struct{}

// Type returns the widget type, or "" when no widget is declared.
func (s Selector) Type() SelectorType {
	switch {
	case s.Text != nil:
		return SelectorText
	case s.Boolean != nil:
		return SelectorBoolean
	default:
		return ""
	}
}

// Accepts reports whether v is representable by the selector type.
func (s Selector) Accepts(v any) bool {
	switch s.Type() {
	case SelectorText:
		_, ok := v.(string)
		return ok
	case SelectorBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

// UnmarshalYAML decodes a selector mapping such as {text: {multiline: false}}.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: selector must be a mapping", node.Line)
	}
	if len(node.Content) > 2 {
		return fmt.Errorf("line %d: selector declares %d widgets, want 1", node.Line, len(node.Content)/2)
	}

	var out Selector
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch SelectorType(key.Value) {
		case SelectorText:
			text := &TextSelector{}
			if !isNull(value) {
				if err := checkKeys(value, "multiline"); err != nil {
					return fmt.Errorf("text selector: %w", err)
				}
				if err := value.Decode(text); err != nil {
					return fmt.Errorf("line %d: text selector: %w", value.Line, err)
				}
			}
			out.Text = text
		case SelectorBoolean:
			if !isNull(value) && !(value.Kind == yaml.MappingNode && len(value.Content) == 0) {
				return fmt.Errorf("line %d: boolean selector takes no options", value.Line)
			}
			out.Boolean = &BooleanSelector{}
		default:
			return fmt.Errorf("line %d: unsupported selector %q", key.Line, key.Value)
		}
	}

	*s = out
	return nil
}

// MarshalYAML encodes the selector in its mapping form.
func (s Selector) MarshalYAML() (any, error) {
	switch s.Type() {
	case SelectorText:
		return map[string]any{string(SelectorText): s.Text}, nil
	case SelectorBoolean:
		return map[string]any{string(SelectorBoolean): map[string]any{}}, nil
	default:
		return map[string]any{}, nil
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
