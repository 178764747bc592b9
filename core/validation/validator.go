// Package validation validates service-call payloads against the service
// schema document. Validation runs before any handler is invoked.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/mesgate/core/schema"
	"github.com/artpar/mesgate/domain/notification"
)

// Call is a validated service call.
type Call struct {
	Service string

	// Data holds every declared field, with defaults applied for omitted ones.
	Data map[string]any

	// EntityIDs lists the targeted entities. Empty means "all matching the target".
	EntityIDs []string

	// MeterCode identifies the meter when entity_id is not given.
	MeterCode string
}

// Bool returns a boolean field value.
func (c Call) Bool(name string) bool {
	b, _ := c.Data[name].(bool)
	return b
}

// ValidateCall validates input data against one service descriptor.
func ValidateCall(svc schema.Service, data map[string]any) (Call, schema.ValidationResult) {
	result := schema.ValidationResult{Valid: true}
	call := Call{
		Service: svc.Name,
		Data:    make(map[string]any, len(svc.Fields)),
	}

	known := map[string]bool{schema.KeyEntityID: true}
	if schema.AcceptsMeterCode(svc) {
		known[schema.KeyMeterCode] = true
	}
	for _, f := range svc.Fields {
		known[f.Name] = true
	}

	// Unknown keys are rejected; sorted for stable error order.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			result.AddError(k, "unknown_field", k,
				fmt.Sprintf("unknown field '%s' - not defined for service %s", k, svc.Name))
		}
	}

	validateTarget(&result, &call, svc, data)

	for _, field := range svc.Fields {
		value, hasValue := data[field.Name]

		if !hasValue || value == nil {
			if field.Required {
				result.AddError(field.Name, "required", nil, "field is required")
				continue
			}
			if field.HasDefault() {
				call.Data[field.Name] = field.Default
			}
			continue
		}

		normalized, ok := normalizeField(&result, field, value)
		if ok {
			call.Data[field.Name] = normalized
		}
	}

	return call, result
}

// validateTarget resolves entity_id / meter_code.
func validateTarget(result *schema.ValidationResult, call *Call, svc schema.Service, data map[string]any) {
	rawIDs, hasIDs := data[schema.KeyEntityID]
	rawCode, hasCode := data[schema.KeyMeterCode]
	hasIDs = hasIDs && rawIDs != nil
	hasCode = hasCode && rawCode != nil

	if hasIDs {
		ids, err := entityIDs(rawIDs)
		if err != nil {
			result.AddError(schema.KeyEntityID, "type", rawIDs, err.Error())
		} else {
			call.EntityIDs = ids
		}
	}

	if !schema.AcceptsMeterCode(svc) {
		return
	}

	// Meter services with inputs address exactly one meter.
	switch {
	case hasIDs && hasCode:
		result.AddError(schema.KeyMeterCode, "exclusive", rawCode,
			"entity_id and meter_code are mutually exclusive")
	case !hasIDs && !hasCode:
		result.AddError(schema.KeyEntityID, "required", nil,
			"either entity_id or meter_code is required")
	case hasIDs && len(call.EntityIDs) > 1:
		result.AddError(schema.KeyEntityID, "single", rawIDs, "exactly one meter must be targeted")
	case hasCode:
		code, ok := stringValue(rawCode)
		if !ok || strings.TrimSpace(code) == "" {
			result.AddError(schema.KeyMeterCode, "type", rawCode, "must be a non-empty string")
			return
		}
		call.MeterCode = strings.TrimSpace(code)
	}
}

var entityIDPattern = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*\.[a-z0-9]+(_[a-z0-9]+)*$`)

func entityIDs(v any) ([]string, error) {
	var raw []string
	switch val := v.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			raw = append(raw, strings.TrimSpace(part))
		}
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entity ids must be strings")
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("must be an entity id or a list of entity ids")
	}

	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.ToLower(strings.TrimSpace(id))
		if !entityIDPattern.MatchString(id) {
			return nil, fmt.Errorf("invalid entity id %q", id)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one entity id is required")
	}
	return out, nil
}

// normalizeField validates the value against the field selector and
// returns its canonical form.
func normalizeField(result *schema.ValidationResult, field schema.Field, value any) (any, bool) {
	switch field.Selector.Type() {
	case schema.SelectorBoolean:
		if field.Name == schema.FieldNotification {
			if overrides, ok, err := notificationOverrides(value); ok {
				if err != nil {
					result.AddError(field.Name, "type", value, err.Error())
					return nil, false
				}
				// An empty mapping asks for nothing.
				if len(overrides) == 0 {
					return false, true
				}
				return overrides, true
			}
		}
		b, err := ParseBool(value)
		if err != nil {
			result.AddError(field.Name, "type", value, "must be a boolean")
			return nil, false
		}
		return b, true

	case schema.SelectorText:
		switch val := value.(type) {
		case string:
			return val, true
		case int, int64, float64:
			return fmt.Sprint(val), true
		case []any, map[string]any, map[any]any:
			// Templated calls may render the readings list already parsed.
			if field.Name == schema.FieldIndications {
				return val, true
			}
		}
		result.AddError(field.Name, "type", value, "must be a string")
		return nil, false
	}

	result.AddError(field.Name, "selector", value, "field has no selector")
	return nil, false
}

// notificationOverrides accepts a mapping of notification overrides.
// The second return value reports whether value was a mapping at all.
func notificationOverrides(value any) (map[string]string, bool, error) {
	var m map[string]any
	switch val := value.(type) {
	case map[string]any:
		m = val
	case map[any]any:
		m = make(map[string]any, len(val))
		for k, v := range val {
			m[fmt.Sprint(k)] = v
		}
	default:
		return nil, false, nil
	}

	out := make(map[string]string, len(m))
	for k, v := range m {
		if !notification.ValidOverrideKey(k) {
			return nil, true, fmt.Errorf("unknown notification key %q", k)
		}
		s, ok := stringValue(v)
		if !ok {
			return nil, true, fmt.Errorf("notification %s must be a string", k)
		}
		out[k] = s
	}
	return out, true, nil
}

// ParseBool converts the boolean spellings accepted in service calls.
func ParseBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int:
		return val != 0, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on", "enable":
			return true, nil
		case "0", "false", "no", "off", "disable":
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid boolean value %v", v)
}

func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
