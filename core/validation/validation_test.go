package validation

import (
	"testing"

	"github.com/artpar/mesgate/core/schema"
)

func hasError(result schema.ValidationResult, field, constraint string) bool {
	for _, e := range result.Errors {
		if e.Field == field && e.Constraint == constraint {
			return true
		}
	}
	return false
}

func service(t *testing.T, name string) schema.Service {
	t.Helper()
	svc, ok := schema.Builtin().Service(name)
	if !ok {
		t.Fatalf("built-in service %s missing", name)
	}
	return svc
}

func TestValidate_PushIndications(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		valid      bool
		field      string
		constraint string
	}{
		{
			name:  "entity id",
			data:  map[string]any{"entity_id": "sensor.meter_1", "indications": "123, 456"},
			valid: true,
		},
		{
			name:  "meter code",
			data:  map[string]any{"meter_code": "M1", "indications": "[1]"},
			valid: true,
		},
		{
			name:  "indications as list",
			data:  map[string]any{"meter_code": "M1", "indications": []any{1, 2}},
			valid: true,
		},
		{
			name:       "missing indications",
			data:       map[string]any{"entity_id": "sensor.meter_1"},
			field:      "indications",
			constraint: "required",
		},
		{
			name:       "no target",
			data:       map[string]any{"indications": "1"},
			field:      "entity_id",
			constraint: "required",
		},
		{
			name:       "both targets",
			data:       map[string]any{"entity_id": "sensor.meter_1", "meter_code": "M1", "indications": "1"},
			field:      "meter_code",
			constraint: "exclusive",
		},
		{
			name:       "several meters",
			data:       map[string]any{"entity_id": []any{"sensor.meter_1", "sensor.meter_2"}, "indications": "1"},
			field:      "entity_id",
			constraint: "single",
		},
		{
			name:       "unknown key",
			data:       map[string]any{"meter_code": "M1", "indications": "1", "tariff": 2},
			field:      "tariff",
			constraint: "unknown_field",
		},
		{
			name:       "bad boolean",
			data:       map[string]any{"meter_code": "M1", "indications": "1", "incremental": "maybe"},
			field:      "incremental",
			constraint: "type",
		},
		{
			name:       "bad entity id",
			data:       map[string]any{"entity_id": "not an id", "indications": "1"},
			field:      "entity_id",
			constraint: "type",
		},
		{
			name:  "indications as yaml mapping",
			data:  map[string]any{"meter_code": "M1", "indications": map[any]any{1: 10, 2: 20}},
			valid: true,
		},
		{
			name:       "indications of wrong type",
			data:       map[string]any{"meter_code": "M1", "indications": true},
			field:      "indications",
			constraint: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := ValidateCall(service(t, schema.ServicePushIndications), tt.data)
			if result.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tt.valid, result.Errors)
			}
			if !tt.valid && !hasError(result, tt.field, tt.constraint) {
				t.Errorf("expected %s error on %s, got %v", tt.constraint, tt.field, result.Errors)
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	call, result := ValidateCall(service(t, schema.ServiceCalculateIndications), map[string]any{
		"meter_code":  " M1 ",
		"indications": "100",
		"incremental": "on",
	})
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	if call.MeterCode != "M1" {
		t.Errorf("MeterCode = %q", call.MeterCode)
	}
	if !call.Bool(schema.FieldIncremental) {
		t.Error("incremental should be true")
	}
	for _, name := range []string{schema.FieldNotification, schema.FieldIgnorePeriod, schema.FieldIgnoreIndications} {
		b, ok := call.Data[name].(bool)
		if !ok || b {
			t.Errorf("%s = %#v, want default false", name, call.Data[name])
		}
	}
}

func TestValidate_NotificationOverrides(t *testing.T) {
	call, result := ValidateCall(service(t, schema.ServicePushIndications), map[string]any{
		"meter_code":   "M1",
		"indications":  "1",
		"notification": map[string]any{"title": "Meter {meter_code}"},
	})
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	overrides, ok := call.Data[schema.FieldNotification].(map[string]string)
	if !ok || overrides["title"] != "Meter {meter_code}" {
		t.Errorf("notification = %#v", call.Data[schema.FieldNotification])
	}

	_, result = ValidateCall(service(t, schema.ServicePushIndications), map[string]any{
		"meter_code":   "M1",
		"indications":  "1",
		"notification": map[string]any{"color": "red"},
	})
	if result.Valid || !hasError(result, schema.FieldNotification, "type") {
		t.Errorf("expected override key error, got %v", result.Errors)
	}

	call, result = ValidateCall(service(t, schema.ServicePushIndications), map[string]any{
		"meter_code":   "M1",
		"indications":  "1",
		"notification": map[any]any{"message": "{comment}"},
	})
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if overrides, _ := call.Data[schema.FieldNotification].(map[string]string); overrides["message"] != "{comment}" {
		t.Errorf("notification = %#v", call.Data[schema.FieldNotification])
	}
}

func TestValidate_EmptyNotificationMapping(t *testing.T) {
	call, result := ValidateCall(service(t, schema.ServiceCalculateIndications), map[string]any{
		"meter_code":   "M1",
		"indications":  "1",
		"notification": map[string]any{},
	})
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if call.Data[schema.FieldNotification] != false {
		t.Errorf("notification = %#v, want false", call.Data[schema.FieldNotification])
	}
}

func TestValidate_UpdateServices(t *testing.T) {
	call, result := ValidateCall(service(t, schema.ServiceUpdate), nil)
	if !result.Valid {
		t.Fatalf("update without data: %v", result.Errors)
	}
	if len(call.EntityIDs) != 0 {
		t.Errorf("EntityIDs = %v", call.EntityIDs)
	}

	call, result = ValidateCall(service(t, schema.ServiceUpdateMeter), map[string]any{
		"entity_id": "sensor.meter_1, Sensor.Meter_2",
	})
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(call.EntityIDs) != 2 || call.EntityIDs[1] != "sensor.meter_2" {
		t.Errorf("EntityIDs = %v", call.EntityIDs)
	}

	_, result = ValidateCall(service(t, schema.ServiceUpdateMeter), map[string]any{"meter_code": "M1"})
	if result.Valid || !hasError(result, "meter_code", "unknown_field") {
		t.Errorf("update_meter should reject meter_code, got %v", result.Errors)
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      any
		want    bool
		wantErr bool
	}{
		{true, true, false},
		{"on", true, false},
		{"Enable", true, false},
		{"yes", true, false},
		{1, true, false},
		{"off", false, false},
		{"0", false, false},
		{0.0, false, false},
		{"disable", false, false},
		{"maybe", false, true},
		{[]any{}, false, true},
	}

	for _, tt := range tests {
		got, err := ParseBool(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBool(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBool(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
