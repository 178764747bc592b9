package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	yaml := `
ping:
  description: Ping a meter
  target:
    entity:
      device_class: meter
  fields:
    verbose:
      description: Say more
      default: true
      selector:
        boolean:
    note:
      example: hello
      selector:
        text:
          multiline: true
refresh:
  target:
    entity:
      integration: mosenergosbyt
`

	doc, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := doc.Names(); len(got) != 2 || got[0] != "ping" || got[1] != "refresh" {
		t.Fatalf("Names() = %v, want [ping refresh]", got)
	}

	ping, _ := doc.Service("ping")
	if ping.Description != "Ping a meter" {
		t.Errorf("Description = %q", ping.Description)
	}
	if got := ping.FieldNames(); len(got) != 2 || got[0] != "verbose" || got[1] != "note" {
		t.Errorf("FieldNames() = %v, want [verbose note]", got)
	}

	verbose, _ := ping.Field("verbose")
	if verbose.Default != true {
		t.Errorf("verbose default = %#v, want true", verbose.Default)
	}

	note, _ := ping.Field("note")
	if note.Selector.Type() != SelectorText || !note.Selector.Text.Multiline {
		t.Errorf("note selector = %+v, want multiline text", note.Selector)
	}
	if note.Example != "hello" {
		t.Errorf("note example = %#v", note.Example)
	}

	refresh, _ := doc.Service("refresh")
	if len(refresh.Fields) != 0 {
		t.Errorf("refresh has %d fields, want 0", len(refresh.Fields))
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "valid minimal",
			yaml: `
refresh:
  target: { entity: { device_class: account } }
`,
		},
		{
			name:    "empty document",
			yaml:    ``,
			wantErr: "no services",
		},
		{
			name: "duplicate service",
			yaml: `
refresh:
  target: { entity: { device_class: account } }
refresh:
  target: { entity: { device_class: meter } }
`,
			wantErr: "declared more than once",
		},
		{
			name: "missing target",
			yaml: `
refresh:
  description: nothing to target
`,
			wantErr: "target filter is empty",
		},
		{
			name: "invalid service name",
			yaml: `
"9lives":
  target: { entity: { device_class: account } }
`,
			wantErr: "not a valid identifier",
		},
		{
			name: "required with default",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    value:
      required: true
      default: "1"
      selector: { text: {} }
`,
			wantErr: "must not declare a default",
		},
		{
			name: "default type mismatch",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    flag:
      default: "no"
      selector: { boolean: null }
`,
			wantErr: "not a valid boolean value",
		},
		{
			name: "text default must be string",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    note:
      default: 5
      selector: { text: null }
`,
			wantErr: "not a valid text value",
		},
		{
			name: "missing selector",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    note:
      description: no widget
`,
			wantErr: "selector is required",
		},
		{
			name: "unsupported selector",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    when:
      selector: { datetime: null }
`,
			wantErr: "unsupported selector",
		},
		{
			name: "two widgets",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    when:
      selector: { text: null, boolean: null }
`,
			wantErr: "widgets",
		},
		{
			name: "boolean with options",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    flag:
      selector: { boolean: { mode: slider } }
`,
			wantErr: "takes no options",
		},
		{
			name: "duplicate field",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    flag:
      selector: { boolean: null }
    flag:
      selector: { boolean: null }
`,
			wantErr: "field \"flag\" declared more than once",
		},
		{
			name:    "not a mapping",
			yaml:    `- push`,
			wantErr: "mapping of services",
		},
		{
			name: "misspelled field key",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    value:
      requird: true
      selector: { text: null }
`,
			wantErr: `unknown key "requird"`,
		},
		{
			name: "unknown service key",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  feilds: {}
`,
			wantErr: `unknown key "feilds"`,
		},
		{
			name: "unknown target key",
			yaml: `
push:
  target: { entity: { device_class: meter }, area: kitchen }
`,
			wantErr: `unknown key "area"`,
		},
		{
			name: "unknown entity filter key",
			yaml: `
push:
  target: { entity: { deviceclass: meter } }
`,
			wantErr: `unknown key "deviceclass"`,
		},
		{
			name: "unknown text option",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields:
    note:
      selector: { text: { multline: true } }
`,
			wantErr: `unknown key "multline"`,
		},
		{
			name: "fields not a mapping",
			yaml: `
push:
  target: { entity: { device_class: meter } }
  fields: [indications]
`,
			wantErr: "fields must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_BuiltinYAML(t *testing.T) {
	doc, err := Parse(BuiltinYAML())
	if err != nil {
		t.Fatalf("built-in document does not parse: %v", err)
	}
	if len(doc.Services) != 9 {
		t.Fatalf("services = %d, want 9", len(doc.Services))
	}

	push, _ := doc.Service(ServicePushIndications)
	if got := push.FieldNames(); len(got) != 5 || got[0] != FieldIndications {
		t.Errorf("push_indications fields = %v", got)
	}
	indications, _ := push.Field(FieldIndications)
	if !indications.Required || indications.Selector.Type() != SelectorText {
		t.Errorf("indications = %+v, want required text", indications)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	doc := &Document{Services: []Service{
		{Name: "a"},
		{Name: "b", Target: Target{Entity: EntityFilter{DeviceClass: "meter"}}, Fields: []Field{
			{Name: "x", Required: true, Default: false, Selector: Selector{Boolean: &BooleanSelector{}}},
		}},
	}}

	err := Validate(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "\"a\": target filter is empty") {
		t.Errorf("missing target error in %v", err)
	}
	if !strings.Contains(err.Error(), "must not declare a default") {
		t.Errorf("missing default error in %v", err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	if err := os.WriteFile(path, BuiltinYAML(), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(doc.Services) != len(Builtin().Services) {
		t.Errorf("got %d services, want %d", len(doc.Services), len(Builtin().Services))
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
