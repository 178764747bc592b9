package schema

// Document is the root of a service schema: an ordered set of services.
type Document struct {
	Services []Service
}

// Service describes one callable service and its inputs.
type Service struct {
	// Name is the service key, unique within the document (e.g. "push_indications").
	Name string

	// Description is the human-readable summary.
	Description string

	// Target selects the entities a call may apply to.
	Target Target

	// Fields lists the inputs in declaration order.
	Fields []Field
}

// Target is the entity filter of a service.
type Target struct {
	Entity EntityFilter `yaml:"entity"`
}

// EntityFilter selects entities by owning integration and/or device class.
type EntityFilter struct {
	Integration string `yaml:"integration,omitempty"`
	DeviceClass string `yaml:"device_class,omitempty"`
}

// IsEmpty reports whether the target selects nothing.
func (t Target) IsEmpty() bool {
	return t.Entity.Integration == "" && t.Entity.DeviceClass == ""
}

// Field describes one input of a service.
type Field struct {
	Name        string
	Description string

	// Required fields must be present in every call and carry no default.
	Required bool

	// Advanced fields are only shown in expert mode.
	Advanced bool

	// Default is applied when the caller omits the field. Nil means no default.
	Default any

	// Example is shown as a hint. Nil means no example.
	Example any

	Selector Selector
}

// HasDefault reports whether the field declares a default value.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// Service returns the service with the given name.
func (d *Document) Service(name string) (Service, bool) {
	for _, s := range d.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// Names returns the service names in declaration order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return names
}

// Field returns the field with the given name.
func (s Service) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in declaration order.
func (s Service) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// TargetsDeviceClass reports whether the service targets the given device class.
func (s Service) TargetsDeviceClass(class string) bool {
	return s.Target.Entity.DeviceClass == class
}
