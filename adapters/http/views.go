package http

import "github.com/artpar/mesgate/core/schema"

// serviceView is the JSON shape of one service descriptor.
type serviceView struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Target      *targetView `json:"target,omitempty"`
	Fields      []fieldView `json:"fields"`
	Handler     bool        `json:"handler"`
	MeterCode   bool        `json:"accepts_meter_code"`
}

type targetView struct {
	Integration string `json:"integration,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
}

type fieldView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Advanced    bool   `json:"advanced,omitempty"`
	Default     any    `json:"default,omitempty"`
	Example     any    `json:"example,omitempty"`
	Selector    string `json:"selector"`
	Multiline   bool   `json:"multiline,omitempty"`
}

func newServiceView(svc schema.Service, hasHandler bool) serviceView {
	v := serviceView{
		Name:        svc.Name,
		Description: svc.Description,
		Fields:      make([]fieldView, 0, len(svc.Fields)),
		Handler:     hasHandler,
		MeterCode:   schema.AcceptsMeterCode(svc),
	}
	if !svc.Target.IsEmpty() {
		v.Target = &targetView{
			Integration: svc.Target.Entity.Integration,
			DeviceClass: svc.Target.Entity.DeviceClass,
		}
	}
	for _, f := range svc.Fields {
		fv := fieldView{
			Name:        f.Name,
			Description: f.Description,
			Required:    f.Required,
			Advanced:    f.Advanced,
			Default:     f.Default,
			Example:     f.Example,
			Selector:    string(f.Selector.Type()),
		}
		if f.Selector.Text != nil {
			fv.Multiline = f.Selector.Text.Multiline
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}
