package app

import (
	"errors"
	"fmt"

	"github.com/artpar/mesgate/core/schema"
)

// Errors returned by Dispatcher.Call.
var (
	ErrUnknownService  = errors.New("unknown service")
	ErrNoHandler       = errors.New("no handler registered for service")
	ErrMeterNotFound   = errors.New("meter not found")
	ErrNoEntities      = errors.New("no matching entities")
	ErrUnsupported     = errors.New("operation not supported by meter")
	ErrInvalidReadings = errors.New("invalid readings")
	ErrPortal          = errors.New("portal error")
)

// ValidationError carries every problem found in a call payload.
type ValidationError struct {
	Service string
	Result  schema.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s call: %s", e.Service, e.Result.Error())
}
