package schema

import (
	_ "embed"
	"fmt"
)

// Integration is the identifier services use to target every entity of
// the integration.
const Integration = "mosenergosbyt"

// Service names declared by the built-in document.
const (
	ServicePushIndications              = "push_indications"
	ServiceCalculateIndications         = "calculate_indications"
	ServiceUpdate                       = "update"
	ServiceUpdateAccount                = "update_account"
	ServiceUpdateCurrentBalance         = "update_current_balance"
	ServiceUpdateSubmissionAvailability = "update_submission_availability"
	ServiceUpdateLastPayment            = "update_last_payment"
	ServiceUpdateMeter                  = "update_meter"
	ServiceUpdateInvoice                = "update_invoice"
)

// Field names of the indications services.
const (
	FieldIndications       = "indications"
	FieldIncremental       = "incremental"
	FieldNotification      = "notification"
	FieldIgnorePeriod      = "ignore_period"
	FieldIgnoreIndications = "ignore_indications"
)

//go:embed services.yaml
var builtinYAML []byte

var builtin *Document

func init() {
	doc, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("schema: built-in services.yaml: %v", err))
	}
	builtin = doc
}

// Builtin returns the embedded service schema document.
// Callers must not modify it.
func Builtin() *Document {
	return builtin
}

// BuiltinYAML returns the embedded document source.
func BuiltinYAML() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}
