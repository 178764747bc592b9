// Package entity models the accounts, meters and invoices the integration
// exposes, and how service targets select among them.
package entity

import (
	"time"

	"github.com/artpar/mesgate/core/schema"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/shopspring/decimal"
)

// DeviceClass tags an entity for service targeting.
type DeviceClass string

const (
	ClassAccount DeviceClass = "account"
	ClassMeter   DeviceClass = "meter"
	ClassInvoice DeviceClass = "invoice"
)

// Valid reports whether the class is one the integration produces.
func (c DeviceClass) Valid() bool {
	switch c {
	case ClassAccount, ClassMeter, ClassInvoice:
		return true
	default:
		return false
	}
}

// Entity status values.
const (
	StatusOK      = "ok"
	StatusLocked  = "locked"
	StatusUnknown = "unknown"
)

// Currency is the unit of monetary states.
const Currency = "руб."

// Entity is one sensor exposed by the integration.
type Entity struct {
	ID          string      `json:"entity_id"`
	DeviceClass DeviceClass `json:"device_class"`

	// Code is the account code, meter code or invoice id.
	Code        string `json:"code"`
	AccountCode string `json:"account_code,omitempty"`
	Name        string `json:"name"`

	Account *AccountState `json:"account,omitempty"`
	Meter   *MeterState   `json:"meter,omitempty"`
	Invoice *InvoiceState `json:"invoice,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// AccountState is the data behind an account entity.
type AccountState struct {
	Address           string          `json:"address,omitempty"`
	ServiceType       string          `json:"service_type,omitempty"`
	Balance           decimal.Decimal `json:"balance"`
	LastPaymentDate   *time.Time      `json:"last_payment_date,omitempty"`
	LastPaymentAmount decimal.Decimal `json:"last_payment_amount"`
	LastPaymentStatus string          `json:"last_payment_status,omitempty"`
	RemainingDays     *int            `json:"remaining_days,omitempty"`
	SubmissionOpen    bool            `json:"submission_open"`
	Locked            bool            `json:"locked"`
	LockReason        string          `json:"lock_reason,omitempty"`
}

// MeterState is the data behind a meter entity.
type MeterState struct {
	Status        string              `json:"status,omitempty"`
	InstallDate   *time.Time          `json:"install_date,omitempty"`
	PeriodStart   *time.Time          `json:"period_start,omitempty"`
	PeriodEnd     *time.Time          `json:"period_end,omitempty"`
	RemainingDays *int                `json:"remaining_days,omitempty"`
	Last          indication.Readings `json:"last,omitempty"`
	Submitted     indication.Readings `json:"submitted,omitempty"`
	Today         indication.Readings `json:"today,omitempty"`

	CanPush      bool `json:"can_push"`
	CanCalculate bool `json:"can_calculate"`
}

// InvoiceState is the data behind an invoice entity.
type InvoiceState struct {
	InvoiceID string          `json:"invoice_id"`
	Period    time.Time       `json:"period"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Initial   decimal.Decimal `json:"initial"`
	Charged   decimal.Decimal `json:"charged"`
	Insurance decimal.Decimal `json:"insurance"`
	Benefits  decimal.Decimal `json:"benefits"`
	Penalty   decimal.Decimal `json:"penalty"`
	Service   decimal.Decimal `json:"service"`
}

// ChargeCalculation is the result of calculating charges for readings.
type ChargeCalculation struct {
	Period      time.Time                  `json:"period"`
	Charged     decimal.Decimal            `json:"charged"`
	Indications map[string]decimal.Decimal `json:"indications,omitempty"`
	Comment     string                     `json:"comment,omitempty"`
}

// State returns the entity state as shown to users.
func (e Entity) State() string {
	switch {
	case e.Account != nil:
		if e.Account.Locked {
			return StatusUnknown
		}
		return e.Account.Balance.StringFixed(2)
	case e.Meter != nil:
		if e.Meter.Status != "" {
			return e.Meter.Status
		}
		return StatusOK
	case e.Invoice != nil:
		return e.Invoice.Total.Round(2).StringFixed(2)
	default:
		return StatusUnknown
	}
}

// Unit returns the unit of measurement of the state, if any.
func (e Entity) Unit() string {
	switch {
	case e.Account != nil && !e.Account.Locked:
		return Currency
	case e.Invoice != nil:
		return Currency
	default:
		return ""
	}
}

// Matches reports whether the entity is selected by a service target.
// This is a PURE function.
func Matches(e Entity, target schema.Target) bool {
	f := target.Entity
	if f.Integration != "" && f.Integration != schema.Integration {
		return false
	}
	if f.DeviceClass != "" && DeviceClass(f.DeviceClass) != e.DeviceClass {
		return false
	}
	return true
}

// Filter narrows a set of entities to those a target selects. When ids is
// non-empty, only the listed entities are kept.
// This is a PURE function.
func Filter(all []Entity, target schema.Target, ids []string) []Entity {
	var wanted map[string]bool
	if len(ids) > 0 {
		wanted = make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}

	var out []Entity
	for _, e := range all {
		if wanted != nil && !wanted[e.ID] {
			continue
		}
		if Matches(e, target) {
			out = append(out, e)
		}
	}
	return out
}
