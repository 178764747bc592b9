package entity

import "github.com/artpar/mesgate/core/schema"

// Scope names which part of the portal data a refresh fetches.
type Scope string

const (
	ScopeAll                    Scope = "all"
	ScopeAccount                Scope = "account"
	ScopeCurrentBalance         Scope = "current_balance"
	ScopeSubmissionAvailability Scope = "submission_availability"
	ScopeLastPayment            Scope = "last_payment"
	ScopeMeter                  Scope = "meter"
	ScopeInvoice                Scope = "invoice"
)

var serviceScopes = map[string]Scope{
	schema.ServiceUpdate:                       ScopeAll,
	schema.ServiceUpdateAccount:                ScopeAccount,
	schema.ServiceUpdateCurrentBalance:         ScopeCurrentBalance,
	schema.ServiceUpdateSubmissionAvailability: ScopeSubmissionAvailability,
	schema.ServiceUpdateLastPayment:            ScopeLastPayment,
	schema.ServiceUpdateMeter:                  ScopeMeter,
	schema.ServiceUpdateInvoice:                ScopeInvoice,
}

// ScopeForService returns the refresh scope of an update service.
func ScopeForService(service string) (Scope, bool) {
	s, ok := serviceScopes[service]
	return s, ok
}
