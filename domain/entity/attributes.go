package entity

import (
	"fmt"
)

// Attribution is attached to every entity's attributes.
const Attribution = "Data provided by Mosenergosbyt"

// Attributes renders the state attributes of an entity.
// This is a PURE function.
func Attributes(e Entity) map[string]any {
	attrs := map[string]any{
		"attribution": Attribution,
	}

	switch {
	case e.Account != nil:
		accountAttributes(e, attrs)
	case e.Meter != nil:
		meterAttributes(e, attrs)
	case e.Invoice != nil:
		invoiceAttributes(e, attrs)
	}

	return attrs
}

func accountAttributes(e Entity, attrs map[string]any) {
	a := e.Account
	attrs["account_code"] = e.Code
	attrs["address"] = a.Address
	attrs["service_type"] = a.ServiceType

	if a.Locked {
		attrs["status"] = StatusLocked
		attrs["reason"] = a.LockReason
		return
	}

	attrs["status"] = StatusOK
	attrs["last_payment_amount"] = a.LastPaymentAmount.StringFixed(2)
	attrs["last_payment_status"] = a.LastPaymentStatus
	attrs["submission_open"] = a.SubmissionOpen
	if a.LastPaymentDate != nil {
		attrs["last_payment_date"] = a.LastPaymentDate.Format("2006-01-02")
	}
	if a.RemainingDays != nil {
		attrs["remaining_days"] = *a.RemainingDays
	}
}

func meterAttributes(e Entity, attrs map[string]any) {
	m := e.Meter
	attrs["meter_code"] = e.Code
	attrs["account_code"] = e.AccountCode
	if m.RemainingDays != nil {
		attrs["remaining_days"] = *m.RemainingDays
	}
	if m.InstallDate != nil {
		attrs["install_date"] = m.InstallDate.Format("2006-01-02")
	}
	if m.PeriodStart != nil {
		attrs["submit_period_start"] = m.PeriodStart.Format("2006-01-02")
	}
	if m.PeriodEnd != nil {
		attrs["submit_period_end"] = m.PeriodEnd.Format("2006-01-02")
	}

	for i, v := range m.Last {
		attrs[fmt.Sprintf("last_value_t%d", i+1)] = v
	}
	for i, v := range m.Submitted {
		attrs[fmt.Sprintf("submitted_value_t%d", i+1)] = v
	}
	for i, v := range m.Today {
		attrs[fmt.Sprintf("today_value_t%d", i+1)] = v
	}
}

func invoiceAttributes(e Entity, attrs map[string]any) {
	inv := e.Invoice
	attrs["period"] = inv.Period.Format("2006-01-02")
	attrs["invoice_id"] = inv.InvoiceID
	attrs["total"] = inv.Total.StringFixed(2)
	attrs["paid"] = inv.Paid.StringFixed(2)
	attrs["initial"] = inv.Initial.StringFixed(2)
	attrs["charged"] = inv.Charged.StringFixed(2)
	attrs["insurance"] = inv.Insurance.StringFixed(2)
	attrs["benefits"] = inv.Benefits.StringFixed(2)
	attrs["penalty"] = inv.Penalty.StringFixed(2)
	attrs["service"] = inv.Service.StringFixed(2)
}
