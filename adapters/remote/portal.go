package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/artpar/mesgate/ports"
	"github.com/shopspring/decimal"
)

// Portal implements ports.Portal by delegating to a remote backend.
//
// Contract (JSON, bearer api key):
//
//	POST /indications/push       {meter_code, indications, ignore_period, ignore_indications} -> {comment}
//	POST /indications/calculate  same request -> {period, charged, indications, comment}
//	POST /refresh                {scope, entity_ids} -> {entities: [...]}
type Portal struct {
	client *Client
}

// NewPortal creates a remote portal.
func NewPortal(client *Client) *Portal {
	return &Portal{client: client}
}

type submitRequest struct {
	MeterCode         string  `json:"meter_code"`
	Indications       []int64 `json:"indications"`
	IgnorePeriod      bool    `json:"ignore_period"`
	IgnoreIndications bool    `json:"ignore_indications"`
}

type pushResponse struct {
	Comment string `json:"comment"`
}

type calculateResponse struct {
	Period      string                     `json:"period"`
	Charged     decimal.Decimal            `json:"charged"`
	Indications map[string]decimal.Decimal `json:"indications"`
	Comment     string                     `json:"comment"`
}

type refreshRequest struct {
	Scope     entity.Scope `json:"scope"`
	EntityIDs []string     `json:"entity_ids,omitempty"`
}

type refreshResponse struct {
	Entities []entity.Entity `json:"entities"`
}

func newSubmitRequest(meterCode string, readings indication.Readings, opts ports.SubmitOptions) submitRequest {
	return submitRequest{
		MeterCode:         meterCode,
		Indications:       []int64(readings),
		IgnorePeriod:      opts.IgnorePeriod,
		IgnoreIndications: opts.IgnoreIndications,
	}
}

// SaveIndications submits readings for a meter.
func (p *Portal) SaveIndications(ctx context.Context, meterCode string, readings indication.Readings, opts ports.SubmitOptions) (string, error) {
	var resp pushResponse
	err := p.client.Request(ctx, http.MethodPost, "/indications/push", newSubmitRequest(meterCode, readings, opts), &resp)
	if err != nil {
		return "", meterError(meterCode, err)
	}
	return resp.Comment, nil
}

// CalculateCharges asks the backend what the readings would be charged.
func (p *Portal) CalculateCharges(ctx context.Context, meterCode string, readings indication.Readings, opts ports.SubmitOptions) (entity.ChargeCalculation, error) {
	var resp calculateResponse
	err := p.client.Request(ctx, http.MethodPost, "/indications/calculate", newSubmitRequest(meterCode, readings, opts), &resp)
	if err != nil {
		return entity.ChargeCalculation{}, meterError(meterCode, err)
	}

	calc := entity.ChargeCalculation{
		Charged:     resp.Charged,
		Indications: resp.Indications,
		Comment:     resp.Comment,
	}
	if resp.Period != "" {
		period, err := parsePeriod(resp.Period)
		if err != nil {
			return entity.ChargeCalculation{}, fmt.Errorf("decode period %q: %w", resp.Period, err)
		}
		calc.Period = period
	}
	return calc, nil
}

// Refresh fetches fresh entity data.
func (p *Portal) Refresh(ctx context.Context, scope entity.Scope, ids []string) ([]entity.Entity, error) {
	var resp refreshResponse
	err := p.client.Request(ctx, http.MethodPost, "/refresh", refreshRequest{Scope: scope, EntityIDs: ids}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

// meterError maps a backend 404 to ports.ErrNotFound, keeping the remote error.
func meterError(meterCode string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("meter %s: %w: %w", meterCode, ports.ErrNotFound, err)
	}
	return err
}

func parsePeriod(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// Ensure interface compliance.
var _ ports.Portal = (*Portal)(nil)
