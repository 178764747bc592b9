package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/artpar/mesgate/ports"
	"github.com/shopspring/decimal"
)

// Portal rejections.
var (
	ErrPeriodClosed   = errors.New("submission period is closed")
	ErrReadingsLower  = errors.New("readings are lower than the previous ones")
	ErrTariffMismatch = errors.New("number of readings does not match the meter tariffs")
)

// DefaultRate is the price of one kWh used when no rate is configured.
var DefaultRate = decimal.RequireFromString("6.43")

// Portal simulates the utility portal on a fixed set of entities.
// Submitted readings are remembered and reflected by Refresh.
type Portal struct {
	mu       sync.RWMutex
	clock    ports.Clock
	rate     decimal.Decimal
	entities map[string]entity.Entity
}

// NewPortal creates a simulated portal holding the given entities.
func NewPortal(clock ports.Clock, rate decimal.Decimal, entities ...entity.Entity) *Portal {
	if rate.IsZero() {
		rate = DefaultRate
	}
	p := &Portal{
		clock:    clock,
		rate:     rate,
		entities: make(map[string]entity.Entity, len(entities)),
	}
	for _, e := range entities {
		p.entities[e.ID] = e
	}
	return p
}

// SaveIndications checks and stores submitted readings.
func (p *Portal) SaveIndications(ctx context.Context, meterCode string, readings indication.Readings, opts ports.SubmitOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	meter, err := p.check(meterCode, readings, opts)
	if err != nil {
		return "", err
	}

	state := *meter.Meter
	state.Submitted = append(indication.Readings(nil), readings...)
	meter.Meter = &state
	meter.UpdatedAt = p.clock.Now()
	p.entities[meter.ID] = meter

	return fmt.Sprintf("Показания %s по счётчику №%s приняты", readings, meterCode), nil
}

// CalculateCharges prices the consumption since the last readings.
func (p *Portal) CalculateCharges(ctx context.Context, meterCode string, readings indication.Readings, opts ports.SubmitOptions) (entity.ChargeCalculation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	meter, err := p.check(meterCode, readings, opts)
	if err != nil {
		return entity.ChargeCalculation{}, err
	}

	now := p.clock.Now()
	calc := entity.ChargeCalculation{
		Period:      time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		Charged:     decimal.Zero,
		Indications: make(map[string]decimal.Decimal, len(readings)),
	}

	for i, r := range readings {
		key := fmt.Sprintf("t%d", i+1)
		calc.Indications[key] = decimal.NewFromInt(r)

		var prev int64
		if i < len(meter.Meter.Last) {
			prev = meter.Meter.Last[i]
		}
		if used := r - prev; used > 0 {
			calc.Charged = calc.Charged.Add(p.rate.Mul(decimal.NewFromInt(used)))
		}
	}
	calc.Charged = calc.Charged.Round(2)
	calc.Comment = fmt.Sprintf("Начислено %s %s за %s", calc.Charged.StringFixed(2), entity.Currency, calc.Period.Format("01.2006"))

	return calc, nil
}

// check validates a submission. Callers hold p.mu.
func (p *Portal) check(meterCode string, readings indication.Readings, opts ports.SubmitOptions) (entity.Entity, error) {
	meter, ok := p.meter(meterCode)
	if !ok {
		return entity.Entity{}, fmt.Errorf("meter %s: %w", meterCode, ErrNotFound)
	}
	m := meter.Meter

	if !opts.IgnorePeriod && m.PeriodStart != nil && m.PeriodEnd != nil {
		now := p.clock.Now()
		if now.Before(*m.PeriodStart) || now.After(m.PeriodEnd.Add(24*time.Hour)) {
			return entity.Entity{}, ErrPeriodClosed
		}
	}

	if len(m.Last) > 0 && len(readings) != len(m.Last) {
		return entity.Entity{}, ErrTariffMismatch
	}

	if !opts.IgnoreIndications {
		for i, r := range readings {
			if i < len(m.Last) && r < m.Last[i] {
				return entity.Entity{}, fmt.Errorf("tariff t%d: %w", i+1, ErrReadingsLower)
			}
		}
	}

	return meter, nil
}

func (p *Portal) meter(code string) (entity.Entity, bool) {
	for _, e := range p.entities {
		if e.DeviceClass == entity.ClassMeter && e.Code == code && e.Meter != nil {
			return e, true
		}
	}
	return entity.Entity{}, false
}

// Refresh returns current copies of the entities covered by scope.
func (p *Portal) Refresh(ctx context.Context, scope entity.Scope, ids []string) ([]entity.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	now := p.clock.Now()
	var out []entity.Entity
	for id, e := range p.entities {
		if len(wanted) > 0 && !wanted[id] {
			continue
		}
		if !inScope(e, scope) {
			continue
		}
		e.UpdatedAt = now
		p.entities[id] = e
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func inScope(e entity.Entity, scope entity.Scope) bool {
	switch scope {
	case entity.ScopeAll:
		return true
	case entity.ScopeMeter:
		return e.DeviceClass == entity.ClassMeter
	case entity.ScopeInvoice:
		return e.DeviceClass == entity.ClassInvoice
	default:
		return e.DeviceClass == entity.ClassAccount
	}
}

var _ ports.Portal = (*Portal)(nil)
