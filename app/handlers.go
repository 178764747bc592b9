package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/mesgate/core/events"
	"github.com/artpar/mesgate/core/schema"
	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/artpar/mesgate/domain/notification"
	"github.com/artpar/mesgate/ports"
)

// pushIndications submits meter readings to the portal.
func (d *Dispatcher) pushIndications(ctx context.Context, inv invocation) (map[string]any, error) {
	meter, readings, opts, err := d.prepareSubmission(ctx, inv, func(m *entity.MeterState) bool { return m.CanPush })
	if err != nil {
		return nil, err
	}

	comment, err := d.portal.SaveIndications(ctx, meter.Code, readings, opts)
	if err != nil {
		d.metrics.PortalFailed("push")
		return nil, fmt.Errorf("%w: push indications for meter %s: %w", ErrPortal, meter.Code, err)
	}

	data := map[string]any{
		"entity_id":   meter.ID,
		"meter_code":  meter.Code,
		"indications": []int64(readings),
		"comment":     comment,
	}

	d.bus.Publish(ctx, events.Event{
		Name:    events.PushResult,
		Service: inv.service.Name,
		CallID:  inv.id,
		Data:    data,
	})

	d.notify(ctx, inv, notification.ForPush(meter.Code, meter.Meter.PeriodStart, meter.Meter.PeriodEnd), data)

	// Submitted readings change the account state; refresh it.
	d.refreshAccount(ctx, inv, meter.AccountCode)

	return data, nil
}

// calculateIndications asks the portal what the readings would be charged.
func (d *Dispatcher) calculateIndications(ctx context.Context, inv invocation) (map[string]any, error) {
	meter, readings, opts, err := d.prepareSubmission(ctx, inv, func(m *entity.MeterState) bool { return m.CanCalculate })
	if err != nil {
		return nil, err
	}

	calc, err := d.portal.CalculateCharges(ctx, meter.Code, readings, opts)
	if err != nil {
		d.metrics.PortalFailed("calculate")
		return nil, fmt.Errorf("%w: calculate charges for meter %s: %w", ErrPortal, meter.Code, err)
	}

	tariffs := make(map[string]string, len(calc.Indications))
	for k, v := range calc.Indications {
		tariffs[k] = v.String()
	}

	data := map[string]any{
		"entity_id":        meter.ID,
		"meter_code":       meter.Code,
		"indications":      []int64(readings),
		"period":           calc.Period.Format("2006-01-02"),
		"charged":          calc.Charged.StringFixed(2),
		"indications_dict": tariffs,
		"comment":          calc.Comment,
	}

	d.bus.Publish(ctx, events.Event{
		Name:    events.CalculationResult,
		Service: inv.service.Name,
		CallID:  inv.id,
		Data:    data,
	})

	d.notify(ctx, inv, notification.ForCalculation(meter.Code, calc.Comment), data)

	return data, nil
}

// prepareSubmission resolves the meter, checks its capability and computes
// the readings to send.
func (d *Dispatcher) prepareSubmission(ctx context.Context, inv invocation, capable func(*entity.MeterState) bool) (entity.Entity, indication.Readings, ports.SubmitOptions, error) {
	var opts ports.SubmitOptions

	meter, err := d.resolveMeter(ctx, inv)
	if err != nil {
		return entity.Entity{}, nil, opts, err
	}
	if !capable(meter.Meter) {
		return entity.Entity{}, nil, opts, fmt.Errorf("%w: %s %s", ErrUnsupported, inv.service.Name, meter.Code)
	}

	input, err := indication.Parse(inv.call.Data[schema.FieldIndications])
	if err != nil {
		return entity.Entity{}, nil, opts, fmt.Errorf("%w: %w", ErrInvalidReadings, err)
	}

	readings := indication.Resolve(input, inv.call.Bool(schema.FieldIncremental), meter.Meter.Last, meter.Meter.Submitted)
	opts = ports.SubmitOptions{
		IgnorePeriod:      inv.call.Bool(schema.FieldIgnorePeriod),
		IgnoreIndications: inv.call.Bool(schema.FieldIgnoreIndications),
	}

	inv.logger.Debug().
		Str("meter_code", meter.Code).
		Str("entity_id", meter.ID).
		Stringer("readings", readings).
		Msg("readings resolved")

	return meter, readings, opts, nil
}

// resolveMeter finds the meter a call addresses by meter code or entity id.
func (d *Dispatcher) resolveMeter(ctx context.Context, inv invocation) (entity.Entity, error) {
	var (
		meter entity.Entity
		err   error
		ref   string
	)
	switch {
	case inv.call.MeterCode != "":
		ref = inv.call.MeterCode
		meter, err = d.entities.FindMeter(ctx, ref)
	case len(inv.call.EntityIDs) > 0:
		ref = inv.call.EntityIDs[0]
		meter, err = d.entities.Get(ctx, ref)
	default:
		return entity.Entity{}, fmt.Errorf("%w: call names no meter", ErrMeterNotFound)
	}

	if errors.Is(err, ports.ErrNotFound) {
		return entity.Entity{}, fmt.Errorf("%w: %s", ErrMeterNotFound, ref)
	}
	if err != nil {
		return entity.Entity{}, fmt.Errorf("lookup meter %s: %w", ref, err)
	}
	if meter.DeviceClass != entity.ClassMeter || meter.Meter == nil {
		return entity.Entity{}, fmt.Errorf("%w: %s is not a meter", ErrMeterNotFound, ref)
	}
	return meter, nil
}

// notify creates the notification a call asked for. The notification field
// is either a boolean or a mapping of overrides.
func (d *Dispatcher) notify(ctx context.Context, inv invocation, n notification.Notification, data map[string]any) {
	if d.notifier == nil || d.notifyOff.Load() {
		return
	}

	switch v := inv.call.Data[schema.FieldNotification].(type) {
	case bool:
		if !v {
			return
		}
	case map[string]string:
		n = notification.ApplyOverrides(n, v, data)
	default:
		return
	}

	n.CreatedAt = d.clock.Now()
	if err := d.notifier.Notify(ctx, n); err != nil {
		inv.logger.Error().Err(err).Str("notification_id", n.ID).Msg("failed to create notification")
	}
}

// refreshAccount re-reads every entity of an account. Failures are logged.
func (d *Dispatcher) refreshAccount(ctx context.Context, inv invocation, accountCode string) {
	if accountCode == "" {
		return
	}

	all, err := d.entities.List(ctx)
	if err != nil {
		inv.logger.Warn().Err(err).Msg("account refresh skipped")
		return
	}

	var ids []string
	for _, e := range all {
		if e.AccountCode == accountCode || (e.DeviceClass == entity.ClassAccount && e.Code == accountCode) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	fetched, err := d.portal.Refresh(ctx, entity.ScopeAll, ids)
	if err != nil {
		d.metrics.PortalFailed("refresh")
		inv.logger.Warn().Err(err).Str("account_code", accountCode).Msg("account refresh failed")
		return
	}
	if err := d.entities.Upsert(ctx, fetched...); err != nil {
		inv.logger.Warn().Err(err).Msg("failed to store refreshed entities")
		return
	}
	inv.logger.Debug().Str("account_code", accountCode).Int("entities", len(fetched)).Msg("account refreshed")
}

// refresh returns the handler of an update service with the given scope.
func (d *Dispatcher) refresh(scope entity.Scope) handlerFunc {
	return func(ctx context.Context, inv invocation) (map[string]any, error) {
		ids := inv.call.EntityIDs
		if len(ids) > 0 {
			known, err := d.entities.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("list entities: %w", err)
			}
			selected := entity.Filter(known, inv.service.Target, ids)
			if len(selected) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrNoEntities, ids)
			}
			ids = make([]string, 0, len(selected))
			for _, e := range selected {
				ids = append(ids, e.ID)
			}
		}

		fetched, err := d.portal.Refresh(ctx, scope, ids)
		if err != nil {
			d.metrics.PortalFailed("refresh")
			return nil, fmt.Errorf("%w: refresh %s: %w", ErrPortal, scope, err)
		}
		fetched = entity.Filter(fetched, inv.service.Target, nil)

		if err := d.entities.Upsert(ctx, fetched...); err != nil {
			return nil, fmt.Errorf("store entities: %w", err)
		}
		d.trackEntities(ctx)

		updated := make([]string, 0, len(fetched))
		for _, e := range fetched {
			updated = append(updated, e.ID)
		}
		return map[string]any{
			"scope":   string(scope),
			"updated": updated,
		}, nil
	}
}
