// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/artpar/mesgate/core/events"
	"github.com/artpar/mesgate/core/schema"
	"github.com/artpar/mesgate/core/validation"
	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/ports"
	"github.com/rs/zerolog"
)

// Result is the outcome of a successful service call.
type Result struct {
	CallID  string         `json:"call_id"`
	Service string         `json:"service"`
	Data    map[string]any `json:"data,omitempty"`
}

// invocation is one validated call on its way through a handler.
type invocation struct {
	id      string
	service schema.Service
	call    validation.Call
	logger  zerolog.Logger
}

type handlerFunc func(ctx context.Context, inv invocation) (map[string]any, error)

// Dispatcher routes service calls to their handlers.
type Dispatcher struct {
	schema    *SchemaService
	entities  ports.EntityStore
	portal    ports.Portal
	notifier  ports.Notifier
	calls     ports.CallStore
	bus       *events.Bus
	metrics   Recorder
	clock     ports.Clock
	idGen     ports.IDGenerator
	logger    zerolog.Logger
	notifyOff atomic.Bool

	handlers map[string]handlerFunc
}

// DispatcherDeps contains dependencies for Dispatcher.
type DispatcherDeps struct {
	Schema   *SchemaService
	Entities ports.EntityStore
	Portal   ports.Portal
	Notifier ports.Notifier  // optional
	Calls    ports.CallStore // optional
	Bus      *events.Bus
	Metrics  Recorder // optional
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   zerolog.Logger
}

// DispatcherConfig contains configuration for Dispatcher.
type DispatcherConfig struct {
	// DisableNotifications suppresses notifications even when a call asks for one.
	DisableNotifications bool
}

// NewDispatcher creates a dispatcher with handlers for every built-in service.
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		schema:   deps.Schema,
		entities: deps.Entities,
		portal:   deps.Portal,
		notifier: deps.Notifier,
		calls:    deps.Calls,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		logger:   deps.Logger,
	}
	d.notifyOff.Store(cfg.DisableNotifications)
	if d.metrics == nil {
		d.metrics = NopRecorder{}
	}
	if d.bus == nil {
		d.bus = events.NewBus(deps.Logger)
	}

	d.handlers = map[string]handlerFunc{
		schema.ServicePushIndications:      d.pushIndications,
		schema.ServiceCalculateIndications: d.calculateIndications,
	}
	for _, name := range []string{
		schema.ServiceUpdate,
		schema.ServiceUpdateAccount,
		schema.ServiceUpdateCurrentBalance,
		schema.ServiceUpdateSubmissionAvailability,
		schema.ServiceUpdateLastPayment,
		schema.ServiceUpdateMeter,
		schema.ServiceUpdateInvoice,
	} {
		scope, _ := entity.ScopeForService(name)
		d.handlers[name] = d.refresh(scope)
	}

	return d
}

// UpdateConfig applies reloadable configuration.
func (d *Dispatcher) UpdateConfig(cfg DispatcherConfig) {
	d.notifyOff.Store(cfg.DisableNotifications)
}

// HasHandler reports whether a handler is registered for service.
func (d *Dispatcher) HasHandler(service string) bool {
	_, ok := d.handlers[service]
	return ok
}

// Call validates data against the named service and runs its handler.
// Validation failures return *ValidationError; no handler runs for them.
func (d *Dispatcher) Call(ctx context.Context, service string, data map[string]any) (Result, error) {
	svc, ok := d.schema.Document().Service(service)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	start := d.clock.Now()
	inv := invocation{
		id:      d.idGen.New(),
		service: svc,
	}
	inv.logger = d.logger.With().
		Str("service", service).
		Str("call_id", inv.id).
		Logger()

	call, result := validation.ValidateCall(svc, data)
	if !result.Valid {
		d.metrics.ValidationFailed(service)
		err := &ValidationError{Service: service, Result: result}
		d.finish(ctx, inv, data, start, nil, err)
		return Result{}, err
	}
	inv.call = call

	handler, ok := d.handlers[service]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoHandler, service)
		d.finish(ctx, inv, data, start, nil, err)
		return Result{}, err
	}

	out, err := handler(ctx, inv)
	d.finish(ctx, inv, data, start, out, err)
	if err != nil {
		return Result{}, err
	}

	return Result{CallID: inv.id, Service: service, Data: out}, nil
}

// finish journals the call and records metrics. Journal failures are
// logged, never returned.
func (d *Dispatcher) finish(ctx context.Context, inv invocation, payload map[string]any, start time.Time, out map[string]any, callErr error) {
	elapsed := d.clock.Now().Sub(start)

	status := ports.CallStatusOK
	if callErr != nil {
		status = ports.CallStatusFailed
	}
	d.metrics.CallCompleted(inv.service.Name, status, elapsed)

	evt := inv.logger.Info()
	if callErr != nil {
		evt = inv.logger.Warn().Err(callErr)
	}
	evt.Str("status", status).Dur("duration", elapsed).Msg("service call")

	if d.calls == nil {
		return
	}

	record := ports.ServiceCall{
		ID:         inv.id,
		Service:    inv.service.Name,
		Payload:    payload,
		Status:     status,
		Result:     out,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  start,
	}
	if callErr != nil {
		record.Error = callErr.Error()
	}
	if err := d.calls.Create(ctx, record); err != nil {
		inv.logger.Error().Err(err).Msg("failed to journal service call")
	}
}

// Sync refreshes every entity from the portal without journaling.
func (d *Dispatcher) Sync(ctx context.Context) (int, error) {
	fetched, err := d.portal.Refresh(ctx, entity.ScopeAll, nil)
	if err != nil {
		d.metrics.PortalFailed("refresh")
		return 0, fmt.Errorf("%w: %w", ErrPortal, err)
	}
	if err := d.entities.Upsert(ctx, fetched...); err != nil {
		return 0, fmt.Errorf("store entities: %w", err)
	}
	d.trackEntities(ctx)
	return len(fetched), nil
}

func (d *Dispatcher) trackEntities(ctx context.Context) {
	all, err := d.entities.List(ctx)
	if err != nil {
		return
	}
	d.metrics.EntitiesTracked(len(all))
}

// IsNotFound reports whether err means a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound) ||
		errors.Is(err, ErrMeterNotFound) ||
		errors.Is(err, ErrNoEntities)
}
