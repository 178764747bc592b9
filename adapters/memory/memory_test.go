package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/mesgate/adapters/clock"
	"github.com/artpar/mesgate/adapters/memory"
	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/artpar/mesgate/domain/notification"
	"github.com/artpar/mesgate/ports"
	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

const demoMeter = "12345678"

// EntityStore tests

func TestEntityStore_UpsertAndGet(t *testing.T) {
	store := memory.NewEntityStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, memory.DemoEntities(now)...); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all, _ := store.List(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID > all[i].ID {
			t.Errorf("List not ordered: %s before %s", all[i-1].ID, all[i].ID)
		}
	}

	meter, err := store.FindMeter(ctx, demoMeter)
	if err != nil {
		t.Fatalf("FindMeter failed: %v", err)
	}
	got, err := store.Get(ctx, meter.ID)
	if err != nil || got.Code != demoMeter {
		t.Errorf("Get(%s) = %+v, %v", meter.ID, got, err)
	}
}

func TestEntityStore_NotFound(t *testing.T) {
	store := memory.NewEntityStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "sensor.missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.FindMeter(ctx, "000"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("FindMeter error = %v, want ErrNotFound", err)
	}
}

// NotificationStore tests

func TestNotificationStore(t *testing.T) {
	store := memory.NewNotificationStore()
	ctx := context.Background()

	first := notification.ForCalculation("1", "first")
	first.CreatedAt = now
	second := notification.ForCalculation("2", "second")
	second.CreatedAt = now.Add(time.Minute)

	store.Notify(ctx, first)
	store.Notify(ctx, second)

	replaced := first
	replaced.Message = "replaced"
	store.Notify(ctx, replaced)

	list, _ := store.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("newest first: got %s", list[0].ID)
	}
	if list[1].Message != "replaced" {
		t.Errorf("Notify should replace by id, got %q", list[1].Message)
	}

	if err := store.Dismiss(ctx, first.ID); err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	if err := store.Dismiss(ctx, first.ID); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("second Dismiss error = %v, want ErrNotFound", err)
	}
}

// Portal tests

func newPortal() (*memory.Portal, *clock.Fake) {
	c := clock.NewFake(now)
	return memory.NewPortal(c, decimal.Zero, memory.DemoEntities(now)...), c
}

func TestPortal_SaveIndications(t *testing.T) {
	portal, _ := newPortal()
	ctx := context.Background()

	comment, err := portal.SaveIndications(ctx, demoMeter, indication.Readings{12400, 6800}, ports.SubmitOptions{})
	if err != nil {
		t.Fatalf("SaveIndications failed: %v", err)
	}
	if comment == "" {
		t.Error("expected a portal comment")
	}

	meters, _ := portal.Refresh(ctx, entity.ScopeMeter, nil)
	if len(meters) != 1 {
		t.Fatalf("expected 1 meter, got %d", len(meters))
	}
	if !meters[0].Meter.Submitted.Equal(indication.Readings{12400, 6800}) {
		t.Errorf("Submitted = %v", meters[0].Meter.Submitted)
	}
}

func TestPortal_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		advance  time.Duration
		readings indication.Readings
		opts     ports.SubmitOptions
		wantErr  error
	}{
		{"lower readings", 0, indication.Readings{1, 1}, ports.SubmitOptions{}, memory.ErrReadingsLower},
		{"lower readings ignored", 0, indication.Readings{1, 1}, ports.SubmitOptions{IgnoreIndications: true}, nil},
		{"tariff mismatch", 0, indication.Readings{12400}, ports.SubmitOptions{}, memory.ErrTariffMismatch},
		{"period closed", 30 * 24 * time.Hour, indication.Readings{12400, 6800}, ports.SubmitOptions{}, memory.ErrPeriodClosed},
		{"period ignored", 30 * 24 * time.Hour, indication.Readings{12400, 6800}, ports.SubmitOptions{IgnorePeriod: true}, nil},
		{"unknown meter", 0, nil, ports.SubmitOptions{}, memory.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			portal, c := newPortal()
			c.Advance(tt.advance)

			code := demoMeter
			if tt.readings == nil {
				code = "000"
			}

			_, err := portal.SaveIndications(ctx, code, tt.readings, tt.opts)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPortal_CalculateCharges(t *testing.T) {
	portal, _ := newPortal()

	calc, err := portal.CalculateCharges(context.Background(), demoMeter, indication.Readings{12445, 6789}, ports.SubmitOptions{})
	if err != nil {
		t.Fatalf("CalculateCharges failed: %v", err)
	}

	want := memory.DefaultRate.Mul(decimal.NewFromInt(100)).Round(2)
	if !calc.Charged.Equal(want) {
		t.Errorf("Charged = %s, want %s", calc.Charged, want)
	}
	if !calc.Indications["t2"].Equal(decimal.NewFromInt(6789)) {
		t.Errorf("Indications = %v", calc.Indications)
	}
	if calc.Period != time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Period = %v", calc.Period)
	}
	if calc.Comment == "" {
		t.Error("expected a comment")
	}
}

func TestPortal_RefreshScopes(t *testing.T) {
	portal, _ := newPortal()
	ctx := context.Background()

	tests := []struct {
		scope entity.Scope
		ids   []string
		want  int
	}{
		{entity.ScopeAll, nil, 3},
		{entity.ScopeCurrentBalance, nil, 1},
		{entity.ScopeInvoice, nil, 1},
		{entity.ScopeAll, []string{"sensor.mes_invoice_1234567890"}, 1},
		{entity.ScopeMeter, []string{"sensor.mes_invoice_1234567890"}, 0},
	}

	for _, tt := range tests {
		got, err := portal.Refresh(ctx, tt.scope, tt.ids)
		if err != nil {
			t.Fatalf("Refresh(%s) failed: %v", tt.scope, err)
		}
		if len(got) != tt.want {
			t.Errorf("Refresh(%s, %v) = %d entities, want %d", tt.scope, tt.ids, len(got), tt.want)
		}
		for _, e := range got {
			if !e.UpdatedAt.Equal(now) {
				t.Errorf("%s UpdatedAt = %v", e.ID, e.UpdatedAt)
			}
		}
	}
}

// Fixture tests

func TestLoadEntities(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entities.json")
	os.WriteFile(path, []byte(`[
		{"entity_id": "sensor.meter_1", "device_class": "meter", "code": "M1",
		 "meter": {"last": [10, 20], "can_push": true}},
		{"entity_id": "sensor.account_1", "device_class": "account", "code": "A1",
		 "account": {"balance": "12.50"}}
	]`), 0644)

	entities, err := memory.LoadEntities(path)
	if err != nil {
		t.Fatalf("LoadEntities failed: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if !entities[0].Meter.Last.Equal(indication.Readings{10, 20}) {
		t.Errorf("Last = %v", entities[0].Meter.Last)
	}
	if !entities[1].Account.Balance.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Balance = %s", entities[1].Account.Balance)
	}
}

func TestLoadEntities_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"missing id":   `[{"device_class": "meter", "meter": {}}]`,
		"bad class":    `[{"entity_id": "sensor.x", "device_class": "lamp"}]`,
		"duplicate":    `[{"entity_id": "sensor.x", "device_class": "invoice"}, {"entity_id": "sensor.x", "device_class": "invoice"}]`,
		"meter state":  `[{"entity_id": "sensor.x", "device_class": "meter"}]`,
		"invalid json": `[{`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			os.WriteFile(path, []byte(content), 0644)
			if _, err := memory.LoadEntities(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
