package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/shopspring/decimal"
)

// LoadEntities reads a JSON array of entities for the simulated portal.
func LoadEntities(path string) ([]entity.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	var entities []entity.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	seen := make(map[string]bool, len(entities))
	for i, e := range entities {
		if e.ID == "" {
			return nil, fmt.Errorf("fixture %d: entity_id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("fixture %d: duplicate entity_id %q", i, e.ID)
		}
		seen[e.ID] = true
		if !e.DeviceClass.Valid() {
			return nil, fmt.Errorf("fixture %s: invalid device_class %q", e.ID, e.DeviceClass)
		}
		if e.DeviceClass == entity.ClassMeter && e.Meter == nil {
			return nil, fmt.Errorf("fixture %s: meter state is required", e.ID)
		}
	}
	return entities, nil
}

// DemoEntities returns one account with a two-tariff meter and an invoice.
// The submission period is open around now.
func DemoEntities(now time.Time) []entity.Entity {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := day.AddDate(0, 0, -5)
	end := day.AddDate(0, 0, 5)
	remaining := 5
	paid := day.AddDate(0, -1, 0)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	return []entity.Entity{
		{
			ID:          "sensor.mes_account_1234567890",
			DeviceClass: entity.ClassAccount,
			Code:        "1234567890",
			Name:        "ЛС 1234567890",
			Account: &entity.AccountState{
				Address:           "г. Москва",
				ServiceType:       "Электроэнергия",
				Balance:           decimal.RequireFromString("-512.34"),
				LastPaymentDate:   &paid,
				LastPaymentAmount: decimal.RequireFromString("1200.00"),
				LastPaymentStatus: "accepted",
				RemainingDays:     &remaining,
				SubmissionOpen:    true,
			},
		},
		{
			ID:          "sensor.mes_meter_1234567890_12345678",
			DeviceClass: entity.ClassMeter,
			Code:        "12345678",
			AccountCode: "1234567890",
			Name:        "Счётчик №12345678",
			Meter: &entity.MeterState{
				Status:        entity.StatusOK,
				PeriodStart:   &start,
				PeriodEnd:     &end,
				RemainingDays: &remaining,
				Last:          indication.Readings{12345, 6789},
				CanPush:       true,
				CanCalculate:  true,
			},
		},
		{
			ID:          "sensor.mes_invoice_1234567890",
			DeviceClass: entity.ClassInvoice,
			Code:        "1234567890",
			AccountCode: "1234567890",
			Name:        "Квитанция 1234567890",
			Invoice: &entity.InvoiceState{
				InvoiceID: "INV-" + month.Format("200601"),
				Period:    month,
				Total:     decimal.RequireFromString("1712.34"),
				Paid:      decimal.RequireFromString("1200.00"),
				Initial:   decimal.RequireFromString("1200.00"),
				Charged:   decimal.RequireFromString("1712.34"),
			},
		},
	}
}
