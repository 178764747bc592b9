// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/domain/indication"
	"github.com/artpar/mesgate/domain/notification"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides token hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Portal Port
// -----------------------------------------------------------------------------

// SubmitOptions relaxes the portal checks on submitted readings.
type SubmitOptions struct {
	// IgnorePeriod submits outside the submission window.
	IgnorePeriod bool `json:"ignore_period"`

	// IgnoreIndications skips the check against previous readings.
	IgnoreIndications bool `json:"ignore_indications"`
}

// Portal is the utility's personal-account portal.
type Portal interface {
	// SaveIndications submits readings for a meter and returns the
	// portal's comment.
	SaveIndications(ctx context.Context, meterCode string, readings indication.Readings, opts SubmitOptions) (string, error)

	// CalculateCharges asks the portal what the readings would be charged.
	CalculateCharges(ctx context.Context, meterCode string, readings indication.Readings, opts SubmitOptions) (entity.ChargeCalculation, error)

	// Refresh fetches fresh entity data. An empty ids slice refreshes
	// every entity covered by the scope.
	Refresh(ctx context.Context, scope entity.Scope, ids []string) ([]entity.Entity, error)
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// EntityStore holds the current entity states.
type EntityStore interface {
	// List returns all entities ordered by entity id.
	List(ctx context.Context) ([]entity.Entity, error)

	// Get retrieves an entity by entity id.
	Get(ctx context.Context, id string) (entity.Entity, error)

	// FindMeter retrieves the meter entity with the given meter code.
	FindMeter(ctx context.Context, meterCode string) (entity.Entity, error)

	// Upsert creates or replaces entities.
	Upsert(ctx context.Context, entities ...entity.Entity) error
}

// Call statuses.
const (
	CallStatusOK     = "ok"
	CallStatusFailed = "failed"
)

// ServiceCall is one journaled service invocation.
type ServiceCall struct {
	ID         string         `json:"id"`
	Service    string         `json:"service"`
	Payload    map[string]any `json:"payload,omitempty"`
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CallFilter narrows a journal listing.
type CallFilter struct {
	Service string
	Limit   int
}

// CallStore journals service calls.
type CallStore interface {
	// Create stores a call record.
	Create(ctx context.Context, call ServiceCall) error

	// Get retrieves a call by ID.
	Get(ctx context.Context, id string) (ServiceCall, error)

	// List returns calls newest first.
	List(ctx context.Context, filter CallFilter) ([]ServiceCall, error)
}

// Notifier delivers persistent notifications.
type Notifier interface {
	// Notify creates or replaces the notification with n.ID.
	Notify(ctx context.Context, n notification.Notification) error
}

// NotificationStore keeps delivered notifications until dismissed.
type NotificationStore interface {
	Notifier

	// List returns notifications newest first.
	List(ctx context.Context) ([]notification.Notification, error)

	// Dismiss removes a notification.
	Dismiss(ctx context.Context, id string) error
}
