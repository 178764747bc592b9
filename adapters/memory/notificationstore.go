package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/mesgate/domain/notification"
	"github.com/artpar/mesgate/ports"
)

// NotificationStore is an in-memory implementation of ports.NotificationStore.
type NotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]notification.Notification
}

// NewNotificationStore creates a new in-memory notification store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{notifications: make(map[string]notification.Notification)}
}

// Notify creates or replaces the notification with n.ID.
func (s *NotificationStore) Notify(ctx context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	return nil
}

// List returns notifications newest first.
func (s *NotificationStore) List(ctx context.Context) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Dismiss removes a notification.
func (s *NotificationStore) Dismiss(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

var _ ports.NotificationStore = (*NotificationStore)(nil)
