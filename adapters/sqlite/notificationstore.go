package sqlite

import (
	"context"

	"github.com/artpar/mesgate/domain/notification"
	"github.com/artpar/mesgate/ports"
)

// NotificationStore implements ports.NotificationStore using SQLite.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a new SQLite notification store.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Notify creates or replaces the notification with n.ID.
func (s *NotificationStore) Notify(ctx context.Context, n notification.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, title, message, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			message = excluded.message,
			created_at = excluded.created_at
	`, n.ID, n.Title, n.Message, n.CreatedAt.UTC())
	return err
}

// List returns notifications newest first.
func (s *NotificationStore) List(ctx context.Context) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, message, created_at
		FROM notifications
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Dismiss removes a notification.
func (s *NotificationStore) Dismiss(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Ensure interface compliance.
var _ ports.NotificationStore = (*NotificationStore)(nil)
