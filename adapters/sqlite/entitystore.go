package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/mesgate/domain/entity"
	"github.com/artpar/mesgate/ports"
)

// EntityStore implements ports.EntityStore using SQLite.
// Entities are stored as JSON documents keyed by entity id.
type EntityStore struct {
	db *DB
}

// NewEntityStore creates a new SQLite entity store.
func NewEntityStore(db *DB) *EntityStore {
	return &EntityStore{db: db}
}

// List returns all entities ordered by entity id.
func (s *EntityStore) List(ctx context.Context) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM entities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Entity
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		e, err := decodeEntity(data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get retrieves an entity by entity id.
func (s *EntityStore) Get(ctx context.Context, id string) (entity.Entity, error) {
	return s.one(ctx, `SELECT data FROM entities WHERE id = ?`, id)
}

// FindMeter retrieves the meter entity with the given meter code.
func (s *EntityStore) FindMeter(ctx context.Context, meterCode string) (entity.Entity, error) {
	return s.one(ctx, `
		SELECT data FROM entities
		WHERE device_class = ? AND code = ?
		ORDER BY id LIMIT 1
	`, string(entity.ClassMeter), meterCode)
}

func (s *EntityStore) one(ctx context.Context, query string, args ...any) (entity.Entity, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Entity{}, ErrNotFound
	}
	if err != nil {
		return entity.Entity{}, err
	}
	return decodeEntity(data)
}

// Upsert creates or replaces entities in one transaction.
func (s *EntityStore) Upsert(ctx context.Context, entities ...entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, device_class, code, account_code, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_class = excluded.device_class,
			code = excluded.code,
			account_code = excluded.account_code,
			data = excluded.data,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entity %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, string(e.DeviceClass), e.Code,
			nullString(e.AccountCode), string(data), e.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

func decodeEntity(data string) (entity.Entity, error) {
	var e entity.Entity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return entity.Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}

// Ensure interface compliance.
var _ ports.EntityStore = (*EntityStore)(nil)
