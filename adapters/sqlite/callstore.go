package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/mesgate/ports"
)

// DefaultCallLimit bounds journal listings without an explicit limit.
const DefaultCallLimit = 100

// CallStore implements ports.CallStore using SQLite.
type CallStore struct {
	db *DB
}

// NewCallStore creates a new SQLite call journal.
func NewCallStore(db *DB) *CallStore {
	return &CallStore{db: db}
}

// Create stores a call record.
func (s *CallStore) Create(ctx context.Context, call ports.ServiceCall) error {
	payload, err := marshalJSON(call.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	result, err := marshalJSON(call.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service_calls (id, service, payload, status, result, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, call.ID, call.Service, payload, call.Status, result,
		nullString(call.Error), call.DurationMs, call.CreatedAt.UTC())

	return err
}

// Get retrieves a call by ID.
func (s *CallStore) Get(ctx context.Context, id string) (ports.ServiceCall, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, service, payload, status, result, error, duration_ms, created_at
		FROM service_calls
		WHERE id = ?
	`, id)

	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ServiceCall{}, ErrNotFound
	}
	return call, err
}

// List returns calls newest first.
func (s *CallStore) List(ctx context.Context, filter ports.CallFilter) ([]ports.ServiceCall, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultCallLimit
	}

	query := `
		SELECT id, service, payload, status, result, error, duration_ms, created_at
		FROM service_calls`
	args := []any{}
	if filter.Service != "" {
		query += ` WHERE service = ?`
		args = append(args, filter.Service)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []ports.ServiceCall
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (ports.ServiceCall, error) {
	var call ports.ServiceCall
	var payload, result, callErr sql.NullString

	err := row.Scan(
		&call.ID, &call.Service, &payload, &call.Status, &result,
		&callErr, &call.DurationMs, &call.CreatedAt,
	)
	if err != nil {
		return ports.ServiceCall{}, err
	}

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &call.Payload); err != nil {
			return ports.ServiceCall{}, fmt.Errorf("decode payload of %s: %w", call.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &call.Result); err != nil {
			return ports.ServiceCall{}, fmt.Errorf("decode result of %s: %w", call.ID, err)
		}
	}
	if callErr.Valid {
		call.Error = callErr.String
	}

	return call, nil
}

func marshalJSON(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ensure interface compliance.
var _ ports.CallStore = (*CallStore)(nil)
