package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStateNotFound ключ состояния устройства не записан
var ErrStateNotFound = errors.New("device state not found")

// StateRepository хранилище ключ-значение для состояния устройства (токен сессии CLI)
type StateRepository struct {
	st *Storage
}

func NewStateRepository(st *Storage) *StateRepository {
	return &StateRepository{st: st}
}

func (r *StateRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.st.q(ctx).QueryRowContext(ctx, `SELECT value FROM device_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.st.q(ctx).ExecContext(ctx, `
		INSERT INTO device_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.st.q(ctx).ExecContext(ctx, `DELETE FROM device_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}
