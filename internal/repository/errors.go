package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fredphp/yunwei/internal/model"
)

// StoreError wraps a failed read or write against the database. Passes are idempotent, so
// callers may re-run the whole operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Retryable is always true for store failures.
func (e *StoreError) Retryable() bool {
	return true
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return &StoreError{Op: op, Err: err}
}
