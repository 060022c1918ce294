package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound maps sql.ErrNoRows to a nil result so Find* callers can
// tell "absent" from "failed".
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
