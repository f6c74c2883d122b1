package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContactDirectory resolves where store notifications go.
type ContactDirectory interface {
	StoreEmail(ctx context.Context, storeID int64) (string, error)
}

// PGContactDirectory reads store emails from Postgres.
type PGContactDirectory struct {
	Pool *pgxpool.Pool
}

// StoreEmail returns the store's email, or "" when the store has none.
func (d PGContactDirectory) StoreEmail(ctx context.Context, storeID int64) (string, error) {
	var email *string
	err := d.Pool.QueryRow(ctx, `SELECT email FROM stores WHERE id = $1`, storeID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("jobs: store email: %w", err)
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}
