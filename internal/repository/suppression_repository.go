package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SuppressionRepositoryInterface is the per-tenant do-not-contact list.
// Bounce processing adds entries; enqueue and dispatch consult it.
type SuppressionRepositoryInterface interface {
	Add(ctx context.Context, companyID uuid.UUID, email, reason string) error
	Contains(ctx context.Context, companyID uuid.UUID, email string) (bool, error)
}

type SuppressionRepository struct {
	DB *sql.DB
}

func (r *SuppressionRepository) Add(ctx context.Context, companyID uuid.UUID, email, reason string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO do_not_contact (company_id, email, reason)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (company_id, email) DO NOTHING
	`, companyID, email, reason)
	if err != nil {
		return fmt.Errorf("add do-not-contact entry: %w", err)
	}
	return nil
}

func (r *SuppressionRepository) Contains(ctx context.Context, companyID uuid.UUID, email string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `
		SELECT 1 FROM do_not_contact WHERE company_id = $1 AND email = lower($2) LIMIT 1
	`, companyID, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ SuppressionRepositoryInterface = (*SuppressionRepository)(nil)
