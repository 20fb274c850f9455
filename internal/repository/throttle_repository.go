package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/model"
)

// ThrottleRepositoryInterface defines per-tenant throttle settings access.
type ThrottleRepositoryInterface interface {
	Get(ctx context.Context, companyID uuid.UUID, ch model.Channel) (*model.ThrottleSettings, error)
	Upsert(ctx context.Context, settings *model.ThrottleSettings) error
}

type ThrottleRepository struct {
	DB *sql.DB
}

// Get returns the tenant's settings for the channel, falling back to
// defaults when no row exists.
func (r *ThrottleRepository) Get(ctx context.Context, companyID uuid.UUID, ch model.Channel) (*model.ThrottleSettings, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT company_id, channel, enabled, max_per_hour, max_per_day, work_start, work_end, enforce_work_window
		FROM throttle_settings
		WHERE company_id = $1 AND channel = $2
	`, companyID, ch)

	var s model.ThrottleSettings
	err := row.Scan(&s.CompanyID, &s.Channel, &s.Enabled, &s.MaxPerHour, &s.MaxPerDay,
		&s.WorkStart, &s.WorkEnd, &s.EnforceWorkWindow)
	if err == sql.ErrNoRows {
		return model.DefaultThrottleSettings(companyID, ch), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get throttle settings: %w", err)
	}
	return &s, nil
}

func (r *ThrottleRepository) Upsert(ctx context.Context, s *model.ThrottleSettings) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO throttle_settings (company_id, channel, enabled, max_per_hour, max_per_day, work_start, work_end, enforce_work_window)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (company_id, channel) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			max_per_hour = EXCLUDED.max_per_hour,
			max_per_day = EXCLUDED.max_per_day,
			work_start = EXCLUDED.work_start,
			work_end = EXCLUDED.work_end,
			enforce_work_window = EXCLUDED.enforce_work_window
	`, s.CompanyID, s.Channel, s.Enabled, s.MaxPerHour, s.MaxPerDay, s.WorkStart, s.WorkEnd, s.EnforceWorkWindow)
	if err != nil {
		return fmt.Errorf("upsert throttle settings: %w", err)
	}
	return nil
}

var _ ThrottleRepositoryInterface = (*ThrottleRepository)(nil)
