package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
)

// RunRepositoryInterface defines campaign-run persistence.
type RunRepositoryInterface interface {
	Create(ctx context.Context, run *model.CampaignRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CampaignRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID, leadsTotal int, now time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) error
	IncrementLeadsProcessed(ctx context.Context, id uuid.UUID) error
	ListRunning(ctx context.Context) ([]*model.CampaignRun, error)
}

type RunRepository struct {
	DB *sql.DB
}

const runColumns = `id, company_id, campaign_id, status, leads_total, leads_processed,
	started_at, completed_at, cancelled_at, created_at`

func scanRun(row interface{ Scan(...any) error }) (*model.CampaignRun, error) {
	var run model.CampaignRun
	err := row.Scan(&run.ID, &run.CompanyID, &run.CampaignID, &run.Status,
		&run.LeadsTotal, &run.LeadsProcessed,
		&run.StartedAt, &run.CompletedAt, &run.CancelledAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) Create(ctx context.Context, run *model.CampaignRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = model.RunStatusIdle
	}
	run.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO campaign_runs (id, company_id, campaign_id, status, leads_total, leads_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.CompanyID, run.CampaignID, run.Status, run.LeadsTotal, run.LeadsProcessed, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CampaignRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM campaign_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewRunNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// MarkRunning transitions idle → running and records the enumerated lead
// count. The status guard keeps the transition monotone.
func (r *RunRepository) MarkRunning(ctx context.Context, id uuid.UUID, leadsTotal int, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_runs SET status = 'running', leads_total = $2, started_at = $3
		WHERE id = $1 AND status = 'idle'
	`, id, leadsTotal, now)
	return err
}

// MarkCompleted transitions running → completed. Returns whether this call
// performed the transition, so repeated drain checks stay idempotent.
func (r *RunRepository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_runs SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RunRepository) MarkCancelled(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_runs SET status = 'cancelled', cancelled_at = $2
		WHERE id = $1 AND status IN ('idle', 'running')
	`, id, now)
	return err
}

// IncrementLeadsProcessed advances progress, clamped at leads_total.
func (r *RunRepository) IncrementLeadsProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaign_runs
		SET leads_processed = LEAST(leads_processed + 1, leads_total)
		WHERE id = $1
	`, id)
	return err
}

// ListRunning feeds the drain sweep; runs stay 'running' until every queue
// item of theirs reaches a terminal status.
func (r *RunRepository) ListRunning(ctx context.Context) ([]*model.CampaignRun, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+runColumns+` FROM campaign_runs
		WHERE status = 'running'
	`)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.CampaignRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

var _ RunRepositoryInterface = (*RunRepository)(nil)
