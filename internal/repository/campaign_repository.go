package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
)

// CampaignRepositoryInterface defines the campaign and product lookups the
// engine needs. Campaign CRUD itself lives outside the core.
type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	ListWithReminders(ctx context.Context, companyID uuid.UUID) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, company_id, product_id, name, type, template, call_script,
	linkedin_template, linkedin_invitation_template, linkedin_inmail_enabled, trigger_call_on,
	n_reminders, days_between, deleted, created_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.CompanyID, &c.ProductID, &c.Name, &c.Type, &c.Template, &c.CallScript,
		&c.LinkedInTemplate, &c.LinkedInInvitationTemplate, &c.LinkedInInMailEnabled, &c.TriggerCallOn,
		&c.NReminders, &c.DaysBetween, &c.Deleted, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return c, nil
}

func (r *CampaignRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, company_id, name, description, deleted, created_at
		FROM products WHERE id = $1
	`, id)
	var p model.Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.Deleted, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &p, nil
}

// ListWithReminders returns the tenant's live email campaigns that have a
// reminder ladder configured.
func (r *CampaignRepository) ListWithReminders(ctx context.Context, companyID uuid.UUID) ([]*model.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM campaigns
		WHERE company_id = $1 AND deleted = false AND n_reminders > 0
		  AND type IN ('email', 'email_and_call')
	`, campaignColumns)
	rows, err := r.DB.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list reminder campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
