package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/model"
)

// LeadRepositoryInterface defines lead lookups and contact-state updates.
type LeadRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lead, error)
	GetByLinkedInID(ctx context.Context, companyID uuid.UUID, linkedinID string) (*model.Lead, error)
	ListEligible(ctx context.Context, companyID uuid.UUID, channels []model.Channel) ([]*model.Lead, error)
	MarkEmailBounced(ctx context.Context, companyID uuid.UUID, email string) ([]uuid.UUID, error)
	MarkPhoneInvalid(ctx context.Context, id uuid.UUID) error
	SetInsights(ctx context.Context, id uuid.UUID, insights string) error
}

type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `id, company_id, name, email, phone_number, linkedin_id, linkedin_distance,
	lead_company, job_title, company_size, insights, email_bounced, phone_invalid, unsubscribed,
	deleted, created_at`

func scanLead(row interface{ Scan(...any) error }) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(&l.ID, &l.CompanyID, &l.Name, &l.Email, &l.PhoneNumber, &l.LinkedInID, &l.LinkedInDistance,
		&l.LeadCompany, &l.JobTitle, &l.CompanySize, &l.Insights, &l.EmailBounced, &l.PhoneInvalid, &l.Unsubscribed,
		&l.Deleted, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lead, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return l, nil
}

func (r *LeadRepository) GetByLinkedInID(ctx context.Context, companyID uuid.UUID, linkedinID string) (*model.Lead, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE company_id = $1 AND linkedin_id = $2`, companyID, linkedinID)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead by linkedin id: %w", err)
	}
	return l, nil
}

// ListEligible enumerates leads a campaign run can target: not deleted, not
// unsubscribed, contact key present for at least one requested channel and
// not flagged bad on it.
func (r *LeadRepository) ListEligible(ctx context.Context, companyID uuid.UUID, channels []model.Channel) ([]*model.Lead, error) {
	var predicates []string
	for _, ch := range channels {
		switch ch {
		case model.ChannelEmail:
			predicates = append(predicates, `(email <> '' AND NOT email_bounced)`)
		case model.ChannelCall:
			predicates = append(predicates, `(phone_number <> '' AND NOT phone_invalid)`)
		case model.ChannelLinkedIn:
			predicates = append(predicates, `(linkedin_id <> '')`)
		}
	}
	if len(predicates) == 0 {
		return nil, fmt.Errorf("no channels requested")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM leads
		WHERE company_id = $1 AND deleted = false AND unsubscribed = false
		  AND (%s)
		ORDER BY created_at ASC
	`, leadColumns, strings.Join(predicates, " OR "))

	rows, err := r.DB.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list eligible leads: %w", err)
	}
	defer rows.Close()

	leads := []*model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// MarkEmailBounced flags every lead of the tenant holding the bounced
// address and returns their ids so callers can cancel queued work.
func (r *LeadRepository) MarkEmailBounced(ctx context.Context, companyID uuid.UUID, email string) ([]uuid.UUID, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE leads SET email_bounced = true
		WHERE company_id = $1 AND lower(email) = lower($2)
		RETURNING id
	`, companyID, email)
	if err != nil {
		return nil, fmt.Errorf("mark bounced %s: %w", email, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *LeadRepository) MarkPhoneInvalid(ctx context.Context, id uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE leads SET phone_invalid = true WHERE id = $1`, id)
	return err
}

func (r *LeadRepository) SetInsights(ctx context.Context, id uuid.UUID, insights string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE leads SET insights = $2 WHERE id = $1`, id, insights)
	return err
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
