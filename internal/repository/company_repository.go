package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/model"
)

// CompanyRepositoryInterface defines tenant lookups used by the pollers and
// dispatchers.
type CompanyRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ListActiveForChannel(ctx context.Context, ch model.Channel, offset, limit int) ([]*model.Company, error)
	GetByLinkedInAccountID(ctx context.Context, accountID string) (*model.Company, error)
	SetLinkedInConnected(ctx context.Context, id uuid.UUID, connected bool) error
	SetChannelPaused(ctx context.Context, id uuid.UUID, ch model.Channel, paused bool) error
}

type CompanyRepository struct {
	DB *sql.DB
}

const companyColumns = `id, name, timezone, account_email, account_password, account_type, email_paused,
	phone_number, call_paused, linkedin_account_id, linkedin_connected, deleted, created_at`

func scanCompany(row interface{ Scan(...any) error }) (*model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.Timezone, &c.AccountEmail, &c.AccountPassword, &c.AccountType, &c.EmailPaused,
		&c.PhoneNumber, &c.CallPaused, &c.LinkedInAccountID, &c.LinkedInConnected, &c.Deleted, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company %s: %w", id, err)
	}
	return c, nil
}

// ListActiveForChannel pages through non-deleted tenants that hold working
// credentials for the channel and whose channel is not paused. LinkedIn
// expresses pause through the connected flag flipped by account webhooks.
func (r *CompanyRepository) ListActiveForChannel(ctx context.Context, ch model.Channel, offset, limit int) ([]*model.Company, error) {
	var predicate string
	switch ch {
	case model.ChannelEmail:
		predicate = `account_email <> '' AND account_password <> '' AND NOT email_paused`
	case model.ChannelCall:
		predicate = `phone_number <> '' AND NOT call_paused`
	case model.ChannelLinkedIn:
		predicate = `linkedin_account_id <> '' AND linkedin_connected`
	default:
		return nil, fmt.Errorf("unknown channel %q", ch)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM companies
		WHERE deleted = false AND %s
		ORDER BY created_at ASC
		OFFSET $1 LIMIT $2
	`, companyColumns, predicate)

	rows, err := r.DB.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list active companies: %w", err)
	}
	defer rows.Close()

	companies := []*model.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// GetByLinkedInAccountID resolves the tenant owning a provider-side account,
// used by account-status webhooks.
func (r *CompanyRepository) GetByLinkedInAccountID(ctx context.Context, accountID string) (*model.Company, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE linkedin_account_id = $1 AND deleted = false`, accountID)
	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company by linkedin account: %w", err)
	}
	return c, nil
}

func (r *CompanyRepository) SetLinkedInConnected(ctx context.Context, id uuid.UUID, connected bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE companies SET linkedin_connected = $2 WHERE id = $1`, id, connected)
	return err
}

// SetChannelPaused pauses or resumes one channel for a tenant. Dispatchers
// pause on provider auth failures so bad credentials stop the whole channel
// instead of burning the queue through the retry budget.
func (r *CompanyRepository) SetChannelPaused(ctx context.Context, id uuid.UUID, ch model.Channel, paused bool) error {
	var column string
	var value bool
	switch ch {
	case model.ChannelEmail:
		column, value = "email_paused", paused
	case model.ChannelCall:
		column, value = "call_paused", paused
	case model.ChannelLinkedIn:
		column, value = "linkedin_connected", !paused
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
	query := fmt.Sprintf(`UPDATE companies SET %s = $2 WHERE id = $1`, column)
	_, err := r.DB.ExecContext(ctx, query, id, value)
	return err
}

var _ CompanyRepositoryInterface = (*CompanyRepository)(nil)
