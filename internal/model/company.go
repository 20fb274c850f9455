package model

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Name     string    `db:"name" json:"name"`
	Timezone string    `db:"timezone" json:"timezone"`

	// Email channel credentials. AccountPassword is stored encrypted and is
	// only decrypted in-memory at dispatch time. EmailPaused is set when the
	// provider rejects the credentials; the poller skips the channel until an
	// operator clears it.
	AccountEmail    string `db:"account_email" json:"account_email"`
	AccountPassword string `db:"account_password" json:"-"`
	AccountType     string `db:"account_type" json:"account_type"`
	EmailPaused     bool   `db:"email_paused" json:"email_paused"`

	// Telephony channel.
	PhoneNumber string `db:"phone_number" json:"phone_number"`
	CallPaused  bool   `db:"call_paused" json:"call_paused"`

	// LinkedIn channel. LinkedInConnected is flipped by account-status
	// webhooks; the poller skips the channel while it is false.
	LinkedInAccountID string `db:"linkedin_account_id" json:"linkedin_account_id"`
	LinkedInConnected bool   `db:"linkedin_connected" json:"linkedin_connected"`

	Deleted   bool      `db:"deleted" json:"deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Product struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CompanyID   uuid.UUID `db:"company_id" json:"company_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Deleted     bool      `db:"deleted" json:"deleted"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
