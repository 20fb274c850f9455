package model

import (
	"time"

	"github.com/google/uuid"
)

// LinkedIn network distances as reported by the provider.
const (
	DistanceFirst  = "FIRST_DEGREE"
	DistanceSecond = "SECOND_DEGREE"
	DistanceThird  = "THIRD_DEGREE"
)

type Lead struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CompanyID uuid.UUID `db:"company_id" json:"company_id"`
	Name      string    `db:"name" json:"name"`

	// Contact keys; immutable once set. A lead is eligible for a channel only
	// when the corresponding key is present.
	Email       string `db:"email" json:"email"`
	PhoneNumber string `db:"phone_number" json:"phone_number"`
	LinkedInID  string `db:"linkedin_id" json:"linkedin_id"`

	LinkedInDistance string `db:"linkedin_distance" json:"linkedin_distance"`

	// Enrichment fields; updatable.
	LeadCompany string `db:"lead_company" json:"lead_company"`
	JobTitle    string `db:"job_title" json:"job_title"`
	CompanySize string `db:"company_size" json:"company_size"`
	Insights    string `db:"insights" json:"insights"`

	EmailBounced bool `db:"email_bounced" json:"email_bounced"`
	PhoneInvalid bool `db:"phone_invalid" json:"phone_invalid"`
	Unsubscribed bool `db:"unsubscribed" json:"unsubscribed"`

	Deleted   bool      `db:"deleted" json:"deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ContactFor returns the contact key for the given channel, empty when the
// lead cannot be reached on it.
func (l *Lead) ContactFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return l.Email
	case ChannelCall:
		return l.PhoneNumber
	case ChannelLinkedIn:
		return l.LinkedInID
	}
	return ""
}
