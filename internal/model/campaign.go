package model

import (
	"time"

	"github.com/google/uuid"
)

// Campaign types; combinations enable more than one channel.
const (
	CampaignTypeEmail        = "email"
	CampaignTypeCall         = "call"
	CampaignTypeLinkedIn     = "linkedin"
	CampaignTypeEmailAndCall = "email_and_call"
)

// TriggerCallAfterEmail defers call enqueue until the initial email for the
// lead has been sent.
const TriggerCallAfterEmail = "after_email_sent"

type Campaign struct {
	ID        uuid.UUID `db:"id" json:"id"`
	CompanyID uuid.UUID `db:"company_id" json:"company_id"`
	ProductID uuid.UUID `db:"product_id" json:"product_id"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`

	// Templates per enabled channel. The email template carries an
	// {email_body} slot filled with generated content.
	Template                   string `db:"template" json:"template"`
	CallScript                 string `db:"call_script" json:"call_script"`
	LinkedInTemplate           string `db:"linkedin_template" json:"linkedin_template"`
	LinkedInInvitationTemplate string `db:"linkedin_invitation_template" json:"linkedin_invitation_template"`
	LinkedInInMailEnabled      bool   `db:"linkedin_inmail_enabled" json:"linkedin_inmail_enabled"`

	TriggerCallOn string `db:"trigger_call_on" json:"trigger_call_on"`

	// Reminder cadence; DaysBetween is uniform across stages.
	NReminders  int `db:"n_reminders" json:"n_reminders"`
	DaysBetween int `db:"days_between" json:"days_between"`

	Deleted   bool      `db:"deleted" json:"deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Channels returns the channels enabled by the campaign type. For
// email_and_call with a deferred call trigger the call channel is still
// listed; the run tracker decides when call items are enqueued.
func (c *Campaign) Channels() []Channel {
	switch c.Type {
	case CampaignTypeEmail:
		return []Channel{ChannelEmail}
	case CampaignTypeCall:
		return []Channel{ChannelCall}
	case CampaignTypeLinkedIn:
		return []Channel{ChannelLinkedIn}
	case CampaignTypeEmailAndCall:
		return []Channel{ChannelEmail, ChannelCall}
	}
	return nil
}

// HasChannel reports whether the campaign sends on the given channel.
func (c *Campaign) HasChannel(ch Channel) bool {
	for _, have := range c.Channels() {
		if have == ch {
			return true
		}
	}
	return false
}
