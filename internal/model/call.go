package model

import (
	"time"

	"github.com/google/uuid"
)

// Call is the log row for one telephony dispatch. The row is created before
// the provider call starts and completed asynchronously when the transcript
// webhook arrives.
type Call struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompanyID     uuid.UUID `db:"company_id" json:"company_id"`
	CampaignID    uuid.UUID `db:"campaign_id" json:"campaign_id"`
	CampaignRunID uuid.UUID `db:"campaign_run_id" json:"campaign_run_id"`
	LeadID        uuid.UUID `db:"lead_id" json:"lead_id"`

	ProviderCallID string `db:"provider_call_id" json:"provider_call_id"`
	Script         string `db:"script" json:"script"`

	Duration         int    `db:"duration" json:"duration"`
	Sentiment        string `db:"sentiment" json:"sentiment"`
	Summary          string `db:"summary" json:"summary"`
	Transcript       string `db:"transcript" json:"transcript"`
	RecordingURL     string `db:"recording_url" json:"recording_url"`
	HasMeetingBooked bool   `db:"has_meeting_booked" json:"has_meeting_booked"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// LinkedIn sub-action kinds.
const (
	LinkedInKindMessage    = "message"
	LinkedInKindInvitation = "invitation"
	LinkedInKindInMail     = "inmail"
)

type LinkedInMessage struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompanyID     uuid.UUID `db:"company_id" json:"company_id"`
	CampaignID    uuid.UUID `db:"campaign_id" json:"campaign_id"`
	CampaignRunID uuid.UUID `db:"campaign_run_id" json:"campaign_run_id"`
	LeadID        uuid.UUID `db:"lead_id" json:"lead_id"`

	Kind    string `db:"kind" json:"kind"`
	ChatID  string `db:"chat_id" json:"chat_id"`
	Content string `db:"content" json:"content"`

	HasReplied bool       `db:"has_replied" json:"has_replied"`
	AcceptedAt *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	SentAt     time.Time  `db:"sent_at" json:"sent_at"`
}
