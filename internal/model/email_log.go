package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender types recorded on log details.
const (
	SenderAssistant = "assistant"
	SenderLead      = "lead"
)

type EmailLog struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompanyID     uuid.UUID `db:"company_id" json:"company_id"`
	CampaignID    uuid.UUID `db:"campaign_id" json:"campaign_id"`
	CampaignRunID uuid.UUID `db:"campaign_run_id" json:"campaign_run_id"`
	LeadID        uuid.UUID `db:"lead_id" json:"lead_id"`

	SentAt time.Time `db:"sent_at" json:"sent_at"`

	HasReplied       bool `db:"has_replied" json:"has_replied"`
	HasOpened        bool `db:"has_opened" json:"has_opened"`
	HasMeetingBooked bool `db:"has_meeting_booked" json:"has_meeting_booked"`

	OpenCount  int `db:"open_count" json:"open_count"`
	ClickCount int `db:"click_count" json:"click_count"`

	// Reminder cadence. LastReminderSent is the stage label of the most
	// recent follow-up ("" until r1 goes out).
	LastReminderSent   string     `db:"last_reminder_sent" json:"last_reminder_sent"`
	LastReminderSentAt *time.Time `db:"last_reminder_sent_at" json:"last_reminder_sent_at,omitempty"`
}

type EmailLogDetail struct {
	ID          uuid.UUID `db:"id" json:"id"`
	EmailLogsID uuid.UUID `db:"email_logs_id" json:"email_logs_id"`

	// MessageID is the provider message id, used for duplicate suppression
	// on the replay path.
	MessageID string `db:"message_id" json:"message_id"`

	Subject      string `db:"email_subject" json:"email_subject"`
	Body         string `db:"email_body" json:"email_body"`
	SenderType   string `db:"sender_type" json:"sender_type"`
	ReminderType string `db:"reminder_type" json:"reminder_type"`

	FromName  string    `db:"from_name" json:"from_name"`
	FromEmail string    `db:"from_email" json:"from_email"`
	ToEmail   string    `db:"to_email" json:"to_email"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
}
