package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the outbound transport a queue item uses.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelCall     Channel = "call"
	ChannelLinkedIn Channel = "linkedin"
)

// Queue item statuses. Sent, failed, cancelled and skipped are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusSkipped    = "skipped"
)

// StageInitial is the first touch of a sequence; reminders are r1, r2, ...
const StageInitial = "initial"

// ReminderStage formats the stage label for reminder ordinal k (1-based).
func ReminderStage(k int) string {
	return fmt.Sprintf("r%d", k)
}

// StageOrdinal returns 0 for the initial stage and k for stage rk; -1 when
// the label is not recognised.
func StageOrdinal(stage string) int {
	if stage == StageInitial {
		return 0
	}
	if strings.HasPrefix(stage, "r") {
		if k, err := strconv.Atoi(stage[1:]); err == nil && k > 0 {
			return k
		}
	}
	return -1
}

type QueueItem struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompanyID     uuid.UUID `db:"company_id" json:"company_id"`
	CampaignID    uuid.UUID `db:"campaign_id" json:"campaign_id"`
	CampaignRunID uuid.UUID `db:"campaign_run_id" json:"campaign_run_id"`
	LeadID        uuid.UUID `db:"lead_id" json:"lead_id"`

	Channel  Channel `db:"channel" json:"channel"`
	Stage    string  `db:"stage" json:"stage"`
	Status   string  `db:"status" json:"status"`
	Priority int     `db:"priority" json:"priority"`

	// Pre-generated content, if any; dispatchers generate what is missing.
	Subject string `db:"subject" json:"subject,omitempty"`
	Body    string `db:"body" json:"body,omitempty"`

	// EmailLogID links a reminder item to the log of the initial send.
	EmailLogID *uuid.UUID `db:"email_log_id" json:"email_log_id,omitempty"`

	// Work window copied from throttle settings at enqueue time; calls honor
	// it strictly via the lease predicate.
	WorkStart *string `db:"work_start" json:"work_start,omitempty"`
	WorkEnd   *string `db:"work_end" json:"work_end,omitempty"`

	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`

	RetryCount int    `db:"retry_count" json:"retry_count"`
	MaxRetries int    `db:"max_retries" json:"max_retries"`
	ErrorMsg   string `db:"error_message" json:"error_message,omitempty"`

	// Lease ownership while processing.
	LeasedBy *string    `db:"leased_by" json:"-"`
	LeasedAt *time.Time `db:"leased_at" json:"-"`

	// CancelRequested is set on processing items by run cancellation; the
	// dispatcher checks it before opening the transport.
	CancelRequested bool `db:"cancel_requested" json:"cancel_requested"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusSent, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}
