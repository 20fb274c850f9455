package model

import (
	"time"

	"github.com/google/uuid"
)

// Campaign run statuses; transitions are monotone.
const (
	RunStatusIdle      = "idle"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
)

type CampaignRun struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CompanyID  uuid.UUID `db:"company_id" json:"company_id"`
	CampaignID uuid.UUID `db:"campaign_id" json:"campaign_id"`
	Status     string    `db:"status" json:"status"`

	LeadsTotal     int `db:"leads_total" json:"leads_total"`
	LeadsProcessed int `db:"leads_processed" json:"leads_processed"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// RunStats is the per-status queue-item breakdown reported by GetRun.
type RunStats struct {
	Run            *CampaignRun   `json:"run"`
	CountsByStatus map[string]int `json:"counts_by_status"`
}
