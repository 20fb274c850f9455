package model

import "github.com/google/uuid"

// ThrottleSettings is the per-company, per-channel send budget configuration.
// A nil work window means the channel may dispatch around the clock. The
// window is tenant-local wall clock and may wrap midnight.
type ThrottleSettings struct {
	CompanyID uuid.UUID `db:"company_id" json:"company_id"`
	Channel   Channel   `db:"channel" json:"channel"`

	Enabled    bool `db:"enabled" json:"enabled"`
	MaxPerHour int  `db:"max_per_hour" json:"max_per_hour"`
	MaxPerDay  int  `db:"max_per_day" json:"max_per_day"`

	// "HH:MM" wall-clock bounds; both set or both nil.
	WorkStart *string `db:"work_start" json:"work_start,omitempty"`
	WorkEnd   *string `db:"work_end" json:"work_end,omitempty"`

	// EnforceWorkWindow is always true for calls; tenants may relax it for
	// email.
	EnforceWorkWindow bool `db:"enforce_work_window" json:"enforce_work_window"`
}

// DefaultThrottleSettings applies when a tenant has no row for the channel.
func DefaultThrottleSettings(companyID uuid.UUID, ch Channel) *ThrottleSettings {
	return &ThrottleSettings{
		CompanyID:         companyID,
		Channel:           ch,
		Enabled:           true,
		MaxPerHour:        300,
		MaxPerDay:         300,
		EnforceWorkWindow: ch == ChannelCall,
	}
}
