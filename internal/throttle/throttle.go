package throttle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/model"
)

// SentCounter is the slice of the store the oracle needs.
type SentCounter interface {
	CountSent(ctx context.Context, ch model.Channel, companyID uuid.UUID, since time.Time) (int, error)
}

// SettingsSource yields per-tenant throttle settings.
type SettingsSource interface {
	Get(ctx context.Context, companyID uuid.UUID, ch model.Channel) (*model.ThrottleSettings, error)
}

// Oracle decides how many items a tenant may dispatch on a channel right now.
// Counters track successful sends within the rolling window, not attempts.
type Oracle struct {
	Counter  SentCounter
	Settings SettingsSource

	// BatchCap bounds any single poll regardless of remaining budget.
	BatchCap int
}

// Budget returns the admission count for (company, channel) at now, already
// clamped by the batch cap. Zero means skip the tenant this tick.
func (o *Oracle) Budget(ctx context.Context, companyID uuid.UUID, ch model.Channel, now time.Time) (int, error) {
	cap := o.BatchCap
	if cap <= 0 {
		cap = 10
	}

	settings, err := o.Settings.Get(ctx, companyID, ch)
	if err != nil {
		return 0, err
	}
	if !settings.Enabled {
		return cap, nil
	}

	sentLastHour, err := o.Counter.CountSent(ctx, ch, companyID, now.Add(-time.Hour))
	if err != nil {
		return 0, err
	}
	sentLastDay, err := o.Counter.CountSent(ctx, ch, companyID, now.Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}

	budget := min(settings.MaxPerHour-sentLastHour, settings.MaxPerDay-sentLastDay)
	if budget < 0 {
		budget = 0
	}
	return min(budget, cap), nil
}

// NextWindowStart is where rate-limited items get rescheduled: the top of the
// next hour when the hourly cap bound, otherwise the next day boundary.
func NextWindowStart(now time.Time, hourly bool) time.Time {
	if hourly {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}
