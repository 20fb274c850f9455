package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
)

// ReminderScheduler walks reminder-enabled campaigns and enqueues follow-up
// email items for leads that have gone quiet. It never sends anything itself;
// the email dispatcher picks the items up under the usual throttle budget.
type ReminderScheduler struct {
	Companies repository.CompanyRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Logs      repository.LogRepositoryInterface
	Queue     repository.QueueRepositoryInterface
	Throttle  repository.ThrottleRepositoryInterface

	Interval time.Duration

	// DefaultDaysBetween applies when a campaign leaves the cadence unset.
	DefaultDaysBetween int
	MaxRetries         int
}

// Run blocks until ctx is cancelled, sweeping at the configured interval.
func (s *ReminderScheduler) Run(ctx context.Context) {
	log := logger.WithComponent("reminders")
	log.Info().Dur("interval", s.Interval).Msg("reminder scheduler started")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every tenant with email credentials.
func (s *ReminderScheduler) Sweep(ctx context.Context) {
	log := logger.WithComponent("reminders")
	now := time.Now().UTC()

	for offset := 0; ; offset += companyPageSize {
		companies, err := s.Companies.ListActiveForChannel(ctx, model.ChannelEmail, offset, companyPageSize)
		if err != nil {
			log.Error().Err(err).Msg("tenant page failed")
			return
		}
		if len(companies) == 0 {
			return
		}
		for _, company := range companies {
			if ctx.Err() != nil {
				return
			}
			s.sweepCompany(ctx, company, now, logger.WithCompany(log, company.ID))
		}
		if len(companies) < companyPageSize {
			return
		}
	}
}

func (s *ReminderScheduler) sweepCompany(ctx context.Context, company *model.Company, now time.Time, log zerolog.Logger) {
	campaigns, err := s.Campaigns.ListWithReminders(ctx, company.ID)
	if err != nil {
		log.Error().Err(err).Msg("campaign list failed")
		return
	}
	if len(campaigns) == 0 {
		return
	}

	settings, err := s.Throttle.Get(ctx, company.ID, model.ChannelEmail)
	if err != nil {
		settings = model.DefaultThrottleSettings(company.ID, model.ChannelEmail)
	}

	for _, campaign := range campaigns {
		days := campaign.DaysBetween
		if days <= 0 {
			days = s.DefaultDaysBetween
		}
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

		for k := 1; k <= campaign.NReminders; k++ {
			priorStage := ""
			if k > 1 {
				priorStage = model.ReminderStage(k - 1)
			}
			candidates, err := s.Logs.ListReminderCandidates(ctx, campaign.ID, priorStage, cutoff)
			if err != nil {
				log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("candidate scan failed")
				continue
			}
			if len(candidates) == 0 {
				continue
			}
			s.enqueueStage(ctx, campaign, candidates, k, settings, now, log)
		}
	}
}

func (s *ReminderScheduler) enqueueStage(ctx context.Context, campaign *model.Campaign, candidates []*model.EmailLog, k int, settings *model.ThrottleSettings, now time.Time, log zerolog.Logger) {
	stage := model.ReminderStage(k)
	items := make([]*model.QueueItem, 0, len(candidates))
	for _, emailLog := range candidates {
		logID := emailLog.ID
		item := &model.QueueItem{
			CompanyID:     emailLog.CompanyID,
			CampaignID:    emailLog.CampaignID,
			CampaignRunID: emailLog.CampaignRunID,
			LeadID:        emailLog.LeadID,
			Channel:       model.ChannelEmail,
			Stage:         stage,
			EmailLogID:    &logID,
			ScheduledFor:  now,
			MaxRetries:    s.MaxRetries,
		}
		if settings.EnforceWorkWindow {
			item.WorkStart = settings.WorkStart
			item.WorkEnd = settings.WorkEnd
		}
		items = append(items, item)
	}

	inserted, err := s.Queue.Enqueue(ctx, items)
	if err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("reminder enqueue failed")
		return
	}
	if inserted > 0 {
		metrics.RemindersEnqueuedTotal.WithLabelValues(stage).Add(float64(inserted))
		log.Info().Str("campaign_id", campaign.ID.String()).Str("stage", stage).Int("enqueued", inserted).Msg("reminders enqueued")
	}
}
