package app

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/relayworks/outreach-backend/internal/backoff"
	"github.com/relayworks/outreach-backend/internal/config"
	"github.com/relayworks/outreach-backend/internal/crypto"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/service"
	"github.com/relayworks/outreach-backend/internal/throttle"
	"github.com/relayworks/outreach-backend/internal/transport"
)

// App wires the repositories and services every binary shares. The mains
// decide which pieces to run.
type App struct {
	Queue       *repository.QueueRepository
	Runs        *repository.RunRepository
	Leads       *repository.LeadRepository
	Campaigns   *repository.CampaignRepository
	Companies   *repository.CompanyRepository
	Logs        *repository.LogRepository
	Throttle    *repository.ThrottleRepository
	Suppression *repository.SuppressionRepository

	Core    *service.DispatchCore
	Tracker *service.RunTracker
	Inbound *service.InboundProcessor

	Email    *service.EmailDispatcher
	Call     *service.CallDispatcher
	LinkedIn *service.LinkedInDispatcher

	Reminders *service.ReminderScheduler

	cfg config.Config
}

func Build(cfg config.Config, conn *sql.DB) (*App, error) {
	a := &App{
		Queue:       &repository.QueueRepository{DB: conn},
		Runs:        &repository.RunRepository{DB: conn},
		Leads:       &repository.LeadRepository{DB: conn},
		Campaigns:   &repository.CampaignRepository{DB: conn},
		Companies:   &repository.CompanyRepository{DB: conn},
		Logs:        &repository.LogRepository{DB: conn},
		Throttle:    &repository.ThrottleRepository{DB: conn},
		Suppression: &repository.SuppressionRepository{DB: conn},
		cfg:         cfg,
	}

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential codec: %w", err)
	}

	a.Core = &service.DispatchCore{
		Queue:       a.Queue,
		Runs:        a.Runs,
		Leads:       a.Leads,
		Campaigns:   a.Campaigns,
		Companies:   a.Companies,
		Logs:        a.Logs,
		Suppression: a.Suppression,
		Generator: &transport.HTTPContentGenerator{
			BaseURL: cfg.ContentAPIURL,
			APIKey:  cfg.ContentAPIKey,
		},
		Codec:       codec,
		CallTimeout: cfg.ExternalCallTimeout,
	}

	a.Email = &service.EmailDispatcher{
		Core:            a.Core,
		Throttle:        a.Throttle,
		SenderFactory:   transport.NewSMTPSender,
		Policy:          backoff.Policy{Base: cfg.EmailRetryBase, MaxRetries: cfg.MaxRetries},
		Strategies:      cfg.ReminderStrategies,
		TrackingBaseURL: cfg.TrackingBaseURL,
		ReplyDomain:     cfg.ReplyDomain,
	}
	a.Call = &service.CallDispatcher{
		Core: a.Core,
		Telephony: &transport.HTTPTelephonyClient{
			BaseURL: cfg.TelephonyAPIURL,
			APIKey:  cfg.TelephonyAPIKey,
		},
		Policy:          backoff.Policy{Base: cfg.RetryBase, MaxRetries: cfg.MaxRetries},
		DailyCallCap:    cfg.TelephonyDailyCallCap,
		CallbackBaseURL: cfg.CallbackBaseURL,
	}
	a.LinkedIn = &service.LinkedInDispatcher{
		Core: a.Core,
		Client: &transport.HTTPLinkedInClient{
			BaseURL: cfg.LinkedInAPIURL,
			APIKey:  cfg.LinkedInAPIKey,
		},
		Policy:         backoff.Policy{Base: cfg.RetryBase, MaxRetries: cfg.MaxRetries},
		DailyInviteCap: cfg.LinkedInDailyInviteCap,
		SendDelay:      cfg.LinkedInSendDelay,
	}

	a.Tracker = &service.RunTracker{
		Runs:       a.Runs,
		Queue:      a.Queue,
		Campaigns:  a.Campaigns,
		Leads:      a.Leads,
		Throttle:   a.Throttle,
		MaxRetries: cfg.MaxRetries,
	}
	a.Inbound = &service.InboundProcessor{
		Logs:        a.Logs,
		Leads:       a.Leads,
		Companies:   a.Companies,
		Queue:       a.Queue,
		Suppression: a.Suppression,
	}
	a.Reminders = &service.ReminderScheduler{
		Companies:          a.Companies,
		Campaigns:          a.Campaigns,
		Logs:               a.Logs,
		Queue:              a.Queue,
		Throttle:           a.Throttle,
		Interval:           cfg.ReminderInterval,
		DefaultDaysBetween: cfg.ReminderDaysBetween,
		MaxRetries:         cfg.MaxRetries,
	}

	return a, nil
}

// Poller builds the poll loop for one channel. LinkedIn dispatches serially
// so the per-account send delay actually spaces the sends.
func (a *App) Poller(ch model.Channel) *service.Poller {
	oracle := &throttle.Oracle{
		Counter:  a.Queue,
		Settings: a.Throttle,
		BatchCap: a.cfg.BatchCap,
	}

	p := &service.Poller{
		Queue:     a.Queue,
		Companies: a.Companies,
		Oracle:    oracle,
		Tracker:   a.Tracker,
		Fanout:    a.cfg.DispatchFanout,
		WorkerID:  workerID(),
	}
	switch ch {
	case model.ChannelEmail:
		p.Dispatcher = a.Email
		p.Interval = a.cfg.EmailPollInterval
	case model.ChannelCall:
		p.Dispatcher = a.Call
		p.Interval = a.cfg.CallPollInterval
	case model.ChannelLinkedIn:
		p.Dispatcher = a.LinkedIn
		p.Interval = a.cfg.LinkedInPollInterval
		p.Fanout = 1
	}
	return p
}

// Reclaimer builds the stale-lease reclaim loop.
func (a *App) Reclaimer() *service.Reclaimer {
	return &service.Reclaimer{
		Queue:        a.Queue,
		LeaseTimeout: a.cfg.LeaseTimeout,
		Interval:     a.cfg.ReclaimInterval,
	}
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
