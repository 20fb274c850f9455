package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/throttle"
)

// companyPageSize is how many tenants one tick pages through at a time.
const companyPageSize = 10

// DrainChecker is the slice of the run tracker the poller needs to close out
// runs whose queues have emptied.
type DrainChecker interface {
	DrainCheck(ctx context.Context, runID uuid.UUID) error
}

// Poller drives one channel: every interval it walks the active tenants,
// asks the throttle oracle for each tenant's budget, leases that many due
// items and hands them to the dispatcher.
type Poller struct {
	Queue     repository.QueueRepositoryInterface
	Companies repository.CompanyRepositoryInterface
	Oracle    *throttle.Oracle

	Dispatcher Dispatcher
	Tracker    DrainChecker

	Interval time.Duration
	Fanout   int
	WorkerID string

	log zerolog.Logger
}

func (p *Poller) initLog() {
	p.log = logger.WithComponent("poller").With().
		Str("channel", string(p.Dispatcher.Channel())).Logger()
}

// PollOnce runs a single poll pass over all tenants.
func (p *Poller) PollOnce(ctx context.Context) {
	p.initLog()
	p.tick(ctx)
}

// Run blocks until ctx is cancelled, ticking at the configured interval. The
// first tick fires immediately.
func (p *Poller) Run(ctx context.Context) {
	p.initLog()
	p.log.Info().Dur("interval", p.Interval).Msg("poller started")

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	ch := p.Dispatcher.Channel()
	now := time.Now().UTC()

	depth := 0
	defer func() {
		metrics.QueueDepth.WithLabelValues(string(ch)).Set(float64(depth))
	}()

	for offset := 0; ; offset += companyPageSize {
		companies, err := p.Companies.ListActiveForChannel(ctx, ch, offset, companyPageSize)
		if err != nil {
			p.log.Error().Err(err).Msg("tenant page failed")
			return
		}
		if len(companies) == 0 {
			return
		}
		for _, company := range companies {
			if ctx.Err() != nil {
				return
			}
			depth += p.pollCompany(ctx, company, now)
		}
		if len(companies) < companyPageSize {
			return
		}
	}
}

// pollCompany processes one tenant and returns its observed pending depth.
func (p *Poller) pollCompany(ctx context.Context, company *model.Company, now time.Time) int {
	ch := p.Dispatcher.Channel()
	log := logger.WithCompany(p.log, company.ID)

	depth, err := p.Queue.CountPending(ctx, ch, company.ID)
	if err != nil {
		depth = 0
	}

	budget, err := p.Oracle.Budget(ctx, company.ID, ch, now)
	if err != nil {
		log.Error().Err(err).Msg("budget check failed")
		return depth
	}
	if budget == 0 {
		return depth
	}

	items, err := p.Queue.Lease(ctx, ch, company.ID, now, wallClock(company.Timezone, now), budget, p.WorkerID)
	if err != nil {
		log.Error().Err(err).Msg("lease failed")
		return depth
	}
	if len(items) == 0 {
		return depth
	}
	log.Debug().Int("leased", len(items)).Int("budget", budget).Msg("batch leased")

	fanout := p.Fanout
	if fanout <= 0 {
		fanout = 1
	}
	sem := make(chan struct{}, fanout)
	var wg sync.WaitGroup
	runs := make(map[uuid.UUID]struct{})
	for _, item := range items {
		runs[item.CampaignRunID] = struct{}{}
		wg.Add(1)
		sem <- struct{}{}
		go func(it *model.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()
			p.Dispatcher.Dispatch(ctx, it)
		}(item)
	}
	wg.Wait()

	if p.Tracker != nil {
		for runID := range runs {
			if err := p.Tracker.DrainCheck(ctx, runID); err != nil {
				log.Error().Err(err).Str("run_id", runID.String()).Msg("drain check failed")
			}
		}
	}
	return depth
}

// wallClock formats now as the tenant's local "HH:MM" for the work-window
// predicate. Unknown timezones fall back to UTC rather than stalling the
// tenant's queue.
func wallClock(tz string, now time.Time) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	return now.In(loc).Format("15:04")
}

// Reclaimer returns items to pending when their worker died mid-dispatch.
type Reclaimer struct {
	Queue        repository.QueueRepositoryInterface
	LeaseTimeout time.Duration
	Interval     time.Duration
}

func (r *Reclaimer) Run(ctx context.Context) {
	log := logger.WithComponent("reclaimer")
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Queue.ReleaseStaleLeases(ctx, time.Now().UTC().Add(-r.LeaseTimeout))
			if err != nil {
				log.Error().Err(err).Msg("stale lease release failed")
				continue
			}
			if n > 0 {
				metrics.StaleLeasesReclaimedTotal.Add(float64(n))
				log.Warn().Int("reclaimed", n).Msg("stale leases returned to pending")
			}
		}
	}
}
