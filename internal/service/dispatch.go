package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/relayworks/outreach-backend/internal/backoff"
	"github.com/relayworks/outreach-backend/internal/crypto"
	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/throttle"
	"github.com/relayworks/outreach-backend/internal/transport"
)

// Dispatcher executes one leased queue item end to end and records the
// outcome. Implementations never return errors to the poller; every failure
// path terminates or requeues the item.
type Dispatcher interface {
	Channel() model.Channel
	Dispatch(ctx context.Context, item *model.QueueItem)
}

// DispatchCore holds the collaborators shared by the channel dispatchers.
type DispatchCore struct {
	Queue       repository.QueueRepositoryInterface
	Runs        repository.RunRepositoryInterface
	Leads       repository.LeadRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Companies   repository.CompanyRepositoryInterface
	Logs        repository.LogRepositoryInterface
	Suppression repository.SuppressionRepositoryInterface

	Generator transport.ContentGenerator
	Codec     *crypto.Codec

	// CallTimeout bounds each external call within a dispatch.
	CallTimeout time.Duration
}

// resolved is the item's object graph, loaded once per dispatch.
type resolved struct {
	lead     *model.Lead
	campaign *model.Campaign
	company  *model.Company
}

// resolve loads the lead, campaign and company behind an item. Missing or
// hard-blocked rows are data errors, terminal by classification.
func (c *DispatchCore) resolve(ctx context.Context, item *model.QueueItem) (*resolved, error) {
	lead, err := c.Leads.GetByID(ctx, item.LeadID)
	if err != nil {
		return nil, appErrors.E(appErrors.KindTransient, "resolve", err)
	}
	if lead == nil || lead.Deleted {
		return nil, appErrors.Ef(appErrors.KindData, "resolve", "lead %s missing or deleted", item.LeadID)
	}
	campaign, err := c.Campaigns.GetByID(ctx, item.CampaignID)
	if err != nil {
		return nil, appErrors.E(appErrors.KindData, "resolve", err)
	}
	if campaign.Deleted {
		return nil, appErrors.Ef(appErrors.KindData, "resolve", "campaign %s deleted", item.CampaignID)
	}
	company, err := c.Companies.GetByID(ctx, item.CompanyID)
	if err != nil {
		return nil, appErrors.E(appErrors.KindTransient, "resolve", err)
	}
	if company == nil || company.Deleted {
		return nil, appErrors.Ef(appErrors.KindData, "resolve", "company %s missing or deleted", item.CompanyID)
	}
	return &resolved{lead: lead, campaign: campaign, company: company}, nil
}

// cancelledMidFlight checks the cancellation flag set by run cancellation and
// terminates the item if it was raised. Returns true when dispatch should
// stop.
func (c *DispatchCore) cancelledMidFlight(ctx context.Context, item *model.QueueItem, log zerolog.Logger) bool {
	flagged, err := c.Queue.CancelRequested(ctx, item.Channel, item.ID)
	if err != nil {
		log.Warn().Err(err).Msg("cancel flag check failed, continuing")
		return false
	}
	if !flagged {
		return false
	}
	if err := c.Queue.Terminate(ctx, item.Channel, item.ID, model.StatusCancelled, time.Now().UTC(), "run cancelled"); err != nil {
		log.Error().Err(err).Msg("cancel termination failed")
	}
	metrics.ItemsProcessedTotal.WithLabelValues(string(item.Channel), model.StatusCancelled).Inc()
	return true
}

// succeed terminates the item as sent and advances run progress.
func (c *DispatchCore) succeed(ctx context.Context, item *model.QueueItem, log zerolog.Logger) {
	now := time.Now().UTC()
	if err := c.Queue.Terminate(ctx, item.Channel, item.ID, model.StatusSent, now, ""); err != nil {
		log.Error().Err(err).Msg("sent termination failed")
		return
	}
	if err := c.Runs.IncrementLeadsProcessed(ctx, item.CampaignRunID); err != nil {
		log.Error().Err(err).Msg("progress increment failed")
	}
	metrics.ItemsProcessedTotal.WithLabelValues(string(item.Channel), model.StatusSent).Inc()
	metrics.SendsTotal.WithLabelValues(string(item.Channel)).Inc()
	log.Info().Msg("dispatched")
}

// skip terminates the item as skipped with a reason; not an error outcome.
func (c *DispatchCore) skip(ctx context.Context, item *model.QueueItem, reason string, log zerolog.Logger) {
	if err := c.Queue.Terminate(ctx, item.Channel, item.ID, model.StatusSkipped, time.Now().UTC(), reason); err != nil {
		log.Error().Err(err).Msg("skip termination failed")
		return
	}
	metrics.ItemsProcessedTotal.WithLabelValues(string(item.Channel), model.StatusSkipped).Inc()
	log.Info().Str("reason", reason).Msg("skipped")
}

// completeFailure applies the disposition table: rate limits requeue at the
// next window without consuming a retry, non-retryable kinds terminate, and
// everything else backs off exponentially until the retry budget is gone.
func (c *DispatchCore) completeFailure(ctx context.Context, item *model.QueueItem, policy backoff.Policy, dispatchErr error, log zerolog.Logger) {
	now := time.Now().UTC()
	kind := appErrors.ClassifyKind(dispatchErr)
	log = log.With().Str("kind", kind.String()).Logger()

	switch {
	case kind == appErrors.KindRateLimit:
		next := throttle.NextWindowStart(now, true)
		if err := c.Queue.Requeue(ctx, item.Channel, item.ID, next, item.RetryCount, dispatchErr.Error()); err != nil {
			log.Error().Err(err).Msg("rate-limit requeue failed")
			return
		}
		metrics.ItemsRequeuedTotal.WithLabelValues(string(item.Channel)).Inc()
		log.Warn().Time("next_attempt", next).Msg("rate limited, deferred to next window")

	case !appErrors.Retryable(dispatchErr):
		if kind == appErrors.KindAuth {
			// Bad credentials affect the whole tenant, not just this item;
			// pause the channel until the credentials are fixed.
			if pauseErr := c.Companies.SetChannelPaused(ctx, item.CompanyID, item.Channel, true); pauseErr != nil {
				log.Error().Err(pauseErr).Msg("channel pause failed")
			} else {
				log.Warn().Msg("channel paused for tenant after auth failure")
			}
		}
		if err := c.Queue.Terminate(ctx, item.Channel, item.ID, model.StatusFailed, now, dispatchErr.Error()); err != nil {
			log.Error().Err(err).Msg("failure termination failed")
			return
		}
		metrics.ItemsProcessedTotal.WithLabelValues(string(item.Channel), model.StatusFailed).Inc()
		log.Error().Err(dispatchErr).Msg("failed permanently")

	default:
		maxRetries := item.MaxRetries
		if maxRetries <= 0 {
			maxRetries = policy.MaxRetries
		}
		newCount := item.RetryCount + 1
		if newCount >= maxRetries {
			if err := c.Queue.Terminate(ctx, item.Channel, item.ID, model.StatusFailed, now, dispatchErr.Error()); err != nil {
				log.Error().Err(err).Msg("failure termination failed")
				return
			}
			metrics.ItemsProcessedTotal.WithLabelValues(string(item.Channel), model.StatusFailed).Inc()
			log.Error().Err(dispatchErr).Int("retries", item.RetryCount).Msg("retry budget exhausted")
			return
		}
		next := policy.NextSchedule(now, item.RetryCount)
		if err := c.Queue.Requeue(ctx, item.Channel, item.ID, next, newCount, dispatchErr.Error()); err != nil {
			log.Error().Err(err).Msg("retry requeue failed")
			return
		}
		metrics.ItemsRequeuedTotal.WithLabelValues(string(item.Channel)).Inc()
		log.Warn().Err(dispatchErr).Int("retry_count", newCount).Time("next_attempt", next).Msg("requeued for retry")
	}
}

// insightsFor returns cached lead insights, generating and caching them when
// absent. Generation failures degrade to empty insights rather than failing
// the dispatch.
func (c *DispatchCore) insightsFor(ctx context.Context, lead *model.Lead, company *model.Company, log zerolog.Logger) string {
	if lead.Insights != "" {
		return lead.Insights
	}
	callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()
	insights, err := c.Generator.Insights(callCtx, lead, company)
	if err != nil {
		log.Warn().Err(err).Msg("insight generation failed, proceeding without")
		return ""
	}
	if err := c.Leads.SetInsights(ctx, lead.ID, insights); err != nil {
		log.Warn().Err(err).Msg("insight cache write failed")
	}
	return insights
}

// contentAttempts is the inline retry budget for generation before the error
// surfaces to the queue-level retry path.
const contentAttempts = 3

// generate retries refused or malformed generations inline, then reports the
// last error upward as retryable.
func generate[T any](ctx context.Context, c *DispatchCore, ch model.Channel, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < contentAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
		out, err := fn(callCtx)
		cancel()
		if err == nil {
			metrics.ContentGenerationsTotal.WithLabelValues(string(ch), "ok").Inc()
			return out, nil
		}
		lastErr = err
		metrics.ContentGenerationsTotal.WithLabelValues(string(ch), "error").Inc()
		if appErrors.ClassifyKind(err) != appErrors.KindContent {
			return zero, err
		}
	}
	// Exhausted inline attempts; hand over to the backoff path.
	return zero, appErrors.E(appErrors.KindTransient, "content", lastErr)
}

// strategyFor maps a reminder stage ordinal onto the configured strategy
// ladder; stages past the end reuse the last tag.
func strategyFor(strategies []string, stage string) string {
	k := model.StageOrdinal(stage)
	if k <= 0 || len(strategies) == 0 {
		return ""
	}
	if k > len(strategies) {
		k = len(strategies)
	}
	return strategies[k-1]
}

func itemLogger(component string, item *model.QueueItem) zerolog.Logger {
	base := logger.WithComponent(component)
	base = logger.WithCompany(base, item.CompanyID)
	return logger.WithItem(base, item.ID, item.CampaignRunID, string(item.Channel))
}
