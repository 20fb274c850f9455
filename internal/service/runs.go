package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/queue"
	"github.com/relayworks/outreach-backend/internal/repository"
)

// commandTimeout bounds the handling of one bus command.
const commandTimeout = 5 * time.Minute

// RunTracker owns the campaign-run lifecycle: it creates runs, enumerates
// leads into the per-channel queues on start, cancels queued work, and closes
// runs out once their queues drain.
type RunTracker struct {
	Runs      repository.RunRepositoryInterface
	Queue     repository.QueueRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Leads     repository.LeadRepositoryInterface
	Throttle  repository.ThrottleRepositoryInterface

	MaxRetries int
}

// SubscribeCommands wires the tracker to the run-command bus.
func (t *RunTracker) SubscribeCommands(bus queue.Queue) error {
	return bus.Subscribe(queue.TopicRunCommands, t.HandleCommand)
}

// HandleCommand is the bus entrypoint. Errors propagate so the bus can
// redeliver.
func (t *RunTracker) HandleCommand(payload []byte) error {
	log := logger.WithComponent("run_tracker")

	var cmd queue.RunCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		// Malformed payloads will never parse; swallow instead of redelivering.
		log.Error().Err(err).Msg("dropping malformed run command")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Action {
	case queue.ActionStart:
		return t.Start(ctx, cmd.RunID, cmd.LeadIDs)
	case queue.ActionCancel:
		return t.Cancel(ctx, cmd.RunID)
	default:
		log.Error().Str("action", cmd.Action).Msg("dropping unknown run command")
		return nil
	}
}

// CreateRun records an idle run for the campaign. The caller publishes the
// start command once the row is durable.
func (t *RunTracker) CreateRun(ctx context.Context, campaignID uuid.UUID) (*model.CampaignRun, error) {
	campaign, err := t.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Deleted {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	run := &model.CampaignRun{
		ID:         uuid.New(),
		CompanyID:  campaign.CompanyID,
		CampaignID: campaign.ID,
		Status:     model.RunStatusIdle,
	}
	if err := t.Runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Start enumerates eligible leads and seeds the channel queues, then flips
// the run to running. Re-delivered start commands coalesce on the queues'
// unique indexes and the idle guard, so Start is idempotent.
func (t *RunTracker) Start(ctx context.Context, runID uuid.UUID, leadIDs []uuid.UUID) error {
	log := logger.WithComponent("run_tracker").With().Str("run_id", runID.String()).Logger()

	run, err := t.Runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == model.RunStatusCancelled || run.Status == model.RunStatusCompleted {
		log.Warn().Str("status", run.Status).Msg("ignoring start for finished run")
		return nil
	}
	campaign, err := t.Campaigns.GetByID(ctx, run.CampaignID)
	if err != nil {
		return err
	}

	channels := enqueueChannels(campaign)
	leads, err := t.Leads.ListEligible(ctx, run.CompanyID, campaign.Channels())
	if err != nil {
		return fmt.Errorf("enumerate leads: %w", err)
	}
	if len(leadIDs) > 0 {
		leads = filterLeads(leads, leadIDs)
	}

	windows := make(map[model.Channel]*model.ThrottleSettings, len(channels))
	for _, ch := range channels {
		settings, err := t.Throttle.Get(ctx, run.CompanyID, ch)
		if err != nil {
			settings = model.DefaultThrottleSettings(run.CompanyID, ch)
		}
		windows[ch] = settings
	}

	now := time.Now().UTC()
	var items []*model.QueueItem
	for _, lead := range leads {
		for _, ch := range channels {
			if lead.ContactFor(ch) == "" {
				continue
			}
			if ch == model.ChannelEmail && lead.EmailBounced {
				continue
			}
			if ch == model.ChannelCall && lead.PhoneInvalid {
				continue
			}
			item := &model.QueueItem{
				CompanyID:     run.CompanyID,
				CampaignID:    campaign.ID,
				CampaignRunID: run.ID,
				LeadID:        lead.ID,
				Channel:       ch,
				Stage:         model.StageInitial,
				// Initial touches outrank reminders when both are due.
				Priority:     1,
				ScheduledFor: now,
				MaxRetries:   t.MaxRetries,
			}
			if settings := windows[ch]; settings.EnforceWorkWindow {
				item.WorkStart = settings.WorkStart
				item.WorkEnd = settings.WorkEnd
			}
			items = append(items, item)
		}
	}

	inserted, err := t.Queue.Enqueue(ctx, items)
	if err != nil {
		return fmt.Errorf("seed queues: %w", err)
	}
	if err := t.Runs.MarkRunning(ctx, run.ID, len(leads), now); err != nil {
		return err
	}
	log.Info().Int("leads", len(leads)).Int("enqueued", inserted).Msg("run started")

	if len(items) == 0 {
		// Nothing to send; close the run out immediately.
		return t.DrainCheck(ctx, run.ID)
	}
	return nil
}

// Cancel fails out pending items, flags in-flight ones and marks the run.
func (t *RunTracker) Cancel(ctx context.Context, runID uuid.UUID) error {
	log := logger.WithComponent("run_tracker").With().Str("run_id", runID.String()).Logger()

	now := time.Now().UTC()
	cancelled, err := t.Queue.CancelRun(ctx, runID, now)
	if err != nil {
		return fmt.Errorf("cancel queued items: %w", err)
	}
	if err := t.Runs.MarkCancelled(ctx, runID, now); err != nil {
		return err
	}
	log.Info().Int("cancelled_items", cancelled).Msg("run cancelled")
	return nil
}

// DrainCheck completes the run when no live items remain. Safe to call on
// every batch; the completed transition only fires once.
func (t *RunTracker) DrainCheck(ctx context.Context, runID uuid.UUID) error {
	remaining, err := t.Queue.CountPendingOrProcessing(ctx, runID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	done, err := t.Runs.MarkCompleted(ctx, runID, time.Now().UTC())
	if err != nil {
		return err
	}
	if done {
		metrics.RunsCompletedTotal.Inc()
		log := logger.WithComponent("run_tracker")
		log.Info().Str("run_id", runID.String()).Msg("run completed")
	}
	return nil
}

// DrainSweep drain-checks every running run. The pollers only check runs
// they just dispatched for, so a run whose last items were terminated out of
// band, say by a reply or bounce webhook, would otherwise stay running
// forever.
func (t *RunTracker) DrainSweep(ctx context.Context) error {
	runs, err := t.Runs.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running runs: %w", err)
	}
	for _, run := range runs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.DrainCheck(ctx, run.ID); err != nil {
			log := logger.WithComponent("run_tracker")
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("drain sweep check failed")
		}
	}
	return nil
}

// RunDrainSweeps blocks until ctx is cancelled, sweeping at the configured
// interval.
func (t *RunTracker) RunDrainSweeps(ctx context.Context, interval time.Duration) {
	log := logger.WithComponent("run_tracker")
	log.Info().Dur("interval", interval).Msg("drain sweep started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("drain sweep stopped")
			return
		case <-ticker.C:
			if err := t.DrainSweep(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("drain sweep failed")
			}
		}
	}
}

// GetRunStats returns the run row with its queue-item status breakdown.
func (t *RunTracker) GetRunStats(ctx context.Context, runID uuid.UUID) (*model.RunStats, error) {
	run, err := t.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	counts, err := t.Queue.CountsByStatus(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &model.RunStats{Run: run, CountsByStatus: counts}, nil
}

// enqueueChannels is the set of channels Start seeds directly. The call leg
// of an email_and_call campaign with a deferred trigger is chained by the
// email dispatcher instead.
func enqueueChannels(campaign *model.Campaign) []model.Channel {
	channels := campaign.Channels()
	if campaign.Type == model.CampaignTypeEmailAndCall && campaign.TriggerCallOn == model.TriggerCallAfterEmail {
		return []model.Channel{model.ChannelEmail}
	}
	return channels
}

func filterLeads(leads []*model.Lead, ids []uuid.UUID) []*model.Lead {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := leads[:0]
	for _, lead := range leads {
		if _, ok := want[lead.ID]; ok {
			out = append(out, lead)
		}
	}
	return out
}
