package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relayworks/outreach-backend/internal/backoff"
	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/throttle"
	"github.com/relayworks/outreach-backend/internal/transport"
)

// CallDispatcher starts one outbound provider call. The call is fire-and-
// forget from the queue's point of view: transcript and outcome arrive later
// on the callback URL and are recorded by the webhook handler.
type CallDispatcher struct {
	Core      *DispatchCore
	Telephony transport.TelephonyClient

	Policy backoff.Policy

	// DailyCallCap bounds provider usage per tenant on top of throttle
	// settings; zero disables the check.
	DailyCallCap int

	CallbackBaseURL string
}

func (d *CallDispatcher) Channel() model.Channel { return model.ChannelCall }

func (d *CallDispatcher) Dispatch(ctx context.Context, item *model.QueueItem) {
	log := itemLogger("call_dispatch", item)

	if d.Core.cancelledMidFlight(ctx, item, log) {
		return
	}
	graph, err := d.Core.resolve(ctx, item)
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}
	lead, company := graph.lead, graph.company

	switch {
	case lead.PhoneNumber == "":
		d.Core.skip(ctx, item, "lead has no phone number", log)
		return
	case lead.PhoneInvalid:
		d.Core.skip(ctx, item, "phone number previously flagged invalid", log)
		return
	case lead.Unsubscribed:
		d.Core.skip(ctx, item, "lead unsubscribed", log)
		return
	}

	if d.DailyCallCap > 0 {
		placed, err := d.Core.Queue.CountSent(ctx, model.ChannelCall, item.CompanyID, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			log.Warn().Err(err).Msg("daily cap check failed, continuing")
		} else if placed >= d.DailyCallCap {
			next := throttle.NextWindowStart(time.Now().UTC(), false)
			if err := d.Core.Queue.Requeue(ctx, item.Channel, item.ID, next, item.RetryCount, "provider daily call cap reached"); err != nil {
				log.Error().Err(err).Msg("cap requeue failed")
				return
			}
			log.Warn().Time("next_attempt", next).Msg("daily call cap reached, deferred")
			return
		}
	}

	script := item.Body
	if script == "" {
		script, err = d.generateScript(ctx, item, graph, log)
		if err != nil {
			d.Core.completeFailure(ctx, item, d.Policy, err, log)
			return
		}
	}

	callLog := &model.Call{
		ID:            uuid.New(),
		CompanyID:     item.CompanyID,
		CampaignID:    item.CampaignID,
		CampaignRunID: item.CampaignRunID,
		LeadID:        item.LeadID,
		Script:        script,
		CreatedAt:     time.Now().UTC(),
	}
	if err := d.Core.Logs.CreateCall(ctx, callLog); err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindTransient, "call", err), log)
		return
	}

	startCtx, cancel := context.WithTimeout(ctx, d.Core.CallTimeout)
	providerCallID, err := d.Telephony.StartCall(startCtx, &transport.StartCallRequest{
		PhoneNumber: lead.PhoneNumber,
		Script:      script,
		FromNumber:  company.PhoneNumber,
		CallbackURL: callbackURL(d.CallbackBaseURL),
	})
	cancel()
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}
	if err := d.Core.Logs.SetProviderCallID(ctx, callLog.ID, providerCallID); err != nil {
		log.Error().Err(err).Str("provider_call_id", providerCallID).Msg("provider call id write failed")
	}

	d.Core.succeed(ctx, item, log)
}

func (d *CallDispatcher) generateScript(ctx context.Context, item *model.QueueItem, graph *resolved, log zerolog.Logger) (string, error) {
	product, err := d.Core.Campaigns.GetProductByID(ctx, graph.campaign.ProductID)
	if err != nil {
		product = nil
	}
	req := &transport.ContentRequest{
		Lead:     graph.lead,
		Company:  graph.company,
		Product:  product,
		Campaign: graph.campaign,
		Insights: d.Core.insightsFor(ctx, graph.lead, graph.company, log),
		Stage:    item.Stage,
	}
	return generate(ctx, d.Core, model.ChannelCall, func(callCtx context.Context) (string, error) {
		return d.Core.Generator.CallScript(callCtx, req)
	})
}

func callbackURL(base string) string {
	return fmt.Sprintf("%s/webhooks/call", strings.TrimRight(base, "/"))
}

var _ Dispatcher = (*CallDispatcher)(nil)
