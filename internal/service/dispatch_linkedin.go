package service

import (
	"context"
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

// LinkedInDispatcher routes one LinkedIn queue item by network distance:
// first-degree connections get a direct message; out-of-network leads get a
// connection invitation when the campaign carries an invitation template, an
// InMail when the campaign pays for them, and are skipped otherwise.
type LinkedInDispatcher struct {
	Core   *DispatchCore
	Client transport.LinkedInClient

	Policy backoff.Policy

	// DailyInviteCap is the provider's safe ceiling on connection requests
	// per account per day.
	DailyInviteCap int

	// SendDelay spaces consecutive sends on the same account so activity
	// looks human to the provider.
	SendDelay time.Duration
}

func (d *LinkedInDispatcher) Channel() model.Channel { return model.ChannelLinkedIn }

func (d *LinkedInDispatcher) Dispatch(ctx context.Context, item *model.QueueItem) {
	log := itemLogger("linkedin_dispatch", item)

	if d.Core.cancelledMidFlight(ctx, item, log) {
		return
	}
	graph, err := d.Core.resolve(ctx, item)
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}
	lead, campaign, company := graph.lead, graph.campaign, graph.company

	switch {
	case lead.LinkedInID == "":
		d.Core.skip(ctx, item, "lead has no linkedin profile", log)
		return
	case lead.Unsubscribed:
		d.Core.skip(ctx, item, "lead unsubscribed", log)
		return
	case !company.LinkedInConnected:
		// Account dropped mid-flight; leave the item for the next poll after
		// the account reconnects.
		d.Core.completeFailure(ctx, item, d.Policy,
			appErrors.Ef(appErrors.KindAuth, "linkedin", "account %s disconnected", company.LinkedInAccountID), log)
		return
	}

	kind := model.LinkedInKindMessage
	if lead.LinkedInDistance != model.DistanceFirst {
		switch {
		case campaign.LinkedInInvitationTemplate != "":
			kind = model.LinkedInKindInvitation
		case campaign.LinkedInInMailEnabled:
			kind = model.LinkedInKindInMail
		default:
			d.Core.skip(ctx, item, "lead out of network, no invitation template and inmail disabled", log)
			return
		}
	}

	if kind == model.LinkedInKindInvitation && d.DailyInviteCap > 0 {
		sent, err := d.Core.Logs.CountInvitationsSince(ctx, item.CompanyID, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			log.Warn().Err(err).Msg("invite cap check failed, continuing")
		} else if sent >= d.DailyInviteCap {
			next := throttle.NextWindowStart(time.Now().UTC(), false)
			if err := d.Core.Queue.Requeue(ctx, item.Channel, item.ID, next, item.RetryCount, "daily invitation cap reached"); err != nil {
				log.Error().Err(err).Msg("cap requeue failed")
				return
			}
			log.Warn().Time("next_attempt", next).Msg("invitation cap reached, deferred")
			return
		}
	}

	text, err := d.textFor(ctx, item, graph, kind, log)
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.Core.CallTimeout)
	var chatID string
	switch kind {
	case model.LinkedInKindMessage:
		chatID, err = d.Client.SendMessage(sendCtx, company.LinkedInAccountID, lead.LinkedInID, text)
	case model.LinkedInKindInMail:
		chatID, err = d.Client.SendInMail(sendCtx, company.LinkedInAccountID, lead.LinkedInID, text)
	default:
		err = d.Client.SendInvitation(sendCtx, company.LinkedInAccountID, lead.LinkedInID, text)
	}
	cancel()
	if err != nil {
		// Auth failures inside completeFailure flip linkedin_connected off, so
		// the tenant's channel stays dark until the account webhook restores it.
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}

	msg := &model.LinkedInMessage{
		ID:            uuid.New(),
		CompanyID:     item.CompanyID,
		CampaignID:    item.CampaignID,
		CampaignRunID: item.CampaignRunID,
		LeadID:        item.LeadID,
		Kind:          kind,
		ChatID:        chatID,
		Content:       text,
		SentAt:        time.Now().UTC(),
	}
	if err := d.Core.Logs.CreateLinkedInMessage(ctx, msg); err != nil {
		log.Error().Err(err).Msg("linkedin log write failed")
	}

	d.Core.succeed(ctx, item, log)

	// Pace the account before the worker picks the next item.
	if d.SendDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d.SendDelay):
		}
	}
}

// textFor picks the campaign template when one is set; otherwise the content
// generator writes the touch. Invitations are always template-rendered, since
// the kind is only selected when the campaign carries a template.
func (d *LinkedInDispatcher) textFor(ctx context.Context, item *model.QueueItem, graph *resolved, kind string, log zerolog.Logger) (string, error) {
	if kind == model.LinkedInKindInvitation {
		return renderLinkedInTemplate(graph.campaign.LinkedInInvitationTemplate, graph.lead), nil
	}
	if graph.campaign.LinkedInTemplate != "" {
		return renderLinkedInTemplate(graph.campaign.LinkedInTemplate, graph.lead), nil
	}

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
	content, err := generate(ctx, d.Core, model.ChannelLinkedIn, func(callCtx context.Context) (*transport.LinkedInContent, error) {
		return d.Core.Generator.LinkedInContent(callCtx, req)
	})
	if err != nil {
		return "", err
	}
	return content.Message, nil
}

// renderLinkedInTemplate fills the lead placeholders tenants use in their
// connection templates.
func renderLinkedInTemplate(template string, lead *model.Lead) string {
	r := strings.NewReplacer(
		"{name}", lead.Name,
		"{first_name}", firstName(lead.Name),
		"{company}", lead.LeadCompany,
		"{job_title}", lead.JobTitle,
	)
	return r.Replace(template)
}

func firstName(full string) string {
	if fields := strings.Fields(full); len(fields) > 0 {
		return fields[0]
	}
	return full
}

var _ Dispatcher = (*LinkedInDispatcher)(nil)
