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
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/transport"
)

// emailBodySlot is the template placeholder the generated body is spliced
// into. Templates without the slot are sent as-is with the body appended.
const emailBodySlot = "{email_body}"

// EmailDispatcher sends one email queue item: generates content, wraps it in
// the campaign template, stamps the tracking pixel and reply-to handle, and
// records the log rows the webhook ingestor later attributes events to.
type EmailDispatcher struct {
	Core          *DispatchCore
	Throttle      repository.ThrottleRepositoryInterface
	SenderFactory transport.EmailSenderFactory

	Policy     backoff.Policy
	Strategies []string

	TrackingBaseURL string
	ReplyDomain     string
}

func (d *EmailDispatcher) Channel() model.Channel { return model.ChannelEmail }

func (d *EmailDispatcher) Dispatch(ctx context.Context, item *model.QueueItem) {
	log := itemLogger("email_dispatch", item)

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
	case lead.Email == "":
		d.Core.skip(ctx, item, "lead has no email address", log)
		return
	case lead.EmailBounced:
		d.Core.skip(ctx, item, "email address previously bounced", log)
		return
	case lead.Unsubscribed:
		d.Core.skip(ctx, item, "lead unsubscribed", log)
		return
	}
	suppressed, err := d.Core.Suppression.Contains(ctx, item.CompanyID, lead.Email)
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindTransient, "email", err), log)
		return
	}
	if suppressed {
		d.Core.skip(ctx, item, "address on do-not-contact list", log)
		return
	}

	password, err := d.Core.Codec.Decrypt(company.AccountPassword)
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindAuth, "email", err), log)
		return
	}
	creds := transport.SMTPCredentials{
		Email:    company.AccountEmail,
		Password: password,
		Provider: company.AccountType,
	}

	// Reminders target the log of the initial send; the initial stage reuses a
	// log left behind by a failed earlier attempt so retries never double-log.
	var emailLog *model.EmailLog
	if item.EmailLogID != nil {
		emailLog, err = d.Core.Logs.GetEmailLogByID(ctx, *item.EmailLogID)
		if err != nil {
			d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindTransient, "email", err), log)
			return
		}
		if emailLog == nil {
			d.Core.completeFailure(ctx, item, d.Policy,
				appErrors.Ef(appErrors.KindData, "email", "email log %s missing", *item.EmailLogID), log)
			return
		}
		if emailLog.HasReplied || emailLog.HasMeetingBooked {
			d.Core.skip(ctx, item, "lead already engaged", log)
			return
		}
	} else {
		emailLog, err = d.Core.Logs.FindEmailLog(ctx, item.CampaignID, item.LeadID, item.CampaignRunID)
		if err != nil {
			d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindTransient, "email", err), log)
			return
		}
	}
	if emailLog == nil {
		emailLog = &model.EmailLog{
			ID:            uuid.New(),
			CompanyID:     item.CompanyID,
			CampaignID:    item.CampaignID,
			CampaignRunID: item.CampaignRunID,
			LeadID:        item.LeadID,
			SentAt:        time.Now().UTC(),
		}
		if err := d.Core.Logs.CreateEmailLog(ctx, emailLog); err != nil {
			d.Core.completeFailure(ctx, item, d.Policy, appErrors.E(appErrors.KindTransient, "email", err), log)
			return
		}
	}

	subject, body := item.Subject, item.Body
	strategy := strategyFor(d.Strategies, item.Stage)
	if subject == "" || body == "" {
		content, err := d.generateContent(ctx, item, graph, emailLog, strategy, log)
		if err != nil {
			d.Core.completeFailure(ctx, item, d.Policy, err, log)
			return
		}
		subject, body = content.Subject, content.Body
	}

	html := renderEmailTemplate(campaign.Template, body)
	html += trackingPixel(d.TrackingBaseURL, emailLog.ID)

	msg := &transport.EmailMessage{
		FromName:  transport.SenderNameFromEmail(company.AccountEmail),
		FromEmail: company.AccountEmail,
		To:        lead.Email,
		Subject:   subject,
		HTML:      html,
	}
	if d.ReplyDomain != "" {
		msg.ReplyTo = replyHandle(company.AccountEmail, emailLog.ID, d.ReplyDomain)
	}
	if item.EmailLogID != nil {
		// Thread the follow-up under the initial message.
		if first, err := d.Core.Logs.GetFirstLogDetail(ctx, emailLog.ID); err == nil && first != nil {
			msg.InReplyTo = first.MessageID
			if msg.Subject != "" && !strings.HasPrefix(strings.ToLower(msg.Subject), "re:") {
				msg.Subject = "Re: " + first.Subject
			}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.Core.CallTimeout)
	messageID, err := d.SenderFactory(creds).Send(sendCtx, msg)
	cancel()
	if err != nil {
		d.Core.completeFailure(ctx, item, d.Policy, err, log)
		return
	}

	now := time.Now().UTC()
	detail := &model.EmailLogDetail{
		EmailLogsID: emailLog.ID,
		MessageID:   messageID,
		Subject:     msg.Subject,
		Body:        html,
		SenderType:  model.SenderAssistant,
		FromName:    msg.FromName,
		FromEmail:   msg.FromEmail,
		ToEmail:     msg.To,
		SentAt:      now,
	}
	if item.EmailLogID != nil {
		detail.ReminderType = strategy
		if err := d.Core.Logs.SetLastReminder(ctx, emailLog.ID, item.Stage, now); err != nil {
			log.Error().Err(err).Msg("reminder cursor update failed")
		}
	}
	if err := d.Core.Logs.CreateEmailLogDetail(ctx, detail); err != nil {
		log.Error().Err(err).Msg("log detail write failed")
	}

	d.Core.succeed(ctx, item, log)
	d.chainCall(ctx, item, campaign, lead, log)
}

func (d *EmailDispatcher) generateContent(ctx context.Context, item *model.QueueItem, graph *resolved, emailLog *model.EmailLog, strategy string, log zerolog.Logger) (*transport.EmailContent, error) {
	product, err := d.Core.Campaigns.GetProductByID(ctx, graph.campaign.ProductID)
	if err != nil {
		product = nil
	}
	req := &transport.ContentRequest{
		Lead:        graph.lead,
		Company:     graph.company,
		Product:     product,
		Campaign:    graph.campaign,
		Insights:    d.Core.insightsFor(ctx, graph.lead, graph.company, log),
		Stage:       item.Stage,
		StrategyTag: strategy,
		Engagement: transport.EngagementSignals{
			Opens:  emailLog.OpenCount,
			Clicks: emailLog.ClickCount,
		},
	}
	if item.EmailLogID != nil {
		if first, err := d.Core.Logs.GetFirstLogDetail(ctx, emailLog.ID); err == nil && first != nil {
			req.PriorSubject = first.Subject
			req.PriorBody = first.Body
		}
	}
	return generate(ctx, d.Core, model.ChannelEmail, func(callCtx context.Context) (*transport.EmailContent, error) {
		return d.Core.Generator.EmailContent(callCtx, req)
	})
}

// chainCall enqueues the deferred call leg of an email_and_call campaign once
// the initial email is out. Duplicate chains coalesce on the queue's unique
// index, so retry replays are harmless.
func (d *EmailDispatcher) chainCall(ctx context.Context, item *model.QueueItem, campaign *model.Campaign, lead *model.Lead, l zerolog.Logger) {
	if item.Stage != model.StageInitial ||
		campaign.Type != model.CampaignTypeEmailAndCall ||
		campaign.TriggerCallOn != model.TriggerCallAfterEmail {
		return
	}
	if lead.PhoneNumber == "" || lead.PhoneInvalid {
		l.Info().Msg("call chain skipped, lead not callable")
		return
	}

	settings, err := d.Throttle.Get(ctx, item.CompanyID, model.ChannelCall)
	if err != nil {
		l.Error().Err(err).Msg("call chain settings lookup failed")
		settings = model.DefaultThrottleSettings(item.CompanyID, model.ChannelCall)
	}
	callItem := &model.QueueItem{
		CompanyID:     item.CompanyID,
		CampaignID:    item.CampaignID,
		CampaignRunID: item.CampaignRunID,
		LeadID:        item.LeadID,
		Channel:       model.ChannelCall,
		Stage:         model.StageInitial,
		Priority:      1,
		WorkStart:     settings.WorkStart,
		WorkEnd:       settings.WorkEnd,
		ScheduledFor:  time.Now().UTC(),
		MaxRetries:    item.MaxRetries,
	}
	if _, err := d.Core.Queue.Enqueue(ctx, []*model.QueueItem{callItem}); err != nil {
		l.Error().Err(err).Msg("call chain enqueue failed")
		return
	}
	l.Info().Msg("chained call enqueued")
}

func renderEmailTemplate(template, body string) string {
	if template == "" {
		return body
	}
	if strings.Contains(template, emailBodySlot) {
		return strings.ReplaceAll(template, emailBodySlot, body)
	}
	return template + "\n" + body
}

func trackingPixel(baseURL string, logID uuid.UUID) string {
	return fmt.Sprintf(`<img src="%s/track/open/%s" width="1" height="1" alt="" style="display:none"/>`,
		strings.TrimRight(baseURL, "/"), logID)
}

// replyHandle builds a plus-addressed reply-to that encodes the email log id,
// e.g. jane+8a1b...@reply.example.com, so inbound replies attribute without
// parsing headers.
func replyHandle(fromEmail string, logID uuid.UUID, replyDomain string) string {
	local := fromEmail
	if i := strings.Index(fromEmail, "@"); i >= 0 {
		local = fromEmail[:i]
	}
	return fmt.Sprintf("%s+%s@%s", local, logID, replyDomain)
}

var _ Dispatcher = (*EmailDispatcher)(nil)
