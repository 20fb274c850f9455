package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
)

// InboundProcessor applies engagement events coming back from the outside
// world: opens, replies, bounces, call transcripts and LinkedIn activity.
// All operations are idempotent so webhook redeliveries are harmless.
type InboundProcessor struct {
	Logs        repository.LogRepositoryInterface
	Leads       repository.LeadRepositoryInterface
	Companies   repository.CompanyRepositoryInterface
	Queue       repository.QueueRepositoryInterface
	Suppression repository.SuppressionRepositoryInterface
}

// RecordOpen counts a tracking-pixel hit against the email log.
func (p *InboundProcessor) RecordOpen(ctx context.Context, emailLogID uuid.UUID) error {
	if err := p.Logs.MarkOpened(ctx, emailLogID); err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	metrics.WebhookEventsTotal.WithLabelValues("email_open").Inc()
	return nil
}

// RecordReply marks the thread replied and stores the lead's message. The
// detail insert dedupes on provider message id, so replays collapse.
func (p *InboundProcessor) RecordReply(ctx context.Context, emailLogID uuid.UUID, messageID, fromEmail, subject, body string) error {
	emailLog, err := p.Logs.GetEmailLogByID(ctx, emailLogID)
	if err != nil {
		return err
	}
	if emailLog == nil {
		return fmt.Errorf("record reply: email log %s not found", emailLogID)
	}
	if err := p.Logs.MarkReplied(ctx, emailLogID); err != nil {
		return err
	}
	detail := &model.EmailLogDetail{
		EmailLogsID: emailLogID,
		MessageID:   messageID,
		Subject:     subject,
		Body:        body,
		SenderType:  model.SenderLead,
		FromEmail:   fromEmail,
		SentAt:      time.Now().UTC(),
	}
	if err := p.Logs.CreateEmailLogDetail(ctx, detail); err != nil {
		return err
	}

	// A reply ends this campaign's sequence for the lead; the lead's work in
	// other campaigns is untouched.
	n, err := p.Queue.CancelPendingForLead(ctx, model.ChannelEmail, emailLog.CampaignID, emailLog.LeadID, time.Now().UTC(), "lead replied")
	if err != nil {
		return err
	}
	if n > 0 {
		log := logger.WithComponent("inbound")
		log.Info().
			Str("lead_id", emailLog.LeadID.String()).Int("cancelled", n).
			Msg("queued follow-ups dropped after reply")
	}
	metrics.WebhookEventsTotal.WithLabelValues("email_reply").Inc()
	return nil
}

// AttributeReply extracts the email log id from a plus-addressed reply-to
// recipient, e.g. jane+8a1b...-....@reply.example.com.
func AttributeReply(toAddress string) (uuid.UUID, bool) {
	local := toAddress
	if i := strings.Index(toAddress, "@"); i >= 0 {
		local = toAddress[:i]
	}
	i := strings.LastIndex(local, "+")
	if i < 0 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(local[i+1:])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RecordBounce suppresses the address tenant-wide: every lead holding it is
// flagged and their queued email work is failed out.
func (p *InboundProcessor) RecordBounce(ctx context.Context, companyID uuid.UUID, email, reason string) error {
	if reason == "" {
		reason = "hard bounce"
	}
	if err := p.Suppression.Add(ctx, companyID, email, reason); err != nil {
		return err
	}
	leadIDs, err := p.Leads.MarkEmailBounced(ctx, companyID, email)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, leadID := range leadIDs {
		if _, err := p.Queue.FailPendingForLead(ctx, model.ChannelEmail, leadID, now, "email bounced"); err != nil {
			return err
		}
	}
	metrics.WebhookEventsTotal.WithLabelValues("email_bounce").Inc()
	log := logger.WithComponent("inbound")
	log.Info().
		Str("company_id", companyID.String()).Int("leads", len(leadIDs)).
		Msg("bounced address suppressed")
	return nil
}

// RecordCallCompletion reconciles the telephony transcript webhook.
func (p *InboundProcessor) RecordCallCompletion(ctx context.Context, providerCallID string, completion repository.CallCompletion) error {
	call, err := p.Logs.CompleteCallByProviderID(ctx, providerCallID, completion)
	if err != nil {
		return err
	}
	if call == nil {
		log := logger.WithComponent("inbound")
		log.Warn().
			Str("provider_call_id", providerCallID).Msg("completion for unknown call")
		return nil
	}
	metrics.WebhookEventsTotal.WithLabelValues("call_completed").Inc()
	return nil
}

// RecordLinkedInReply marks the chat replied for the tenant owning accountID.
func (p *InboundProcessor) RecordLinkedInReply(ctx context.Context, accountID, chatID string) error {
	company, err := p.Companies.GetByLinkedInAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("linkedin reply: no company for account %s", accountID)
	}
	if err := p.Logs.MarkLinkedInReplied(ctx, company.ID, chatID); err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues("linkedin_reply").Inc()
	return nil
}

// RecordInvitationAccepted stamps the acceptance on the lead's invitation.
func (p *InboundProcessor) RecordInvitationAccepted(ctx context.Context, accountID, linkedinID string) error {
	company, err := p.Companies.GetByLinkedInAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("invitation accepted: no company for account %s", accountID)
	}
	lead, err := p.Leads.GetByLinkedInID(ctx, company.ID, linkedinID)
	if err != nil {
		return err
	}
	if lead == nil {
		return fmt.Errorf("invitation accepted: no lead %s for company %s", linkedinID, company.ID)
	}
	if err := p.Logs.MarkInvitationAccepted(ctx, company.ID, lead.ID, time.Now().UTC()); err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues("linkedin_invitation_accepted").Inc()
	return nil
}

// RecordAccountStatus flips the tenant's LinkedIn channel on or off.
func (p *InboundProcessor) RecordAccountStatus(ctx context.Context, accountID string, connected bool) error {
	company, err := p.Companies.GetByLinkedInAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("account status: no company for account %s", accountID)
	}
	if err := p.Companies.SetLinkedInConnected(ctx, company.ID, connected); err != nil {
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues("linkedin_account_status").Inc()
	log := logger.WithComponent("inbound")
	log.Info().
		Str("company_id", company.ID.String()).Bool("connected", connected).
		Msg("linkedin account status updated")
	return nil
}
