package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relayworks/outreach-backend/internal/model"
)

// LogRepositoryInterface covers the per-channel dispatch logs and their
// engagement state.
type LogRepositoryInterface interface {
	CreateEmailLog(ctx context.Context, log *model.EmailLog) error
	GetEmailLogByID(ctx context.Context, id uuid.UUID) (*model.EmailLog, error)
	FindEmailLog(ctx context.Context, campaignID, leadID, runID uuid.UUID) (*model.EmailLog, error)
	CreateEmailLogDetail(ctx context.Context, detail *model.EmailLogDetail) error
	GetFirstLogDetail(ctx context.Context, emailLogID uuid.UUID) (*model.EmailLogDetail, error)
	CountLogDetails(ctx context.Context, emailLogID uuid.UUID) (int, error)
	MarkReplied(ctx context.Context, emailLogID uuid.UUID) error
	MarkOpened(ctx context.Context, emailLogID uuid.UUID) error
	SetLastReminder(ctx context.Context, emailLogID uuid.UUID, stage string, at time.Time) error
	ListReminderCandidates(ctx context.Context, campaignID uuid.UUID, priorStage string, cutoff time.Time) ([]*model.EmailLog, error)

	CreateCall(ctx context.Context, call *model.Call) error
	SetProviderCallID(ctx context.Context, callID uuid.UUID, providerCallID string) error
	CompleteCallByProviderID(ctx context.Context, providerCallID string, update CallCompletion) (*model.Call, error)

	CreateLinkedInMessage(ctx context.Context, msg *model.LinkedInMessage) error
	CountInvitationsSince(ctx context.Context, companyID uuid.UUID, since time.Time) (int, error)
	MarkLinkedInReplied(ctx context.Context, companyID uuid.UUID, chatID string) error
	MarkInvitationAccepted(ctx context.Context, companyID uuid.UUID, leadID uuid.UUID, at time.Time) error
}

// CallCompletion carries the asynchronous transcript webhook payload fields.
type CallCompletion struct {
	Duration         int
	Sentiment        string
	Summary          string
	Transcript       string
	RecordingURL     string
	HasMeetingBooked bool
	CompletedAt      time.Time
}

type LogRepository struct {
	DB *sql.DB
}

const emailLogColumns = `id, company_id, campaign_id, campaign_run_id, lead_id, sent_at,
	has_replied, has_opened, has_meeting_booked, open_count, click_count,
	last_reminder_sent, last_reminder_sent_at`

func scanEmailLog(row interface{ Scan(...any) error }) (*model.EmailLog, error) {
	var l model.EmailLog
	err := row.Scan(&l.ID, &l.CompanyID, &l.CampaignID, &l.CampaignRunID, &l.LeadID, &l.SentAt,
		&l.HasReplied, &l.HasOpened, &l.HasMeetingBooked, &l.OpenCount, &l.ClickCount,
		&l.LastReminderSent, &l.LastReminderSentAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LogRepository) CreateEmailLog(ctx context.Context, log *model.EmailLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO email_logs (id, company_id, campaign_id, campaign_run_id, lead_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.ID, log.CompanyID, log.CampaignID, log.CampaignRunID, log.LeadID, log.SentAt)
	if err != nil {
		return fmt.Errorf("create email log: %w", err)
	}
	return nil
}

func (r *LogRepository) GetEmailLogByID(ctx context.Context, id uuid.UUID) (*model.EmailLog, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+emailLogColumns+` FROM email_logs WHERE id = $1`, id)
	l, err := scanEmailLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email log %s: %w", id, err)
	}
	return l, nil
}

// FindEmailLog locates the log of a prior send for the same (campaign, lead,
// run); lets a retried item reuse its log instead of creating a second one.
func (r *LogRepository) FindEmailLog(ctx context.Context, campaignID, leadID, runID uuid.UUID) (*model.EmailLog, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+emailLogColumns+` FROM email_logs
		WHERE campaign_id = $1 AND lead_id = $2 AND campaign_run_id = $3
	`, campaignID, leadID, runID)
	l, err := scanEmailLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find email log: %w", err)
	}
	return l, nil
}

func (r *LogRepository) CreateEmailLogDetail(ctx context.Context, d *model.EmailLogDetail) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO email_log_details (id, email_logs_id, message_id, email_subject, email_body,
			sender_type, reminder_type, from_name, from_email, to_email, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, d.ID, d.EmailLogsID, d.MessageID, d.Subject, d.Body,
		d.SenderType, d.ReminderType, d.FromName, d.FromEmail, d.ToEmail, d.SentAt)
	if err != nil {
		var pqErr *pq.Error
		// Duplicate provider message id: the send already landed once.
		if asPQError(err, &pqErr) && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("create email log detail: %w", err)
	}
	return nil
}

// GetFirstLogDetail returns the initial outbound message of a thread, which
// reminder generation references.
func (r *LogRepository) GetFirstLogDetail(ctx context.Context, emailLogID uuid.UUID) (*model.EmailLogDetail, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, email_logs_id, message_id, email_subject, email_body, sender_type, reminder_type,
			from_name, from_email, to_email, sent_at
		FROM email_log_details
		WHERE email_logs_id = $1 AND sender_type = 'assistant'
		ORDER BY sent_at ASC
		LIMIT 1
	`, emailLogID)
	var d model.EmailLogDetail
	err := row.Scan(&d.ID, &d.EmailLogsID, &d.MessageID, &d.Subject, &d.Body, &d.SenderType, &d.ReminderType,
		&d.FromName, &d.FromEmail, &d.ToEmail, &d.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get first log detail: %w", err)
	}
	return &d, nil
}

func (r *LogRepository) CountLogDetails(ctx context.Context, emailLogID uuid.UUID) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_log_details WHERE email_logs_id = $1 AND sender_type = 'assistant'
	`, emailLogID).Scan(&n)
	return n, err
}

func (r *LogRepository) MarkReplied(ctx context.Context, emailLogID uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE email_logs SET has_replied = true WHERE id = $1`, emailLogID)
	return err
}

// MarkOpened is idempotent for the flag; the open counter advances per
// delivery, which is what the engagement signals want.
func (r *LogRepository) MarkOpened(ctx context.Context, emailLogID uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE email_logs SET has_opened = true, open_count = open_count + 1 WHERE id = $1`, emailLogID)
	return err
}

func (r *LogRepository) SetLastReminder(ctx context.Context, emailLogID uuid.UUID, stage string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE email_logs SET last_reminder_sent = $2, last_reminder_sent_at = $3 WHERE id = $1
	`, emailLogID, stage, at)
	return err
}

// ListReminderCandidates selects logs due for the stage after priorStage:
// an initial message actually went out, no reply, no meeting, the run was not
// cancelled, the lead is still reachable, and the previous touch is older
// than the cutoff. priorStage is "" when looking for r1 candidates, in which
// case the initial sent_at is the elapsed-time anchor.
func (r *LogRepository) ListReminderCandidates(ctx context.Context, campaignID uuid.UUID, priorStage string, cutoff time.Time) ([]*model.EmailLog, error) {
	anchor := `el.last_reminder_sent_at`
	if priorStage == "" {
		anchor = `el.sent_at`
	}
	query := fmt.Sprintf(`
		SELECT %s FROM email_logs el
		JOIN leads l ON l.id = el.lead_id
		JOIN campaign_runs cr ON cr.id = el.campaign_run_id
		WHERE el.campaign_id = $1
		  AND el.last_reminder_sent = $2
		  AND el.has_replied = false
		  AND el.has_meeting_booked = false
		  AND cr.status <> 'cancelled'
		  AND l.deleted = false AND l.unsubscribed = false AND l.email_bounced = false
		  AND EXISTS (
			SELECT 1 FROM email_log_details d
			WHERE d.email_logs_id = el.id AND d.sender_type = 'assistant'
		  )
		  AND %s <= $3
	`, qualified(emailLogColumns, "el"), anchor)

	rows, err := r.DB.QueryContext(ctx, query, campaignID, priorStage, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	defer rows.Close()

	logs := []*model.EmailLog{}
	for rows.Next() {
		l, err := scanEmailLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *LogRepository) CreateCall(ctx context.Context, call *model.Call) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	call.CreatedAt = time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO calls (id, company_id, campaign_id, campaign_run_id, lead_id, provider_call_id, script, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, call.ID, call.CompanyID, call.CampaignID, call.CampaignRunID, call.LeadID, call.ProviderCallID, call.Script, call.CreatedAt)
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	return nil
}

func (r *LogRepository) SetProviderCallID(ctx context.Context, callID uuid.UUID, providerCallID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE calls SET provider_call_id = $2 WHERE id = $1`, callID, providerCallID)
	return err
}

// CompleteCallByProviderID reconciles the transcript webhook. Returns the
// updated row, or nil when the provider id is unknown.
func (r *LogRepository) CompleteCallByProviderID(ctx context.Context, providerCallID string, u CallCompletion) (*model.Call, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE calls
		SET duration = $2, sentiment = $3, summary = $4, transcript = $5,
			recording_url = $6, has_meeting_booked = $7, completed_at = $8
		WHERE provider_call_id = $1
		RETURNING id, company_id, campaign_id, campaign_run_id, lead_id, provider_call_id, script,
			duration, sentiment, summary, transcript, recording_url, has_meeting_booked, created_at, completed_at
	`, providerCallID, u.Duration, u.Sentiment, u.Summary, u.Transcript,
		u.RecordingURL, u.HasMeetingBooked, u.CompletedAt)

	var c model.Call
	err := row.Scan(&c.ID, &c.CompanyID, &c.CampaignID, &c.CampaignRunID, &c.LeadID, &c.ProviderCallID, &c.Script,
		&c.Duration, &c.Sentiment, &c.Summary, &c.Transcript, &c.RecordingURL, &c.HasMeetingBooked, &c.CreatedAt, &c.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("complete call %s: %w", providerCallID, err)
	}
	return &c, nil
}

func (r *LogRepository) CreateLinkedInMessage(ctx context.Context, msg *model.LinkedInMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO linkedin_messages (id, company_id, campaign_id, campaign_run_id, lead_id, kind, chat_id, content, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, msg.ID, msg.CompanyID, msg.CampaignID, msg.CampaignRunID, msg.LeadID, msg.Kind, msg.ChatID, msg.Content, msg.SentAt)
	if err != nil {
		return fmt.Errorf("create linkedin message: %w", err)
	}
	return nil
}

// CountInvitationsSince supports the daily invitation cap mirrored from the
// provider.
func (r *LogRepository) CountInvitationsSince(ctx context.Context, companyID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM linkedin_messages
		WHERE company_id = $1 AND kind = 'invitation' AND sent_at >= $2
	`, companyID, since).Scan(&n)
	return n, err
}

func (r *LogRepository) MarkLinkedInReplied(ctx context.Context, companyID uuid.UUID, chatID string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE linkedin_messages SET has_replied = true
		WHERE company_id = $1 AND chat_id = $2
	`, companyID, chatID)
	return err
}

func (r *LogRepository) MarkInvitationAccepted(ctx context.Context, companyID uuid.UUID, leadID uuid.UUID, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE linkedin_messages SET accepted_at = $3
		WHERE company_id = $1 AND lead_id = $2 AND kind = 'invitation' AND accepted_at IS NULL
	`, companyID, leadID, at)
	return err
}

var _ LogRepositoryInterface = (*LogRepository)(nil)
