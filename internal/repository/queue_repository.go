package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
)

// QueueRepositoryInterface is the store contract the poller, dispatchers and
// run tracker operate against.
type QueueRepositoryInterface interface {
	Enqueue(ctx context.Context, items []*model.QueueItem) (int, error)
	Lease(ctx context.Context, ch model.Channel, companyID uuid.UUID, now time.Time, wallClock string, limit int, workerID string) ([]*model.QueueItem, error)
	Terminate(ctx context.Context, ch model.Channel, id uuid.UUID, status string, processedAt time.Time, errMsg string) error
	Requeue(ctx context.Context, ch model.Channel, id uuid.UUID, scheduledFor time.Time, retryCount int, errMsg string) error
	ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int, error)
	CancelRun(ctx context.Context, runID uuid.UUID, now time.Time) (int, error)
	FailPendingForLead(ctx context.Context, ch model.Channel, leadID uuid.UUID, now time.Time, reason string) (int, error)
	CancelPendingForLead(ctx context.Context, ch model.Channel, campaignID, leadID uuid.UUID, now time.Time, reason string) (int, error)
	CountSent(ctx context.Context, ch model.Channel, companyID uuid.UUID, since time.Time) (int, error)
	CountPending(ctx context.Context, ch model.Channel, companyID uuid.UUID) (int, error)
	CountPendingOrProcessing(ctx context.Context, runID uuid.UUID) (int, error)
	CountsByStatus(ctx context.Context, runID uuid.UUID) (map[string]int, error)
	CancelRequested(ctx context.Context, ch model.Channel, id uuid.UUID) (bool, error)
}

type QueueRepository struct {
	DB *sql.DB
}

var queueTables = map[model.Channel]string{
	model.ChannelEmail:    "email_queue",
	model.ChannelCall:     "call_queue",
	model.ChannelLinkedIn: "linkedin_queue",
}

func queueTable(ch model.Channel) string {
	if t, ok := queueTables[ch]; ok {
		return t
	}
	return "email_queue"
}

const queueColumns = `id, company_id, campaign_id, campaign_run_id, lead_id, channel, stage, status,
	priority, subject, body, email_log_id, work_start, work_end, scheduled_for, processed_at,
	retry_count, max_retries, error_message, leased_by, leased_at, cancel_requested, created_at, updated_at`

func scanQueueItem(row interface{ Scan(...any) error }) (*model.QueueItem, error) {
	var it model.QueueItem
	err := row.Scan(
		&it.ID, &it.CompanyID, &it.CampaignID, &it.CampaignRunID, &it.LeadID,
		&it.Channel, &it.Stage, &it.Status,
		&it.Priority, &it.Subject, &it.Body, &it.EmailLogID, &it.WorkStart, &it.WorkEnd,
		&it.ScheduledFor, &it.ProcessedAt,
		&it.RetryCount, &it.MaxRetries, &it.ErrorMsg, &it.LeasedBy, &it.LeasedAt,
		&it.CancelRequested, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Enqueue inserts pending rows, one statement per item. A duplicate
// (campaign_run_id, lead_id, stage) hits the unique index and is coalesced
// into the existing row. Returns how many rows were actually inserted.
func (r *QueueRepository) Enqueue(ctx context.Context, items []*model.QueueItem) (int, error) {
	inserted := 0
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.Status == "" {
			it.Status = model.StatusPending
		}
		if it.ScheduledFor.IsZero() {
			it.ScheduledFor = time.Now().UTC()
		}
		query := fmt.Sprintf(`
			INSERT INTO %s (id, company_id, campaign_id, campaign_run_id, lead_id, channel, stage, status,
				priority, subject, body, email_log_id, work_start, work_end, scheduled_for, max_retries)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, queueTable(it.Channel))
		_, err := r.DB.ExecContext(ctx, query,
			it.ID, it.CompanyID, it.CampaignID, it.CampaignRunID, it.LeadID, it.Channel, it.Stage, it.Status,
			it.Priority, it.Subject, it.Body, it.EmailLogID, it.WorkStart, it.WorkEnd, it.ScheduledFor, it.MaxRetries,
		)
		if err != nil {
			var pqErr *pq.Error
			if asPQError(err, &pqErr) && pqErr.Code == "23505" {
				continue
			}
			return inserted, fmt.Errorf("enqueue %s item: %w", it.Channel, err)
		}
		inserted++
	}
	return inserted, nil
}

// Lease atomically claims up to limit ready rows for a worker. Rows are
// selected with FOR UPDATE SKIP LOCKED so competing pollers never double
// claim. The work-window predicate compares the tenant-local wall clock
// against the window copied onto the item at enqueue time, handling windows
// that wrap midnight.
func (r *QueueRepository) Lease(ctx context.Context, ch model.Channel, companyID uuid.UUID, now time.Time, wallClock string, limit int, workerID string) ([]*model.QueueItem, error) {
	query := fmt.Sprintf(`
		WITH ready AS (
			SELECT id FROM %[1]s
			WHERE company_id = $1
			  AND status = 'pending'
			  AND scheduled_for <= $2
			  AND (
				work_start IS NULL OR work_end IS NULL
				OR (work_start <= work_end AND $3 >= work_start AND $3 <= work_end)
				OR (work_start > work_end AND ($3 >= work_start OR $3 <= work_end))
			  )
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $4
		)
		UPDATE %[1]s q
		SET status = 'processing', leased_by = $5, leased_at = $2, updated_at = now()
		FROM ready
		WHERE q.id = ready.id
		RETURNING `+qualified(queueColumns, "q"), queueTable(ch))

	rows, err := r.DB.QueryContext(ctx, query, companyID, now, wallClock, limit, workerID)
	if err != nil {
		return nil, fmt.Errorf("lease %s: %w", ch, err)
	}
	defer rows.Close()

	items := []*model.QueueItem{}
	for rows.Next() {
		it, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Terminate moves a processing row to a terminal state. The status guard
// makes the transition reject rows the caller does not hold.
func (r *QueueRepository) Terminate(ctx context.Context, ch model.Channel, id uuid.UUID, status string, processedAt time.Time, errMsg string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, processed_at = $3, error_message = $4,
			leased_by = NULL, leased_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, queueTable(ch))
	res, err := r.DB.ExecContext(ctx, query, id, status, processedAt, errMsg)
	if err != nil {
		return fmt.Errorf("terminate %s item %s: %w", ch, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrNotLeased
	}
	return nil
}

// Requeue returns a processing row to pending with an advanced schedule.
func (r *QueueRepository) Requeue(ctx context.Context, ch model.Channel, id uuid.UUID, scheduledFor time.Time, retryCount int, errMsg string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'pending', scheduled_for = $2, retry_count = $3, error_message = $4,
			leased_by = NULL, leased_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, queueTable(ch))
	res, err := r.DB.ExecContext(ctx, query, id, scheduledFor, retryCount, errMsg)
	if err != nil {
		return fmt.Errorf("requeue %s item %s: %w", ch, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrNotLeased
	}
	return nil
}

// ReleaseStaleLeases recovers items whose worker died mid-dispatch. The retry
// count advances so a crash loop still terminates at max_retries.
func (r *QueueRepository) ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for _, table := range queueTables {
		query := fmt.Sprintf(`
			UPDATE %s
			SET status = 'pending', retry_count = retry_count + 1,
				leased_by = NULL, leased_at = NULL, updated_at = now()
			WHERE status = 'processing' AND leased_at < $1
		`, table)
		res, err := r.DB.ExecContext(ctx, query, cutoff)
		if err != nil {
			return total, fmt.Errorf("release stale leases in %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// CancelRun cancels all pending items of a run immediately and flags
// processing items so dispatchers stop before the transport call.
func (r *QueueRepository) CancelRun(ctx context.Context, runID uuid.UUID, now time.Time) (int, error) {
	cancelled := 0
	for _, table := range queueTables {
		query := fmt.Sprintf(`
			UPDATE %s
			SET status = 'cancelled', processed_at = $2, updated_at = now()
			WHERE campaign_run_id = $1 AND status = 'pending'
		`, table)
		res, err := r.DB.ExecContext(ctx, query, runID, now)
		if err != nil {
			return cancelled, fmt.Errorf("cancel pending in %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		cancelled += int(n)

		flag := fmt.Sprintf(`
			UPDATE %s SET cancel_requested = true, updated_at = now()
			WHERE campaign_run_id = $1 AND status = 'processing'
		`, table)
		if _, err := r.DB.ExecContext(ctx, flag, runID); err != nil {
			return cancelled, fmt.Errorf("flag processing in %s: %w", table, err)
		}
	}
	return cancelled, nil
}

// FailPendingForLead terminates pending items targeting a lead whose contact
// key went bad (hard bounce, invalid number).
func (r *QueueRepository) FailPendingForLead(ctx context.Context, ch model.Channel, leadID uuid.UUID, now time.Time, reason string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed', processed_at = $2, error_message = $3, updated_at = now()
		WHERE lead_id = $1 AND status = 'pending'
	`, queueTable(ch))
	res, err := r.DB.ExecContext(ctx, query, leadID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("fail pending for lead %s: %w", leadID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CancelPendingForLead cancels a lead's pending items within one campaign.
// Replies end that campaign's sequence for the lead without touching the
// lead's work in other campaigns.
func (r *QueueRepository) CancelPendingForLead(ctx context.Context, ch model.Channel, campaignID, leadID uuid.UUID, now time.Time, reason string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'cancelled', processed_at = $3, error_message = $4, updated_at = now()
		WHERE campaign_id = $1 AND lead_id = $2 AND status = 'pending'
	`, queueTable(ch))
	res, err := r.DB.ExecContext(ctx, query, campaignID, leadID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel pending for lead %s: %w", leadID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountSent counts successful sends in the window. Throttle counters track
// sent rows, not attempts.
func (r *QueueRepository) CountSent(ctx context.Context, ch model.Channel, companyID uuid.UUID, since time.Time) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE company_id = $1 AND status = 'sent' AND processed_at >= $2
	`, queueTable(ch))
	var n int
	if err := r.DB.QueryRowContext(ctx, query, companyID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return n, nil
}

// CountPending reports queue depth for a tenant channel.
func (r *QueueRepository) CountPending(ctx context.Context, ch model.Channel, companyID uuid.UUID) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = $1 AND status = 'pending'`, queueTable(ch))
	var n int
	if err := r.DB.QueryRowContext(ctx, query, companyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// CountPendingOrProcessing is the drain predicate input: non-terminal items
// of a run across all channels.
func (r *QueueRepository) CountPendingOrProcessing(ctx context.Context, runID uuid.UUID) (int, error) {
	total := 0
	for _, table := range queueTables {
		query := fmt.Sprintf(`
			SELECT COUNT(*) FROM %s
			WHERE campaign_run_id = $1 AND status IN ('pending', 'processing')
		`, table)
		var n int
		if err := r.DB.QueryRowContext(ctx, query, runID).Scan(&n); err != nil {
			return 0, fmt.Errorf("count non-terminal in %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// CountsByStatus aggregates a run's queue items by status across channels.
func (r *QueueRepository) CountsByStatus(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	counts := map[string]int{
		model.StatusPending: 0, model.StatusProcessing: 0, model.StatusSent: 0,
		model.StatusFailed: 0, model.StatusCancelled: 0, model.StatusSkipped: 0,
	}
	for _, table := range queueTables {
		query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s WHERE campaign_run_id = $1 GROUP BY status`, table)
		rows, err := r.DB.QueryContext(ctx, query, runID)
		if err != nil {
			return nil, fmt.Errorf("counts by status in %s: %w", table, err)
		}
		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				rows.Close()
				return nil, err
			}
			counts[status] += n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// CancelRequested re-reads the cancellation flag of a leased item; checked by
// dispatchers right before the transport call.
func (r *QueueRepository) CancelRequested(ctx context.Context, ch model.Channel, id uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`SELECT cancel_requested FROM %s WHERE id = $1`, queueTable(ch))
	var flagged bool
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&flagged)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flagged, nil
}

var _ QueueRepositoryInterface = (*QueueRepository)(nil)
