package db

import (
	"database/sql"
	"fmt"
)

// queueTableDDL builds the shared queue shape. One table per channel keeps
// the lease scans short and lets the per-channel indexes stay small.
func queueTableDDL(table string) string {
	return fmt.Sprintf(`create table if not exists %[1]s (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	campaign_id uuid not null references campaigns(id) on delete cascade,
	campaign_run_id uuid not null references campaign_runs(id) on delete cascade,
	lead_id uuid not null references leads(id) on delete cascade,
	channel text not null,
	stage text not null default 'initial',
	status text not null default 'pending',
	priority int not null default 0,
	subject text not null default '',
	body text not null default '',
	email_log_id uuid,
	work_start text,
	work_end text,
	scheduled_for timestamptz not null default now(),
	processed_at timestamptz,
	retry_count int not null default 0,
	max_retries int not null default 3,
	error_message text not null default '',
	leased_by text,
	leased_at timestamptz,
	cancel_requested boolean not null default false,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);`, table)
}

var statements = []string{
	`create table if not exists companies (
	id uuid primary key,
	name text not null,
	timezone text not null default 'UTC',
	account_email text not null default '',
	account_password text not null default '',
	account_type text not null default '',
	email_paused boolean not null default false,
	phone_number text not null default '',
	call_paused boolean not null default false,
	linkedin_account_id text not null default '',
	linkedin_connected boolean not null default false,
	deleted boolean not null default false,
	created_at timestamptz not null default now()
);`,

	`create table if not exists products (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	name text not null,
	description text not null default '',
	deleted boolean not null default false,
	created_at timestamptz not null default now()
);`,

	`create table if not exists leads (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	name text not null default '',
	email text not null default '',
	phone_number text not null default '',
	linkedin_id text not null default '',
	linkedin_distance text not null default '',
	lead_company text not null default '',
	job_title text not null default '',
	company_size text not null default '',
	insights text not null default '',
	email_bounced boolean not null default false,
	phone_invalid boolean not null default false,
	unsubscribed boolean not null default false,
	deleted boolean not null default false,
	created_at timestamptz not null default now()
);`,

	`create table if not exists campaigns (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	product_id uuid not null,
	name text not null,
	type text not null,
	template text not null default '',
	call_script text not null default '',
	linkedin_template text not null default '',
	linkedin_invitation_template text not null default '',
	linkedin_inmail_enabled boolean not null default false,
	trigger_call_on text not null default '',
	n_reminders int not null default 0,
	days_between int not null default 2,
	deleted boolean not null default false,
	created_at timestamptz not null default now()
);`,

	`create table if not exists campaign_runs (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	campaign_id uuid not null references campaigns(id) on delete cascade,
	status text not null default 'idle',
	leads_total int not null default 0,
	leads_processed int not null default 0,
	started_at timestamptz,
	completed_at timestamptz,
	cancelled_at timestamptz,
	created_at timestamptz not null default now()
);`,

	queueTableDDL("email_queue"),
	queueTableDDL("call_queue"),
	queueTableDDL("linkedin_queue"),

	`create table if not exists email_logs (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	campaign_id uuid not null,
	campaign_run_id uuid not null,
	lead_id uuid not null,
	sent_at timestamptz not null default now(),
	has_replied boolean not null default false,
	has_opened boolean not null default false,
	has_meeting_booked boolean not null default false,
	open_count int not null default 0,
	click_count int not null default 0,
	last_reminder_sent text not null default '',
	last_reminder_sent_at timestamptz
);`,

	`create table if not exists email_log_details (
	id uuid primary key,
	email_logs_id uuid not null references email_logs(id) on delete cascade,
	message_id text not null default '',
	email_subject text not null default '',
	email_body text not null default '',
	sender_type text not null,
	reminder_type text not null default '',
	from_name text not null default '',
	from_email text not null default '',
	to_email text not null default '',
	sent_at timestamptz not null default now()
);`,

	`create table if not exists calls (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	campaign_id uuid not null,
	campaign_run_id uuid not null,
	lead_id uuid not null,
	provider_call_id text not null default '',
	script text not null default '',
	duration int not null default 0,
	sentiment text not null default '',
	summary text not null default '',
	transcript text not null default '',
	recording_url text not null default '',
	has_meeting_booked boolean not null default false,
	created_at timestamptz not null default now(),
	completed_at timestamptz
);`,

	`create table if not exists linkedin_messages (
	id uuid primary key,
	company_id uuid not null references companies(id) on delete cascade,
	campaign_id uuid not null,
	campaign_run_id uuid not null,
	lead_id uuid not null,
	kind text not null,
	chat_id text not null default '',
	content text not null default '',
	has_replied boolean not null default false,
	accepted_at timestamptz,
	sent_at timestamptz not null default now()
);`,

	`create table if not exists throttle_settings (
	company_id uuid not null references companies(id) on delete cascade,
	channel text not null,
	enabled boolean not null default true,
	max_per_hour int not null default 300,
	max_per_day int not null default 300,
	work_start text,
	work_end text,
	enforce_work_window boolean not null default false,
	primary key (company_id, channel)
);`,

	`create table if not exists do_not_contact (
	company_id uuid not null references companies(id) on delete cascade,
	email text not null,
	reason text not null default '',
	created_at timestamptz not null default now(),
	primary key (company_id, email)
);`,

	// One non-terminal item per (run, lead, stage); enqueue relies on this
	// for dedup.
	`create unique index if not exists uq_email_queue_run_lead_stage on email_queue(campaign_run_id, lead_id, stage);`,
	`create unique index if not exists uq_call_queue_run_lead_stage on call_queue(campaign_run_id, lead_id, stage);`,
	`create unique index if not exists uq_linkedin_queue_run_lead_stage on linkedin_queue(campaign_run_id, lead_id, stage);`,

	// Provider message-id dedup on the replay path.
	`create unique index if not exists uq_email_log_details_message_id on email_log_details(message_id) where message_id <> '';`,
	`create unique index if not exists uq_calls_provider_call_id on calls(provider_call_id) where provider_call_id <> '';`,

	// Lease scans.
	`create index if not exists idx_email_queue_lease on email_queue(company_id, status, scheduled_for);`,
	`create index if not exists idx_call_queue_lease on call_queue(company_id, status, scheduled_for);`,
	`create index if not exists idx_linkedin_queue_lease on linkedin_queue(company_id, status, scheduled_for);`,
	`create index if not exists idx_email_queue_run on email_queue(campaign_run_id, status);`,
	`create index if not exists idx_call_queue_run on call_queue(campaign_run_id, status);`,
	`create index if not exists idx_linkedin_queue_run on linkedin_queue(campaign_run_id, status);`,

	`create index if not exists idx_email_logs_campaign on email_logs(campaign_id);`,
	`create index if not exists idx_email_logs_reminder on email_logs(company_id, has_replied, last_reminder_sent);`,
	`create index if not exists idx_campaign_runs_status on campaign_runs(status);`,
	`create index if not exists idx_leads_company on leads(company_id);`,
}

// Migrate applies the schema. Every statement is idempotent so the function
// is safe to run on every boot.
func Migrate(conn *sql.DB) error {
	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w (sql=%.60s)", err, stmt)
		}
	}
	return nil
}
