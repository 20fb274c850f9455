package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/transport"
)

// Map-backed fakes for the repository interfaces. Methods a test never
// reaches are inherited from the embedded nil interface and panic loudly if
// hit, which is what we want.

type fakeQueue struct {
	repository.QueueRepositoryInterface
	mu    sync.Mutex
	items map[uuid.UUID]*model.QueueItem
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[uuid.UUID]*model.QueueItem)}
}

func (q *fakeQueue) add(item *model.QueueItem) *model.QueueItem {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = model.StatusPending
	}
	q.items[item.ID] = item
	return item
}

func (q *fakeQueue) Enqueue(_ context.Context, items []*model.QueueItem) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	inserted := 0
	for _, item := range items {
		dup := false
		for _, have := range q.items {
			if have.Channel == item.Channel && have.CampaignRunID == item.CampaignRunID &&
				have.LeadID == item.LeadID && have.Stage == item.Stage {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		q.add(item)
		inserted++
	}
	return inserted, nil
}

func (q *fakeQueue) Lease(_ context.Context, ch model.Channel, companyID uuid.UUID, now time.Time, _ string, limit int, workerID string) ([]*model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var leased []*model.QueueItem
	for _, item := range q.items {
		if len(leased) >= limit {
			break
		}
		if item.Channel != ch || item.CompanyID != companyID {
			continue
		}
		if item.Status != model.StatusPending || item.ScheduledFor.After(now) {
			continue
		}
		item.Status = model.StatusProcessing
		item.LeasedBy = &workerID
		at := now
		item.LeasedAt = &at
		leased = append(leased, item)
	}
	return leased, nil
}

func (q *fakeQueue) Terminate(_ context.Context, _ model.Channel, id uuid.UUID, status string, processedAt time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.Status != model.StatusProcessing {
		return appErrors.ErrNotLeased
	}
	item.Status = status
	item.ProcessedAt = &processedAt
	item.ErrorMsg = errMsg
	return nil
}

func (q *fakeQueue) Requeue(_ context.Context, _ model.Channel, id uuid.UUID, scheduledFor time.Time, retryCount int, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.Status != model.StatusProcessing {
		return appErrors.ErrNotLeased
	}
	item.Status = model.StatusPending
	item.ScheduledFor = scheduledFor
	item.RetryCount = retryCount
	item.ErrorMsg = errMsg
	item.LeasedBy = nil
	item.LeasedAt = nil
	return nil
}

func (q *fakeQueue) CancelRun(_ context.Context, runID uuid.UUID, _ time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.CampaignRunID != runID {
			continue
		}
		switch item.Status {
		case model.StatusPending:
			item.Status = model.StatusCancelled
			n++
		case model.StatusProcessing:
			item.CancelRequested = true
		}
	}
	return n, nil
}

func (q *fakeQueue) FailPendingForLead(_ context.Context, ch model.Channel, leadID uuid.UUID, _ time.Time, reason string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Channel == ch && item.LeadID == leadID && item.Status == model.StatusPending {
			item.Status = model.StatusFailed
			item.ErrorMsg = reason
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CancelPendingForLead(_ context.Context, ch model.Channel, campaignID, leadID uuid.UUID, _ time.Time, reason string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Channel == ch && item.CampaignID == campaignID && item.LeadID == leadID &&
			item.Status == model.StatusPending {
			item.Status = model.StatusCancelled
			item.ErrorMsg = reason
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CountSent(_ context.Context, ch model.Channel, companyID uuid.UUID, since time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Channel == ch && item.CompanyID == companyID && item.Status == model.StatusSent &&
			item.ProcessedAt != nil && item.ProcessedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CountPending(_ context.Context, ch model.Channel, companyID uuid.UUID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Channel == ch && item.CompanyID == companyID && item.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CountPendingOrProcessing(_ context.Context, runID uuid.UUID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.CampaignRunID == runID &&
			(item.Status == model.StatusPending || item.Status == model.StatusProcessing) {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CountsByStatus(_ context.Context, runID uuid.UUID) (map[string]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := make(map[string]int)
	for _, item := range q.items {
		if item.CampaignRunID == runID {
			counts[item.Status]++
		}
	}
	return counts, nil
}

func (q *fakeQueue) CancelRequested(_ context.Context, _ model.Channel, id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return false, fmt.Errorf("no item %s", id)
	}
	return item.CancelRequested, nil
}

func (q *fakeQueue) get(id uuid.UUID) *model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items[id]
}

func (q *fakeQueue) byStage(runID uuid.UUID, ch model.Channel, stage string) *model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.CampaignRunID == runID && item.Channel == ch && item.Stage == stage {
			return item
		}
	}
	return nil
}

type fakeRuns struct {
	repository.RunRepositoryInterface
	mu   sync.Mutex
	runs map[uuid.UUID]*model.CampaignRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[uuid.UUID]*model.CampaignRun)}
}

func (r *fakeRuns) Create(_ context.Context, run *model.CampaignRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = model.RunStatusIdle
	}
	r.runs[run.ID] = run
	return nil
}

func (r *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*model.CampaignRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, appErrors.NewRunNotFound(id)
	}
	return run, nil
}

func (r *fakeRuns) MarkRunning(_ context.Context, id uuid.UUID, leadsTotal int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if ok && run.Status == model.RunStatusIdle {
		run.Status = model.RunStatusRunning
		run.LeadsTotal = leadsTotal
		run.StartedAt = &now
	}
	return nil
}

func (r *fakeRuns) MarkCompleted(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != model.RunStatusRunning {
		return false, nil
	}
	run.Status = model.RunStatusCompleted
	run.CompletedAt = &now
	return true, nil
}

func (r *fakeRuns) MarkCancelled(_ context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if ok && (run.Status == model.RunStatusIdle || run.Status == model.RunStatusRunning) {
		run.Status = model.RunStatusCancelled
		run.CancelledAt = &now
	}
	return nil
}

func (r *fakeRuns) ListRunning(_ context.Context) ([]*model.CampaignRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CampaignRun
	for _, run := range r.runs {
		if run.Status == model.RunStatusRunning {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *fakeRuns) IncrementLeadsProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok && run.LeadsProcessed < run.LeadsTotal {
		run.LeadsProcessed++
	}
	return nil
}

type fakeLeads struct {
	repository.LeadRepositoryInterface
	mu    sync.Mutex
	leads map[uuid.UUID]*model.Lead
}

func newFakeLeads(leads ...*model.Lead) *fakeLeads {
	f := &fakeLeads{leads: make(map[uuid.UUID]*model.Lead)}
	for _, l := range leads {
		f.leads[l.ID] = l
	}
	return f
}

func (f *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leads[id], nil
}

func (f *fakeLeads) ListEligible(_ context.Context, companyID uuid.UUID, channels []model.Channel) ([]*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Lead
	for _, l := range f.leads {
		if l.CompanyID != companyID || l.Deleted || l.Unsubscribed {
			continue
		}
		for _, ch := range channels {
			if l.ContactFor(ch) != "" {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLeads) MarkEmailBounced(_ context.Context, companyID uuid.UUID, email string) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, l := range f.leads {
		if l.CompanyID == companyID && l.Email == email {
			l.EmailBounced = true
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func (f *fakeLeads) GetByLinkedInID(_ context.Context, companyID uuid.UUID, linkedinID string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leads {
		if l.CompanyID == companyID && l.LinkedInID == linkedinID {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeLeads) SetInsights(_ context.Context, id uuid.UUID, insights string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.leads[id]; ok {
		l.Insights = insights
	}
	return nil
}

type fakeCampaigns struct {
	repository.CampaignRepositoryInterface
	campaigns map[uuid.UUID]*model.Campaign
	products  map[uuid.UUID]*model.Product
}

func newFakeCampaigns(campaigns ...*model.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{
		campaigns: make(map[uuid.UUID]*model.Campaign),
		products:  make(map[uuid.UUID]*model.Product),
	}
	for _, c := range campaigns {
		f.campaigns[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) GetByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (f *fakeCampaigns) GetProductByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("no product %s", id)
	}
	return p, nil
}

func (f *fakeCampaigns) ListWithReminders(_ context.Context, companyID uuid.UUID) ([]*model.Campaign, error) {
	var out []*model.Campaign
	for _, c := range f.campaigns {
		if c.CompanyID == companyID && c.NReminders > 0 && !c.Deleted {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCompanies struct {
	repository.CompanyRepositoryInterface
	mu        sync.Mutex
	companies map[uuid.UUID]*model.Company
}

func newFakeCompanies(companies ...*model.Company) *fakeCompanies {
	f := &fakeCompanies{companies: make(map[uuid.UUID]*model.Company)}
	for _, c := range companies {
		f.companies[c.ID] = c
	}
	return f
}

func (f *fakeCompanies) GetByID(_ context.Context, id uuid.UUID) (*model.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.companies[id], nil
}

func (f *fakeCompanies) ListActiveForChannel(_ context.Context, ch model.Channel, offset, limit int) ([]*model.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Company
	for _, c := range f.companies {
		if c.Deleted {
			continue
		}
		all = append(all, c)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeCompanies) GetByLinkedInAccountID(_ context.Context, accountID string) (*model.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.companies {
		if c.LinkedInAccountID == accountID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCompanies) SetLinkedInConnected(_ context.Context, id uuid.UUID, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.companies[id]; ok {
		c.LinkedInConnected = connected
	}
	return nil
}

func (f *fakeCompanies) SetChannelPaused(_ context.Context, id uuid.UUID, ch model.Channel, paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return nil
	}
	switch ch {
	case model.ChannelEmail:
		c.EmailPaused = paused
	case model.ChannelCall:
		c.CallPaused = paused
	case model.ChannelLinkedIn:
		c.LinkedInConnected = !paused
	}
	return nil
}

type fakeLogs struct {
	repository.LogRepositoryInterface
	mu            sync.Mutex
	emailLogs     map[uuid.UUID]*model.EmailLog
	details       []*model.EmailLogDetail
	calls         map[uuid.UUID]*model.Call
	linkedin      []*model.LinkedInMessage
	cancelledRuns map[uuid.UUID]bool
}

func newFakeLogs() *fakeLogs {
	return &fakeLogs{
		emailLogs:     make(map[uuid.UUID]*model.EmailLog),
		calls:         make(map[uuid.UUID]*model.Call),
		cancelledRuns: make(map[uuid.UUID]bool),
	}
}

func (f *fakeLogs) CreateEmailLog(_ context.Context, log *model.EmailLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	f.emailLogs[log.ID] = log
	return nil
}

func (f *fakeLogs) GetEmailLogByID(_ context.Context, id uuid.UUID) (*model.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emailLogs[id], nil
}

func (f *fakeLogs) FindEmailLog(_ context.Context, campaignID, leadID, runID uuid.UUID) (*model.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, log := range f.emailLogs {
		if log.CampaignID == campaignID && log.LeadID == leadID && log.CampaignRunID == runID {
			return log, nil
		}
	}
	return nil, nil
}

func (f *fakeLogs) CreateEmailLogDetail(_ context.Context, d *model.EmailLogDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, have := range f.details {
		if d.MessageID != "" && have.MessageID == d.MessageID {
			return nil
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	f.details = append(f.details, d)
	return nil
}

func (f *fakeLogs) GetFirstLogDetail(_ context.Context, emailLogID uuid.UUID) (*model.EmailLogDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first *model.EmailLogDetail
	for _, d := range f.details {
		if d.EmailLogsID != emailLogID || d.SenderType != model.SenderAssistant {
			continue
		}
		if first == nil || d.SentAt.Before(first.SentAt) {
			first = d
		}
	}
	return first, nil
}

func (f *fakeLogs) MarkReplied(_ context.Context, emailLogID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log, ok := f.emailLogs[emailLogID]; ok {
		log.HasReplied = true
	}
	return nil
}

func (f *fakeLogs) MarkOpened(_ context.Context, emailLogID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log, ok := f.emailLogs[emailLogID]; ok {
		log.HasOpened = true
		log.OpenCount++
	}
	return nil
}

func (f *fakeLogs) SetLastReminder(_ context.Context, emailLogID uuid.UUID, stage string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log, ok := f.emailLogs[emailLogID]; ok {
		log.LastReminderSent = stage
		log.LastReminderSentAt = &at
	}
	return nil
}

func (f *fakeLogs) ListReminderCandidates(_ context.Context, campaignID uuid.UUID, priorStage string, cutoff time.Time) ([]*model.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.EmailLog
	for _, log := range f.emailLogs {
		if log.CampaignID != campaignID || log.HasReplied || log.HasMeetingBooked {
			continue
		}
		if log.LastReminderSent != priorStage {
			continue
		}
		if f.cancelledRuns[log.CampaignRunID] {
			continue
		}
		sent := false
		for _, d := range f.details {
			if d.EmailLogsID == log.ID && d.SenderType == model.SenderAssistant {
				sent = true
				break
			}
		}
		if !sent {
			continue
		}
		anchor := log.SentAt
		if priorStage != "" {
			if log.LastReminderSentAt == nil {
				continue
			}
			anchor = *log.LastReminderSentAt
		}
		if anchor.After(cutoff) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (f *fakeLogs) CreateCall(_ context.Context, call *model.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	f.calls[call.ID] = call
	return nil
}

func (f *fakeLogs) SetProviderCallID(_ context.Context, callID uuid.UUID, providerCallID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call, ok := f.calls[callID]; ok {
		call.ProviderCallID = providerCallID
	}
	return nil
}

func (f *fakeLogs) CompleteCallByProviderID(_ context.Context, providerCallID string, completion repository.CallCompletion) (*model.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.calls {
		if call.ProviderCallID == providerCallID {
			call.Duration = completion.Duration
			call.Sentiment = completion.Sentiment
			call.Summary = completion.Summary
			call.Transcript = completion.Transcript
			call.RecordingURL = completion.RecordingURL
			call.HasMeetingBooked = completion.HasMeetingBooked
			at := completion.CompletedAt
			call.CompletedAt = &at
			return call, nil
		}
	}
	return nil, nil
}

func (f *fakeLogs) MarkLinkedInReplied(_ context.Context, companyID uuid.UUID, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.linkedin {
		if msg.CompanyID == companyID && msg.ChatID == chatID {
			msg.HasReplied = true
		}
	}
	return nil
}

func (f *fakeLogs) MarkInvitationAccepted(_ context.Context, companyID, leadID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.linkedin {
		if msg.CompanyID == companyID && msg.LeadID == leadID && msg.Kind == model.LinkedInKindInvitation {
			msg.AcceptedAt = &at
		}
	}
	return nil
}

func (f *fakeLogs) CreateLinkedInMessage(_ context.Context, msg *model.LinkedInMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkedin = append(f.linkedin, msg)
	return nil
}

func (f *fakeLogs) CountInvitationsSince(_ context.Context, companyID uuid.UUID, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.linkedin {
		if msg.CompanyID == companyID && msg.Kind == model.LinkedInKindInvitation && msg.SentAt.After(since) {
			n++
		}
	}
	return n, nil
}

type fakeThrottle struct {
	repository.ThrottleRepositoryInterface
	settings map[string]*model.ThrottleSettings
}

func newFakeThrottle() *fakeThrottle {
	return &fakeThrottle{settings: make(map[string]*model.ThrottleSettings)}
}

func throttleKey(companyID uuid.UUID, ch model.Channel) string {
	return companyID.String() + "/" + string(ch)
}

func (f *fakeThrottle) Get(_ context.Context, companyID uuid.UUID, ch model.Channel) (*model.ThrottleSettings, error) {
	if s, ok := f.settings[throttleKey(companyID, ch)]; ok {
		return s, nil
	}
	return model.DefaultThrottleSettings(companyID, ch), nil
}

func (f *fakeThrottle) Upsert(_ context.Context, s *model.ThrottleSettings) error {
	f.settings[throttleKey(s.CompanyID, s.Channel)] = s
	return nil
}

type fakeSuppression struct {
	repository.SuppressionRepositoryInterface
	mu  sync.Mutex
	set map[string]string
}

func newFakeSuppression() *fakeSuppression {
	return &fakeSuppression{set: make(map[string]string)}
}

func (f *fakeSuppression) Add(_ context.Context, companyID uuid.UUID, email, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[companyID.String()+"/"+email] = reason
	return nil
}

func (f *fakeSuppression) Contains(_ context.Context, companyID uuid.UUID, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.set[companyID.String()+"/"+email]
	return ok, nil
}

// fakeGenerator returns canned content, or the configured error.
type fakeGenerator struct {
	emailErr error
	subject  string
	body     string
	script   string
	message  string
	insights string
}

func (g *fakeGenerator) EmailContent(context.Context, *transport.ContentRequest) (*transport.EmailContent, error) {
	if g.emailErr != nil {
		return nil, g.emailErr
	}
	return &transport.EmailContent{Subject: g.subject, Body: g.body}, nil
}

func (g *fakeGenerator) CallScript(context.Context, *transport.ContentRequest) (string, error) {
	return g.script, nil
}

func (g *fakeGenerator) LinkedInContent(context.Context, *transport.ContentRequest) (*transport.LinkedInContent, error) {
	return &transport.LinkedInContent{Message: g.message}, nil
}

func (g *fakeGenerator) Insights(context.Context, *model.Lead, *model.Company) (string, error) {
	return g.insights, nil
}

// fakeSender records outbound emails; err fails every send.
type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []*transport.EmailMessage
}

func (s *fakeSender) factory(transport.SMTPCredentials) transport.EmailSender { return s }

func (s *fakeSender) Send(_ context.Context, msg *transport.EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("<msg-%d@test>", len(s.sent)), nil
}

type fakeTelephony struct {
	mu     sync.Mutex
	err    error
	calls  []*transport.StartCallRequest
	nextID int
}

func (c *fakeTelephony) StartCall(_ context.Context, req *transport.StartCallRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.calls = append(c.calls, req)
	c.nextID++
	return fmt.Sprintf("prov-%d", c.nextID), nil
}

type fakeLinkedIn struct {
	mu          sync.Mutex
	err         error
	messages    []string
	invitations []string
	inmails     []string
}

func (c *fakeLinkedIn) SendMessage(_ context.Context, _, profileID, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.messages = append(c.messages, profileID)
	return "chat-" + profileID, nil
}

func (c *fakeLinkedIn) SendInvitation(_ context.Context, _, profileID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.invitations = append(c.invitations, profileID)
	return nil
}

func (c *fakeLinkedIn) SendInMail(_ context.Context, _, profileID, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.inmails = append(c.inmails, profileID)
	return "chat-" + profileID, nil
}
