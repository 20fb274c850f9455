package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/relayworks/outreach-backend/internal/backoff"
	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
)

type linkedinEnv struct {
	queue     *fakeQueue
	runs      *fakeRuns
	logs      *fakeLogs
	companies *fakeCompanies
	client    *fakeLinkedIn

	dispatcher *LinkedInDispatcher

	company  *model.Company
	lead     *model.Lead
	campaign *model.Campaign
	run      *model.CampaignRun
}

func newLinkedInEnv(t *testing.T) *linkedinEnv {
	t.Helper()
	company := &model.Company{
		ID:                uuid.New(),
		Name:              "Acme",
		Timezone:          "UTC",
		LinkedInAccountID: "acct-1",
		LinkedInConnected: true,
	}
	lead := &model.Lead{
		ID:               uuid.New(),
		CompanyID:        company.ID,
		Name:             "Bob Buyer",
		LinkedInID:       "profile-bob",
		LinkedInDistance: model.DistanceFirst,
		JobTitle:         "VP Sales",
		LeadCompany:      "Buyer Inc",
	}
	campaign := &model.Campaign{
		ID:        uuid.New(),
		CompanyID: company.ID,
		Type:      model.CampaignTypeLinkedIn,
	}
	run := &model.CampaignRun{
		ID:         uuid.New(),
		CompanyID:  company.ID,
		CampaignID: campaign.ID,
		Status:     model.RunStatusRunning,
		LeadsTotal: 1,
	}

	env := &linkedinEnv{
		queue:     newFakeQueue(),
		runs:      newFakeRuns(),
		logs:      newFakeLogs(),
		companies: newFakeCompanies(company),
		client:    &fakeLinkedIn{},
		company:   company,
		lead:      lead,
		campaign:  campaign,
		run:       run,
	}
	require.NoError(t, env.runs.Create(context.Background(), run))

	core := &DispatchCore{
		Queue:       env.queue,
		Runs:        env.runs,
		Leads:       newFakeLeads(lead),
		Campaigns:   newFakeCampaigns(campaign),
		Companies:   env.companies,
		Logs:        env.logs,
		Generator:   &fakeGenerator{message: "Hi Bob, worth a chat?"},
		CallTimeout: time.Second,
	}
	env.dispatcher = &LinkedInDispatcher{
		Core:           core,
		Client:         env.client,
		Policy:         backoff.Policy{Base: 2 * time.Minute, MaxRetries: 3},
		DailyInviteCap: 20,
	}
	return env
}

func (env *linkedinEnv) leasedItem(t *testing.T) *model.QueueItem {
	t.Helper()
	item := &model.QueueItem{
		CompanyID:     env.company.ID,
		CampaignID:    env.campaign.ID,
		CampaignRunID: env.run.ID,
		LeadID:        env.lead.ID,
		Channel:       model.ChannelLinkedIn,
		Stage:         model.StageInitial,
		ScheduledFor:  time.Now().UTC().Add(-time.Minute),
		MaxRetries:    3,
	}
	_, err := env.queue.Enqueue(context.Background(), []*model.QueueItem{item})
	require.NoError(t, err)
	leased, err := env.queue.Lease(context.Background(), model.ChannelLinkedIn, env.company.ID, time.Now().UTC(), "12:00", 10, "test-worker")
	require.NoError(t, err)
	require.Len(t, leased, 1)
	return leased[0]
}

func TestLinkedInDispatchMessagesFirstDegree(t *testing.T) {
	env := newLinkedInEnv(t)
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusSent, env.queue.get(item.ID).Status)
	require.Equal(t, []string{"profile-bob"}, env.client.messages)
	require.Empty(t, env.client.invitations)

	require.Len(t, env.logs.linkedin, 1)
	require.Equal(t, model.LinkedInKindMessage, env.logs.linkedin[0].Kind)
	require.Equal(t, "chat-profile-bob", env.logs.linkedin[0].ChatID)
}

func TestLinkedInDispatchInvitesOutOfNetwork(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceSecond
	env.campaign.LinkedInInvitationTemplate = "Hi {first_name}, let's connect."
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusSent, env.queue.get(item.ID).Status)
	require.Equal(t, []string{"profile-bob"}, env.client.invitations)
	require.Empty(t, env.client.messages)
	require.Equal(t, model.LinkedInKindInvitation, env.logs.linkedin[0].Kind)
}

func TestLinkedInDispatchPrefersInvitationTemplateOverInMail(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceThird
	env.campaign.LinkedInInvitationTemplate = "Hi {first_name}, let's connect."
	env.campaign.LinkedInInMailEnabled = true
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, []string{"profile-bob"}, env.client.invitations)
	require.Empty(t, env.client.inmails)
	require.Equal(t, model.LinkedInKindInvitation, env.logs.linkedin[0].Kind)
}

func TestLinkedInDispatchFallsBackToInMail(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceThird
	env.campaign.LinkedInInMailEnabled = true
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, []string{"profile-bob"}, env.client.inmails)
	require.Empty(t, env.client.invitations)
	require.Equal(t, model.LinkedInKindInMail, env.logs.linkedin[0].Kind)
}

func TestLinkedInDispatchSkipsOutOfNetworkWithoutOptions(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceSecond
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusSkipped, env.queue.get(item.ID).Status)
	require.Empty(t, env.client.invitations)
	require.Empty(t, env.client.inmails)
	require.Empty(t, env.client.messages)
}

func TestLinkedInDispatchRendersInvitationTemplate(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceSecond
	env.campaign.LinkedInInvitationTemplate = "Hi {first_name}, saw your work at {company}."
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Len(t, env.logs.linkedin, 1)
	require.Equal(t, "Hi Bob, saw your work at Buyer Inc.", env.logs.linkedin[0].Content)
}

func TestLinkedInDispatchDefersAtInviteCap(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInDistance = model.DistanceSecond
	env.campaign.LinkedInInvitationTemplate = "Hi {first_name}, let's connect."
	env.dispatcher.DailyInviteCap = 1
	require.NoError(t, env.logs.CreateLinkedInMessage(context.Background(), &model.LinkedInMessage{
		CompanyID: env.company.ID,
		Kind:      model.LinkedInKindInvitation,
		SentAt:    time.Now().UTC().Add(-time.Hour),
	}))

	item := env.leasedItem(t)
	env.dispatcher.Dispatch(context.Background(), item)

	got := env.queue.get(item.ID)
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, 0, got.RetryCount)
	require.Empty(t, env.client.invitations)
}

func TestLinkedInDispatchAuthFailurePausesTenant(t *testing.T) {
	env := newLinkedInEnv(t)
	env.client.err = appErrors.Ef(appErrors.KindAuth, "linkedin", "token expired")
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusFailed, env.queue.get(item.ID).Status)
	require.False(t, env.company.LinkedInConnected)
}

func TestLinkedInDispatchFailsWhenDisconnected(t *testing.T) {
	env := newLinkedInEnv(t)
	env.company.LinkedInConnected = false
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusFailed, env.queue.get(item.ID).Status)
	require.Empty(t, env.client.messages)
}

func TestLinkedInDispatchSkipsMissingProfile(t *testing.T) {
	env := newLinkedInEnv(t)
	env.lead.LinkedInID = ""
	item := env.leasedItem(t)

	env.dispatcher.Dispatch(context.Background(), item)

	require.Equal(t, model.StatusSkipped, env.queue.get(item.ID).Status)
}
