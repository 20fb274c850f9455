package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/queue"
)

type runEnv struct {
	queue     *fakeQueue
	runs      *fakeRuns
	leads     *fakeLeads
	campaigns *fakeCampaigns
	tracker   *RunTracker

	company  *model.Company
	campaign *model.Campaign
}

func newRunEnv(t *testing.T, campaignType string, leads ...*model.Lead) *runEnv {
	t.Helper()
	company := &model.Company{ID: uuid.New(), Name: "Acme", Timezone: "UTC"}
	campaign := &model.Campaign{
		ID:        uuid.New(),
		CompanyID: company.ID,
		Type:      campaignType,
	}
	for _, lead := range leads {
		lead.CompanyID = company.ID
	}

	env := &runEnv{
		queue:     newFakeQueue(),
		runs:      newFakeRuns(),
		leads:     newFakeLeads(leads...),
		campaigns: newFakeCampaigns(campaign),
		company:   company,
		campaign:  campaign,
	}
	env.tracker = &RunTracker{
		Runs:       env.runs,
		Queue:      env.queue,
		Campaigns:  env.campaigns,
		Leads:      env.leads,
		Throttle:   newFakeThrottle(),
		MaxRetries: 3,
	}
	return env
}

func TestRunStartEnqueuesEligibleLeads(t *testing.T) {
	withEmail := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	noContact := &model.Lead{ID: uuid.New()}
	env := newRunEnv(t, model.CampaignTypeEmail, withEmail, noContact)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusIdle, run.Status)

	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, got.Status)
	require.Equal(t, 1, got.LeadsTotal)

	item := env.queue.byStage(run.ID, model.ChannelEmail, model.StageInitial)
	require.NotNil(t, item)
	require.Equal(t, withEmail.ID, item.LeadID)
	require.Equal(t, 3, item.MaxRetries)
	require.Equal(t, 1, item.Priority)
}

func TestRunStartIsIdempotent(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)

	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	counts, err := env.queue.CountsByStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts[model.StatusPending])
}

func TestRunStartRespectsLeadFilter(t *testing.T) {
	wanted := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	other := &model.Lead{ID: uuid.New(), Email: "b@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, wanted, other)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, []uuid.UUID{wanted.ID}))

	counts, err := env.queue.CountsByStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts[model.StatusPending])

	item := env.queue.byStage(run.ID, model.ChannelEmail, model.StageInitial)
	require.Equal(t, wanted.ID, item.LeadID)
}

func TestRunStartDefersChainedCallChannel(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test", PhoneNumber: "+15550100"}
	env := newRunEnv(t, model.CampaignTypeEmailAndCall, lead)
	env.campaign.TriggerCallOn = model.TriggerCallAfterEmail
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	require.NotNil(t, env.queue.byStage(run.ID, model.ChannelEmail, model.StageInitial))
	require.Nil(t, env.queue.byStage(run.ID, model.ChannelCall, model.StageInitial))
}

func TestRunStartSeedsBothChannelsWithoutTrigger(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test", PhoneNumber: "+15550100"}
	env := newRunEnv(t, model.CampaignTypeEmailAndCall, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	require.NotNil(t, env.queue.byStage(run.ID, model.ChannelEmail, model.StageInitial))
	require.NotNil(t, env.queue.byStage(run.ID, model.ChannelCall, model.StageInitial))
}

func TestRunCancelDropsPendingAndFlagsProcessing(t *testing.T) {
	leadA := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	leadB := &model.Lead{ID: uuid.New(), Email: "b@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, leadA, leadB)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	// Lease exactly one item so the run has one in-flight dispatch.
	leased, err := env.queue.Lease(ctx, model.ChannelEmail, env.company.ID, time.Now().UTC(), "12:00", 1, "w1")
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, env.tracker.Cancel(ctx, run.ID))

	counts, err := env.queue.CountsByStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counts[model.StatusCancelled])
	require.Equal(t, 1, counts[model.StatusProcessing])

	flagged, err := env.queue.CancelRequested(ctx, model.ChannelEmail, leased[0].ID)
	require.NoError(t, err)
	require.True(t, flagged)

	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCancelled, got.Status)
}

func TestDrainCheckCompletesRunOnce(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	// Still pending work: no completion yet.
	require.NoError(t, env.tracker.DrainCheck(ctx, run.ID))
	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, got.Status)

	leased, err := env.queue.Lease(ctx, model.ChannelEmail, env.company.ID, time.Now().UTC(), "12:00", 10, "w1")
	require.NoError(t, err)
	require.NoError(t, env.queue.Terminate(ctx, model.ChannelEmail, leased[0].ID, model.StatusSent, time.Now().UTC(), ""))

	require.NoError(t, env.tracker.DrainCheck(ctx, run.ID))
	got, err = env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, got.Status)

	// Repeat calls stay quiet.
	require.NoError(t, env.tracker.DrainCheck(ctx, run.ID))
}

func TestDrainSweepCompletesExternallyDrainedRuns(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	// The last item terminates outside a dispatcher, the way a bounce
	// handler fails pending work, so nothing calls DrainCheck for it.
	leased, err := env.queue.Lease(ctx, model.ChannelEmail, env.company.ID, time.Now().UTC(), "12:00", 10, "w1")
	require.NoError(t, err)
	require.NoError(t, env.queue.Terminate(ctx, model.ChannelEmail, leased[0].ID, model.StatusFailed, time.Now().UTC(), "mailbox bounced"))

	require.NoError(t, env.tracker.DrainSweep(ctx))

	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, got.Status)
}

func TestRunStartWithNoWorkCompletesImmediately(t *testing.T) {
	env := newRunEnv(t, model.CampaignTypeEmail)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusCompleted, got.Status)
}

func TestHandleCommandDropsMalformedPayload(t *testing.T) {
	env := newRunEnv(t, model.CampaignTypeEmail)
	require.NoError(t, env.tracker.HandleCommand([]byte("not json")))
}

func TestHandleCommandRoutesActions(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)

	payload, err := json.Marshal(queue.RunCommand{Action: queue.ActionStart, RunID: run.ID})
	require.NoError(t, err)
	require.NoError(t, env.tracker.HandleCommand(payload))

	got, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusRunning, got.Status)
}

func TestGetRunStats(t *testing.T) {
	lead := &model.Lead{ID: uuid.New(), Email: "a@lead.test"}
	env := newRunEnv(t, model.CampaignTypeEmail, lead)
	ctx := context.Background()

	run, err := env.tracker.CreateRun(ctx, env.campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.tracker.Start(ctx, run.ID, nil))

	stats, err := env.tracker.GetRunStats(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, stats.Run.ID)
	require.Equal(t, 1, stats.CountsByStatus[model.StatusPending])
}
