package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/queue"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/service"
)

type stubRuns struct {
	repository.RunRepositoryInterface
	runs map[uuid.UUID]*model.CampaignRun
}

func (s *stubRuns) Create(_ context.Context, run *model.CampaignRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *stubRuns) GetByID(_ context.Context, id uuid.UUID) (*model.CampaignRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, appErrors.NewRunNotFound(id)
	}
	return run, nil
}

type stubCampaigns struct {
	repository.CampaignRepositoryInterface
	campaign *model.Campaign
}

func (s *stubCampaigns) GetByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	if s.campaign != nil && s.campaign.ID == id {
		return s.campaign, nil
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

type stubQueueRepo struct {
	repository.QueueRepositoryInterface
	counts map[string]int
}

func (s *stubQueueRepo) CountsByStatus(context.Context, uuid.UUID) (map[string]int, error) {
	return s.counts, nil
}

type stubThrottle struct {
	repository.ThrottleRepositoryInterface
	saved *model.ThrottleSettings
}

func (s *stubThrottle) Upsert(_ context.Context, settings *model.ThrottleSettings) error {
	s.saved = settings
	return nil
}

// recordingBus captures published commands instead of delivering them.
type recordingBus struct {
	published []queue.RunCommand
	err       error
}

func (b *recordingBus) Publish(_ string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	var cmd queue.RunCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return err
	}
	b.published = append(b.published, cmd)
	return nil
}

func (b *recordingBus) Subscribe(string, func([]byte) error) error { return nil }

type controllerEnv struct {
	runs     *stubRuns
	throttle *stubThrottle
	bus      *recordingBus
	campaign *model.Campaign
	router   *chi.Mux
}

func newControllerEnv() *controllerEnv {
	campaign := &model.Campaign{ID: uuid.New(), CompanyID: uuid.New(), Type: model.CampaignTypeEmail}
	env := &controllerEnv{
		runs:     &stubRuns{runs: make(map[uuid.UUID]*model.CampaignRun)},
		throttle: &stubThrottle{},
		bus:      &recordingBus{},
		campaign: campaign,
	}
	c := &RunController{
		Tracker: &service.RunTracker{
			Runs:      env.runs,
			Queue:     &stubQueueRepo{counts: map[string]int{model.StatusPending: 2, model.StatusSent: 3}},
			Campaigns: &stubCampaigns{campaign: campaign},
		},
		Throttle: env.throttle,
		Bus:      env.bus,
	}
	env.router = chi.NewRouter()
	c.Routes(env.router)
	return env
}

func (env *controllerEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestStartRunAcceptsAndPublishes(t *testing.T) {
	env := newControllerEnv()
	leadID := uuid.New()

	body := []byte(`{"lead_ids":["` + leadID.String() + `"]}`)
	rec := env.do(http.MethodPost, "/campaigns/"+env.campaign.ID.String()+"/run", body)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var run model.CampaignRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, model.RunStatusIdle, run.Status)
	require.Equal(t, env.campaign.ID, run.CampaignID)

	require.Len(t, env.bus.published, 1)
	cmd := env.bus.published[0]
	require.Equal(t, queue.ActionStart, cmd.Action)
	require.Equal(t, run.ID, cmd.RunID)
	require.Equal(t, []uuid.UUID{leadID}, cmd.LeadIDs)
}

func TestStartRunUnknownCampaign(t *testing.T) {
	env := newControllerEnv()
	rec := env.do(http.MethodPost, "/campaigns/"+uuid.New().String()+"/run", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, env.bus.published)
}

func TestStartRunInvalidCampaignID(t *testing.T) {
	env := newControllerEnv()
	rec := env.do(http.MethodPost, "/campaigns/not-a-uuid/run", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRunPublishesCommand(t *testing.T) {
	env := newControllerEnv()
	runID := uuid.New()

	rec := env.do(http.MethodPost, "/runs/"+runID.String()+"/cancel", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, env.bus.published, 1)
	require.Equal(t, queue.ActionCancel, env.bus.published[0].Action)
	require.Equal(t, runID, env.bus.published[0].RunID)
}

func TestGetRunReturnsStats(t *testing.T) {
	env := newControllerEnv()
	run := &model.CampaignRun{ID: uuid.New(), CampaignID: env.campaign.ID, Status: model.RunStatusRunning}
	require.NoError(t, env.runs.Create(context.Background(), run))

	rec := env.do(http.MethodGet, "/runs/"+run.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.RunStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, run.ID, stats.Run.ID)
	require.Equal(t, 2, stats.CountsByStatus[model.StatusPending])
	require.Equal(t, 3, stats.CountsByStatus[model.StatusSent])
}

func TestGetRunUnknown(t *testing.T) {
	env := newControllerEnv()
	rec := env.do(http.MethodGet, "/runs/"+uuid.New().String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutThrottleUpserts(t *testing.T) {
	env := newControllerEnv()
	companyID := uuid.New()

	body := []byte(`{"enabled":true,"max_per_hour":50,"max_per_day":200,"work_start":"09:00","work_end":"17:00"}`)
	rec := env.do(http.MethodPut, "/companies/"+companyID.String()+"/throttle/email", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.throttle.saved)
	require.Equal(t, 50, env.throttle.saved.MaxPerHour)
	require.Equal(t, model.ChannelEmail, env.throttle.saved.Channel)
	require.False(t, env.throttle.saved.EnforceWorkWindow)
}

func TestPutThrottleForcesCallWorkWindow(t *testing.T) {
	env := newControllerEnv()
	companyID := uuid.New()

	body := []byte(`{"enabled":true,"max_per_hour":10,"max_per_day":40,"enforce_work_window":false}`)
	rec := env.do(http.MethodPut, "/companies/"+companyID.String()+"/throttle/call", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.throttle.saved.EnforceWorkWindow)
}

func TestPutThrottleRejectsHalfWindow(t *testing.T) {
	env := newControllerEnv()
	body := []byte(`{"enabled":true,"max_per_hour":10,"max_per_day":40,"work_start":"09:00"}`)
	rec := env.do(http.MethodPut, "/companies/"+uuid.New().String()+"/throttle/email", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutThrottleUnknownChannel(t *testing.T) {
	env := newControllerEnv()
	rec := env.do(http.MethodPut, "/companies/"+uuid.New().String()+"/throttle/fax", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
