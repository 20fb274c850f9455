package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appErrors "github.com/relayworks/outreach-backend/internal/errors"
	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/model"
	"github.com/relayworks/outreach-backend/internal/queue"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/service"
)

// RunController exposes the campaign-run API. Starting a run is asynchronous:
// the controller persists an idle run, publishes the start command and
// returns 202; the worker does the heavy lifting.
type RunController struct {
	Tracker  *service.RunTracker
	Throttle repository.ThrottleRepositoryInterface
	Bus      queue.Queue
}

func (c *RunController) Routes(r chi.Router) {
	r.Post("/campaigns/{id}/run", c.StartRun)
	r.Post("/runs/{id}/cancel", c.CancelRun)
	r.Get("/runs/{id}", c.GetRun)
	r.Put("/companies/{companyID}/throttle/{channel}", c.PutThrottle)
}

func (c *RunController) StartRun(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		LeadIDs []uuid.UUID `json:"lead_ids"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	run, err := c.Tracker.CreateRun(r.Context(), campaignID)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	cmd := queue.RunCommand{
		Action:     queue.ActionStart,
		RunID:      run.ID,
		CampaignID: campaignID,
		LeadIDs:    body.LeadIDs,
	}
	if err := queue.PublishJSON(c.Bus, queue.TopicRunCommands, cmd); err != nil {
		log := logger.WithComponent("run_controller")
		log.Error().Err(err).
			Str("run_id", run.ID.String()).Msg("start command publish failed")
		http.Error(w, "failed to queue run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

func (c *RunController) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	cmd := queue.RunCommand{Action: queue.ActionCancel, RunID: runID}
	if err := queue.PublishJSON(c.Bus, queue.TopicRunCommands, cmd); err != nil {
		http.Error(w, "failed to queue cancellation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"run_id": runID,
		"status": "cancelling",
	})
}

func (c *RunController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	stats, err := c.Tracker.GetRunStats(r.Context(), runID)
	if err != nil {
		var notFound *appErrors.ErrRunNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (c *RunController) PutThrottle(w http.ResponseWriter, r *http.Request) {
	companyID, err := uuid.Parse(chi.URLParam(r, "companyID"))
	if err != nil {
		http.Error(w, "invalid company id", http.StatusBadRequest)
		return
	}
	ch := model.Channel(chi.URLParam(r, "channel"))
	switch ch {
	case model.ChannelEmail, model.ChannelCall, model.ChannelLinkedIn:
	default:
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}

	var body struct {
		Enabled           bool    `json:"enabled"`
		MaxPerHour        int     `json:"max_per_hour"`
		MaxPerDay         int     `json:"max_per_day"`
		WorkStart         *string `json:"work_start"`
		WorkEnd           *string `json:"work_end"`
		EnforceWorkWindow bool    `json:"enforce_work_window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.MaxPerHour < 0 || body.MaxPerDay < 0 {
		http.Error(w, "limits must be non-negative", http.StatusBadRequest)
		return
	}
	if (body.WorkStart == nil) != (body.WorkEnd == nil) {
		http.Error(w, "work_start and work_end must be set together", http.StatusBadRequest)
		return
	}
	if ch == model.ChannelCall && !body.EnforceWorkWindow {
		// Calls always honor the window.
		body.EnforceWorkWindow = true
	}

	settings := &model.ThrottleSettings{
		CompanyID:         companyID,
		Channel:           ch,
		Enabled:           body.Enabled,
		MaxPerHour:        body.MaxPerHour,
		MaxPerDay:         body.MaxPerDay,
		WorkStart:         body.WorkStart,
		WorkEnd:           body.WorkEnd,
		EnforceWorkWindow: body.EnforceWorkWindow,
	}
	if err := c.Throttle.Upsert(r.Context(), settings); err != nil {
		http.Error(w, "failed to save throttle settings: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}
