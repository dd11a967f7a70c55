package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/studiobell/dispatch/internal/audit"
	"github.com/studiobell/dispatch/internal/model"
	"github.com/studiobell/dispatch/internal/repo"
	"github.com/studiobell/dispatch/internal/scheduler"
	"github.com/studiobell/dispatch/internal/service"
)

type Handler struct {
	store     repo.QueueRepository
	settings  repo.SettingsRepository
	reminders *service.ReminderService
	sched     *scheduler.Scheduler
	sink      audit.Sink
	validate  *validator.Validate
}

func NewHandler(
	store repo.QueueRepository,
	settings repo.SettingsRepository,
	reminders *service.ReminderService,
	sched *scheduler.Scheduler,
	sink audit.Sink,
) *Handler {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Handler{
		store:     store,
		settings:  settings,
		reminders: reminders,
		sched:     sched,
		sink:      sink,
		validate:  validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Enqueue handles POST /v1/queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: validationMessage(err)})
		return
	}

	settings, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !settings.Enabled {
		writeError(w, model.ErrChannelDisabled)
		return
	}

	params, err := req.toParams()
	if err != nil {
		writeError(w, err)
		return
	}

	entry, err := model.NewQueueEntry(params, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Enqueue(r.Context(), entry); err != nil {
		writeError(w, err)
		return
	}

	h.sink.Record(r.Context(), audit.Event{
		Action:      audit.ActionEnqueued,
		EntryID:     entry.ID,
		Recipient:   entry.Recipient,
		MessageType: entry.MessageType,
	})

	writeJSON(w, http.StatusCreated, map[string]any{"id": entry.ID})
}

// ListQueue handles GET /v1/queue.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := model.Status(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, &model.ValidationError{Field: "status", Reason: "unknown status"})
		return
	}

	page := parseInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := parseInt(q.Get("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	items, err := h.store.List(r.Context(), repo.Filter{
		Status:      status,
		MessageType: q.Get("type"),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"stats": stats,
		"page":  page,
		"limit": limit,
	})
}

// CancelEntry handles DELETE /v1/queue?id=.
func (h *Handler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, &model.ValidationError{Field: "id", Reason: "must not be empty"})
		return
	}

	cancelled, err := h.store.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !cancelled {
		// Already terminal; nothing left to cancel.
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entry is not cancellable"})
		return
	}

	h.sink.Record(r.Context(), audit.Event{Action: audit.ActionCancelled, EntryID: id})
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// ScheduleReminders handles POST /v1/reminders/schedule.
func (h *Handler) ScheduleReminders(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: validationMessage(err)})
		return
	}

	res, err := h.reminders.ScheduleReminders(r.Context(), req.HoursBeforeClass)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ReminderHistory handles GET /v1/reminders/schedule?days=.
func (h *Handler) ReminderHistory(w http.ResponseWriter, r *http.Request) {
	days := parseInt(r.URL.Query().Get("days"), 7)

	rep, err := h.reminders.RecentReminders(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetSettings handles GET /v1/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /v1/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid json"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: validationMessage(err)})
		return
	}

	s := model.ChannelSettings{
		Enabled:          req.Enabled,
		RateLimitSeconds: req.RateLimitSeconds,
		ChannelStatus:    req.ChannelStatus,
	}
	if err := h.settings.Update(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error()})
	case errors.Is(err, model.ErrChannelDisabled):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}
