package handler

import (
	"encoding/json"
	"net/http"
)

type consumerControl interface {
	SetActive(active bool)
	Active() bool
	Pending() (queued, running int)
}

type schedulerControl interface {
	SetEnabled(enabled bool)
	Enabled() bool
	Pending() int
}

type WorkersHandler struct {
	consumer  consumerControl
	scheduler schedulerControl
}

func NewWorkersHandler(consumer consumerControl, scheduler schedulerControl) *WorkersHandler {
	return &WorkersHandler{consumer: consumer, scheduler: scheduler}
}

type consumerState struct {
	Active  bool `json:"active"`
	Queued  int  `json:"queued"`
	Running int  `json:"running"`
}

type schedulerState struct {
	Enabled bool `json:"enabled"`
	Pending int  `json:"pending"`
}

type workersState struct {
	Consumer  consumerState  `json:"consumer"`
	Scheduler schedulerState `json:"scheduler"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *WorkersHandler) state() workersState {
	queued, running := h.consumer.Pending()
	return workersState{
		Consumer:  consumerState{Active: h.consumer.Active(), Queued: queued, Running: running},
		Scheduler: schedulerState{Enabled: h.scheduler.Enabled(), Pending: h.scheduler.Pending()},
	}
}

func (h *WorkersHandler) Get(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, h.state())
}

// SetConsumer switches background processing on or off. Submitted
// transactions keep queuing while it is off.
func (h *WorkersHandler) SetConsumer(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	h.consumer.SetActive(enabled)
	RespondSuccess(w, http.StatusOK, h.state())
}

func (h *WorkersHandler) SetScheduler(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	h.scheduler.SetEnabled(enabled)
	RespondSuccess(w, http.StatusOK, h.state())
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		RespondAppError(w, ErrInvalidRequest)
		return false, false
	}
	return *req.Enabled, true
}
