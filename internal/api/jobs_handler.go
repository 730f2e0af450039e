package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rvbbit/rvbbit/internal/api/respond"
	"github.com/rvbbit/rvbbit/internal/background"
)

// JobsHandler serves GET /jobs/{id}, the job-handle lookup side of
// BACKGROUND's fire-and-forget submission (§4.13).
type JobsHandler struct {
	scheduler *background.Scheduler
}

func NewJobsHandler(scheduler *background.Scheduler) *JobsHandler {
	return &JobsHandler{scheduler: scheduler}
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	handle, ok := h.scheduler.Lookup(jobID)
	if !ok {
		respond.WriteNotFound(w, "unknown job id")
		return
	}
	respond.WriteJSON(w, http.StatusOK, handle)
}
