package api

import (
	"net/http"
	"strings"

	"github.com/erazemk/lostfound/internal/handoff"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

// HandoffsHandler exposes the handoff workflow.
type HandoffsHandler struct {
	Workflow *handoff.Workflow
}

type createHandoffRequest struct {
	MatchID int64 `json:"match_id"`
	handoff.Fields
}

type updateHandoffRequest struct {
	Status string `json:"status"`
	handoff.Fields
}

// Create handles POST /api/handoffs.
func (h *HandoffsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Workflow.Create(r.Context(), req.MatchID, actor(r), req.Fields)
	if err != nil {
		writeError(w, err, "create handoff")
		return
	}
	jsonResponse(w, http.StatusCreated, created)
}

// List handles GET /api/handoffs.
func (h *HandoffsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := strings.ToUpper(q.Get("status"))
	if status != "" && !model.ValidHandoffStatus(status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	handoffs, err := h.Workflow.List(r.Context(), store.HandoffFilter{
		Status:     status,
		AssignedTo: q.Get("assigned_to"),
	})
	if err != nil {
		writeError(w, err, "list handoffs")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(handoffs))
}

// Get handles GET /api/handoffs/{id}.
func (h *HandoffsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid handoff id")
		return
	}
	found, err := h.Workflow.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, "get handoff")
		return
	}
	jsonResponse(w, http.StatusOK, found)
}

// Update handles PUT /api/handoffs/{id}.
func (h *HandoffsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid handoff id")
		return
	}

	var req updateHandoffRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Workflow.Transition(r.Context(), id, req.Status, actor(r), req.Fields)
	if err != nil {
		writeError(w, err, "update handoff")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/handoffs/{id}.
func (h *HandoffsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid handoff id")
		return
	}
	if err := h.Workflow.Delete(r.Context(), id); err != nil {
		writeError(w, err, "delete handoff")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "handoff deleted"})
}
