package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/lostfound/internal/matching"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
)

// MatchesHandler exposes candidate search and match confirmation.
type MatchesHandler struct {
	Registry *matching.Registry
}

type pairRequest struct {
	LostItemID  int64 `json:"lost_item_id"`
	FoundItemID int64 `json:"found_item_id"`
}

func (p pairRequest) valid() bool {
	return p.LostItemID > 0 && p.FoundItemID > 0
}

// Candidates handles GET /api/found/{id}/candidates.
func (h *MatchesHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid found item id")
		return
	}
	items, err := h.Registry.FindCandidates(r.Context(), id)
	if err != nil {
		writeError(w, err, "search candidates")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(items))
}

// Weighted handles GET /api/found/{id}/matches.
func (h *MatchesHandler) Weighted(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid found item id")
		return
	}
	candidates, err := h.Registry.FindWeightedCandidates(r.Context(), id)
	if err != nil {
		writeError(w, err, "score candidates")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(candidates))
}

// Scores handles GET /api/matches/scores.
func (h *MatchesHandler) Scores(w http.ResponseWriter, r *http.Request) {
	report, err := h.Registry.ScoreAllPairs(r.Context())
	if err != nil {
		writeError(w, err, "score pairs")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(report))
}

// Confirm handles POST /api/matches/confirm.
func (h *MatchesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeJSON(r, &req); err != nil || !req.valid() {
		jsonError(w, http.StatusBadRequest, "lost_item_id and found_item_id required")
		return
	}

	m, err := h.Registry.Confirm(r.Context(), req.LostItemID, req.FoundItemID, actor(r))
	if err != nil {
		writeError(w, err, "confirm match")
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// CreateTentative handles POST /api/matches.
func (h *MatchesHandler) CreateTentative(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeJSON(r, &req); err != nil || !req.valid() {
		jsonError(w, http.StatusBadRequest, "lost_item_id and found_item_id required")
		return
	}

	m, err := h.Registry.CreateTentative(r.Context(), req.LostItemID, req.FoundItemID, actor(r))
	if err != nil {
		writeError(w, err, "create match")
		return
	}
	jsonResponse(w, http.StatusCreated, m)
}

// List handles GET /api/matches.
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	lostID, ok1 := queryID(r, "lost_item_id")
	foundID, ok2 := queryID(r, "found_item_id")
	if !ok1 || !ok2 {
		jsonError(w, http.StatusBadRequest, "invalid item id filter")
		return
	}
	status := strings.ToUpper(r.URL.Query().Get("status"))
	if status != "" && status != model.MatchStatusTentative && status != model.MatchStatusConfirmed {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	matches, err := h.Registry.ListMatches(r.Context(), store.MatchFilter{
		LostItemID:  lostID,
		FoundItemID: foundID,
		Status:      status,
	})
	if err != nil {
		writeError(w, err, "list matches")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(matches))
}

// Release handles DELETE /api/matches/{id}.
func (h *MatchesHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid match id")
		return
	}
	if err := h.Registry.Release(r.Context(), id); err != nil {
		writeError(w, err, "release match")
		return
	}
	slog.Info("match released by staff", "user", actor(r), "match_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "match released"})
}
