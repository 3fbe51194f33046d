/**
 * @description
 * HTTP handlers for venue votes and the derived rating aggregate.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// CastVoteHandler records a cooldown-gated venue rating.
func (h *RewardHandlers) CastVoteHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "cast_vote")
	if !ok {
		return
	}

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=cast_vote outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.VenueSlug) == "" {
		h.writeError(w, http.StatusBadRequest, "venue_slug is required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	rating, err := h.service.CastVote(r.Context(), account.ID, req)
	if err != nil {
		h.writeServiceError(w, "cast_vote", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, rating)
}

// VenueRatingHandler returns a venue's current rating aggregate.
func (h *RewardHandlers) VenueRatingHandler(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "Venue slug is required")
		return
	}

	rating, err := h.service.GetVenueRating(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, "venue_rating", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rating)
}
