/**
 * @description
 * HTTP handlers for the check-in and promo-diagnosis endpoints.
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

// CheckinHandler handles direct check-in attempts.
func (h *RewardHandlers) CheckinHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "checkin")
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "checkin", account.ID, h.cfg.CheckinRateLimitPerMinute) {
		return
	}

	var req domain.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=checkin outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.VenueSlug) == "" {
		h.writeError(w, http.StatusBadRequest, "venue_slug is required")
		return
	}

	resp, err := h.service.ProcessCheckin(r.Context(), account.ID, req)
	if err != nil {
		h.writeServiceError(w, "checkin", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ActivePromoHandler reports the venue's current best bonus.
func (h *RewardHandlers) ActivePromoHandler(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "Venue slug is required")
		return
	}

	resp, err := h.service.GetActivePromo(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, "active_promo", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}
