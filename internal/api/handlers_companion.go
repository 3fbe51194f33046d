/**
 * @description
 * HTTP handlers for the companion (group check-in) endpoints: issuing a code
 * and redeeming one.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// IssueCompanionCodeHandler mints a new companion code for a checked-in creator.
func (h *RewardHandlers) IssueCompanionCodeHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "companion_issue")
	if !ok {
		return
	}

	var req domain.CompanionIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=companion_issue outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.VenueSlug) == "" {
		h.writeError(w, http.StatusBadRequest, "venue_slug is required")
		return
	}

	resp, err := h.service.IssueCompanionCode(r.Context(), account.ID, req)
	if err != nil {
		h.writeServiceError(w, "companion_issue", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// JoinWithCodeHandler redeems a companion code for the calling account.
func (h *RewardHandlers) JoinWithCodeHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "companion_join")
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "companion_join", account.ID, h.cfg.CheckinRateLimitPerMinute) {
		return
	}

	var req domain.CompanionJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=companion_join outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		h.writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	resp, err := h.service.JoinWithCode(r.Context(), account.ID, req)
	if err != nil {
		h.writeServiceError(w, "companion_join", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}
