/**
 * @description
 * This file contains the shared plumbing for the reward-service's HTTP handlers
 * plus the read-only account endpoints. Handlers are responsible for parsing
 * incoming requests, calling the appropriate methods on the application service,
 * and writing the HTTP response. They act as the bridge between the web layer
 * and the business logic layer.
 *
 * Business-rule rejections surface as 422 with a stable machine-readable
 * `reason` field; clients branch on the code, never on the message.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/app"
	"github.com/vits2709/socialcraft-platform-sub000/internal/config"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
)

// RateLimiter abstracts the Redis limiter so handlers can run without Redis.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RewardHandlers holds the application service that handlers will use.
type RewardHandlers struct {
	service *app.Service
	limiter RateLimiter
	cfg     config.Config
}

// NewRewardHandlers creates a new instance of RewardHandlers.
func NewRewardHandlers(service *app.Service, limiter RateLimiter, cfg config.Config) *RewardHandlers {
	return &RewardHandlers{service: service, limiter: limiter, cfg: cfg}
}

// resolveAccount pulls the auth subject off the request and resolves it to the
// internal account. A missing subject means the auth middleware did not run.
func (h *RewardHandlers) resolveAccount(w http.ResponseWriter, r *http.Request, endpoint string) (*domain.Account, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get subject from context")
		return nil, false
	}
	account, err := h.service.ResolveAccount(r.Context(), subject)
	if err != nil {
		log.Printf("level=error component=api endpoint=%s outcome=failed reason=account_resolution subject=%s err=%v", endpoint, subject, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to resolve account")
		return nil, false
	}
	return account, true
}

// consumeRateLimit enforces a per-account limit on a write endpoint. Limiter
// failures fail open: an unreachable Redis must not take check-ins down.
func (h *RewardHandlers) consumeRateLimit(w http.ResponseWriter, r *http.Request, scope string, accountID uuid.UUID, limit int) bool {
	if h.limiter == nil {
		return true
	}
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, accountID.String(), limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api scope=%s msg=\"rate limiter unavailable; allowing request\" err=%v", scope, err)
		return true
	}
	if limit > 0 && count > limit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}

// GetBalanceHandler returns the caller's current point balance.
func (h *RewardHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "get_balance")
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), account.ID)
	if err != nil {
		h.writeServiceError(w, "get_balance", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GetHistoryHandler returns a page of the caller's ledger, newest first.
func (h *RewardHandlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "get_history")
	if !ok {
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 30)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := parseOptionalInt(r.URL.Query().Get("offset"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	entries, err := h.service.GetHistory(r.Context(), account.ID, limit, offset)
	if err != nil {
		h.writeServiceError(w, "get_history", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GetLeaderboardHandler returns the current week's point ranking.
func (h *RewardHandlers) GetLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 20)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	rows, err := h.service.GetWeeklyLeaderboard(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "get_leaderboard", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": rows})
}

// writeServiceError maps service-layer failures onto HTTP statuses. Rejections
// carry their reason code; everything unrecognized is a 500.
func (h *RewardHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var rejection *app.RejectionError
	switch {
	case errors.As(err, &rejection):
		log.Printf("level=info component=api endpoint=%s outcome=reject reason=%s", endpoint, rejection.Reason)
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  rejection.Message,
			"reason": rejection.Reason,
		})
	case errors.Is(err, store.ErrVenueNotFound):
		h.writeError(w, http.StatusNotFound, "Venue not found")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrReceiptNotFound), errors.Is(err, app.ErrNotReceiptOwner):
		// A foreign record and a missing one look the same to the caller.
		h.writeError(w, http.StatusNotFound, "Verification not found")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *RewardHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *RewardHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 0 {
		return 0, errors.New("invalid integer")
	}
	return value, nil
}
