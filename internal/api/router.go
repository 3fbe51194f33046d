/**
 * @description
 * This file sets up the HTTP router for the reward-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RewardRoutes creates and returns a new router for the reward service.
func RewardRoutes(h *RewardHandlers, jwksURL, internalAPIKey, allowedOrigins string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(allowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Api-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public venue reads.
	r.Get("/venues/{slug}/promos/active", h.ActivePromoHandler)
	r.Get("/venues/{slug}/rating", h.VenueRatingHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/rewards/checkin", h.CheckinHandler)
		r.Get("/rewards/balance", h.GetBalanceHandler)
		r.Get("/rewards/history", h.GetHistoryHandler)
		r.Get("/rewards/leaderboard", h.GetLeaderboardHandler)

		r.Post("/companion/issue", h.IssueCompanionCodeHandler)
		r.Post("/companion/join", h.JoinWithCodeHandler)

		r.Post("/receipts/upload", h.UploadReceiptHandler)
		r.Post("/receipts/{id}/verify", h.VerifyReceiptHandler)

		r.Post("/votes", h.CastVoteHandler)
	})

	// Service-to-service endpoints for the review console.
	r.Route("/internal/receipts", func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))
		r.Post("/{id}/decision", h.DecideReceiptHandler)
	})

	return r
}

func splitOrigins(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{"https://*", "http://*"}
	}
	parts := strings.Split(trimmed, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if o := strings.TrimSpace(p); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
