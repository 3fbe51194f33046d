/**
 * @description
 * This file defines the core domain models for the reward service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Point balances are stored as `int64` so the ledger-sum invariant can be checked
 *   with exact integer arithmetic.
 * - Nullable database columns map to pointer fields.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds. Every point award carries exactly one of these.
const (
	LedgerKindPresence      = "presence"
	LedgerKindConsumption   = "consumption"
	LedgerKindCompanionJoin = "companion_join"
)

// Account represents a participant of the reward program. The balance column is
// the single source of truth for a user's points and is only ever mutated through
// the ledger award path.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"-"` // external auth subject (JWT `sub` claim)
	Nickname  *string   `json:"nickname,omitempty"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Venue is a registered location users can check in at. Coordinates anchor the
// check-in geofence; the name anchors the receipt merchant match.
type Venue struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is one immutable row of the append-only activity ledger. The sum of
// Points over an account's entries always equals Account.Balance.
type LedgerEntry struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	VenueID     *uuid.UUID `json:"venue_id,omitempty"`
	Kind        string     `json:"kind"`
	Points      int        `json:"points"`
	GeoVerified bool       `json:"geo_verified"`
	PromoID     *uuid.UUID `json:"promo_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PresenceEvent records one point-bearing visit. The unique key
// (account_id, venue_id, event_date) doubles as the idempotency key shared by the
// direct check-in and companion-join award paths, so the same day can never be
// credited twice whichever path runs first.
type PresenceEvent struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	VenueID     uuid.UUID `json:"venue_id"`
	EventDate   time.Time `json:"event_date"` // UTC calendar date, midnight
	Kind        string    `json:"kind"`       // presence or companion_join
	GeoVerified bool      `json:"geo_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// AwardOutcome reports the result of one ledger award attempt.
type AwardOutcome struct {
	Applied    bool       `json:"applied"` // false means the idempotency key was already spent
	Points     int        `json:"points"`
	NewBalance int64      `json:"new_balance"`
	EntryID    *uuid.UUID `json:"entry_id,omitempty"`
}

// Vote is a zero-point social signal, cooldown-gated per user+venue.
type Vote struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	VenueID   uuid.UUID `json:"venue_id"`
	Rating    int       `json:"rating"` // 1..5
	CreatedAt time.Time `json:"created_at"`
}

// CheckinRequest is the DTO for the check-in endpoint. Coordinates are optional:
// a device that cannot supply its position still earns the degraded base award.
type CheckinRequest struct {
	VenueSlug string   `json:"venue_slug"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// CheckinResponse reports the outcome of a check-in attempt.
type CheckinResponse struct {
	AlreadyToday  bool  `json:"already_today"`
	PointsAwarded int   `json:"points_awarded"`
	Total         int64 `json:"total"`
}

// VoteRequest is the DTO for the vote endpoint.
type VoteRequest struct {
	VenueSlug string `json:"venue_slug"`
	Rating    int    `json:"rating"`
}

// VenueRating is the derived rating aggregate for a venue.
type VenueRating struct {
	VenueID uuid.UUID `json:"venue_id"`
	Average float64   `json:"average"`
	Count   int64     `json:"count"`
}

// LeaderboardRow is one row of the weekly ranking read model. It is always
// derived by summing ledger entries for the week, never written independently.
type LeaderboardRow struct {
	AccountID uuid.UUID `json:"account_id"`
	Nickname  *string   `json:"nickname,omitempty"`
	Points    int64     `json:"points"`
	Rank      int       `json:"rank"`
}
