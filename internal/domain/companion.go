/**
 * @description
 * Domain models for the companion (group check-in) flow: short-lived join codes
 * anchored to the creator's verified position, and the join records that enforce
 * one redemption per user per code.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Companion code statuses. A code is never resurrected: once past its TTL it is
// rejected at read time whether or not the lapse sweep has marked it yet.
const (
	CompanionCodeStatusActive  = "active"
	CompanionCodeStatusExpired = "expired"
)

// CompanionCode is a short human-typable code a checked-in creator hands to
// companions. Proximity at join time is measured against the creator's recorded
// coordinates, not the venue.
type CompanionCode struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	VenueID    uuid.UUID `json:"venue_id"`
	CreatorID  uuid.UUID `json:"creator_id"`
	CreatorLat float64   `json:"creator_lat"`
	CreatorLng float64   `json:"creator_lng"`
	Status     string    `json:"status"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its TTL at the given instant.
func (c *CompanionCode) Expired(now time.Time) bool {
	return c.Status != CompanionCodeStatusActive || !now.Before(c.ExpiresAt)
}

// CompanionJoin records one user redeeming one code. Unique per (code, account).
type CompanionJoin struct {
	ID        uuid.UUID `json:"id"`
	CodeID    uuid.UUID `json:"code_id"`
	AccountID uuid.UUID `json:"account_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// CompanionIssueRequest is the DTO for issuing a new code.
type CompanionIssueRequest struct {
	VenueSlug string  `json:"venue_slug"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CompanionIssueResponse returns the freshly minted code.
type CompanionIssueResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CompanionJoinRequest is the DTO for redeeming a code.
type CompanionJoinRequest struct {
	Code      string  `json:"code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CompanionJoinResponse reports the outcome of a join.
type CompanionJoinResponse struct {
	AlreadyCheckedInToday bool   `json:"already_checked_in_today"`
	PointsAwarded         int    `json:"points_awarded"`
	Total                 int64  `json:"total"`
	VenueName             string `json:"venue_name"`
	BadgeUnlocked         bool   `json:"badge_unlocked"`
}
