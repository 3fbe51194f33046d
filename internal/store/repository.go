/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the reward service. By defining an interface,
 * we decouple the application's business logic from the specific database
 * implementation (PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// PresenceAwardParams carries one presence-keyed award. The natural key
// (AccountID, VenueID, EventDate) is the idempotency key: the award applies only
// if no presence event exists for it yet.
type PresenceAwardParams struct {
	AccountID   uuid.UUID
	VenueID     uuid.UUID
	EventDate   time.Time // UTC calendar date
	Kind        string    // domain.LedgerKindPresence or domain.LedgerKindCompanionJoin
	Points      int
	GeoVerified bool
	PromoID     *uuid.UUID
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account and venue lookups
	FindOrCreateAccountBySubject(ctx context.Context, subject string) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindVenueBySlug(ctx context.Context, slug string) (*domain.Venue, error)
	FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error)

	// Promo schedules (read-only from this service's perspective)
	ListPromoSchedulesByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.PromoSchedule, error)

	// Presence events
	FindPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, eventDate time.Time) (*domain.PresenceEvent, error)
	FindLatestPresenceEventSince(ctx context.Context, accountID, venueID uuid.UUID, since time.Time) (*domain.PresenceEvent, error)
	FindNearestPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, around time.Time) (*domain.PresenceEvent, error)

	// Ledger: the only balance-mutating operations in the system. Both are atomic
	// and report Applied=false instead of erroring when the idempotency key has
	// already been spent.
	ApplyPresenceAward(ctx context.Context, params PresenceAwardParams) (*domain.AwardOutcome, error)
	ApplyReceiptAward(ctx context.Context, verificationID, accountID, venueID uuid.UUID, points int, promoID *uuid.UUID) (*domain.AwardOutcome, error)

	// Ledger read side
	ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)
	WeeklyLeaderboard(ctx context.Context, weekStart time.Time, limit int) ([]domain.LeaderboardRow, error)

	// Receipt verifications
	CreateReceiptVerification(ctx context.Context, rv *domain.ReceiptVerification) error
	FindReceiptByFingerprint(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.ReceiptVerification, error)
	FindReceiptVerificationByID(ctx context.Context, id uuid.UUID) (*domain.ReceiptVerification, error)
	// TransitionReceiptStatus moves a pending record to a terminal status. It
	// returns false without error when the record is no longer pending, so the
	// pending -> approved|rejected transition can never regress.
	TransitionReceiptStatus(ctx context.Context, id uuid.UUID, status string, note *string) (bool, error)
	// RecordReceiptReviewNote persists accumulated rule-failure reasons on a
	// still-pending record for manual review.
	RecordReceiptReviewNote(ctx context.Context, id uuid.UUID, note string) error
	// RecordReceiptExtraction persists the timestamp reconstructed from the
	// extracted date and time fields.
	RecordReceiptExtraction(ctx context.Context, id uuid.UUID, extractedAt time.Time) error
	ListStalePendingReceipts(ctx context.Context, olderThan time.Time, limit int) ([]domain.ReceiptVerification, error)

	// Companion codes and joins
	CreateCompanionCode(ctx context.Context, code *domain.CompanionCode) error
	FindCompanionCodeByCode(ctx context.Context, code string) (*domain.CompanionCode, error)
	// CreateCompanionJoin inserts the join record, enforcing one redemption per
	// (code, account). The returned flag is true when this is the account's
	// first-ever companion join (badge unlock signal).
	CreateCompanionJoin(ctx context.Context, codeID, accountID uuid.UUID) (firstEver bool, err error)
	LapseExpiredCompanionCodes(ctx context.Context, now time.Time) (int64, error)

	// Votes
	CreateVoteIfNotOnCooldown(ctx context.Context, vote *domain.Vote, cooldownCutoff time.Time) (bool, error)
	FindLastVote(ctx context.Context, accountID, venueID uuid.UUID) (*domain.Vote, error)
	VenueRating(ctx context.Context, venueID uuid.UUID) (*domain.VenueRating, error)
}
