/**
 * @description
 * This file contains the core business logic for the reward-service. The `Service`
 * struct orchestrates every reward operation, coordinating between the database
 * repository, the receipt-recognition client, the receipt image store, and the
 * message broker.
 *
 * Key features:
 * - Hosts the check-in, companion-code, receipt-verification and vote use cases
 *   (each in its own file in this package).
 * - Every point award funnels through the repository's atomic award methods, so
 *   the ledger-sum invariant holds no matter which path credits a day.
 * - Publishes events to RabbitMQ for asynchronous processing by the activity
 *   feed; publish failures never roll back an applied award.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/config, internal/domain, internal/store: For configuration, domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/config"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/promo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
	"github.com/vits2709/socialcraft-platform-sub000/pkg/rabbitmq"
)

// RejectionError carries a stable reason code for a business-rule rejection.
// Handlers map it to a 422 with the code in the response body.
type RejectionError struct {
	Reason  string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Reason
}

func reject(reason, message string) *RejectionError {
	return &RejectionError{Reason: reason, Message: message}
}

// Extractor is the slice of the recognition client the service needs.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mediaType string) (*domain.Extraction, error)
}

// ImageStore is the slice of the object store the service needs.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Enabled() bool
}

// Service provides the core business logic for the reward program.
type Service struct {
	repo          store.Repository
	vision        Extractor
	images        ImageStore
	eventProducer rabbitmq.Publisher
	cfg           config.Config

	// now is swappable in tests.
	now func() time.Time
}

// NewService creates a new reward service instance.
func NewService(repo store.Repository, vision Extractor, images ImageStore, producer rabbitmq.Publisher, cfg config.Config) *Service {
	return &Service{
		repo:          repo,
		vision:        vision,
		images:        images,
		eventProducer: producer,
		cfg:           cfg,
		now:           time.Now,
	}
}

// ResolveAccount converts an auth subject (JWT `sub` claim) into the internal
// account, creating it on first contact. Handlers accept subjects from
// validated JWTs while the repositories operate on UUIDs.
func (s *Service) ResolveAccount(ctx context.Context, subject string) (*domain.Account, error) {
	return s.repo.FindOrCreateAccountBySubject(ctx, subject)
}

// GetBalance returns the account's current point balance.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetHistory returns a page of the account's ledger, newest first.
func (s *Service) GetHistory(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, accountID, limit, offset)
}

// GetWeeklyLeaderboard returns the current week's ranking, derived from ledger
// entries since the most recent Monday 00:00 UTC.
func (s *Service) GetWeeklyLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardRow, error) {
	return s.repo.WeeklyLeaderboard(ctx, currentWeekStart(s.now().UTC()), limit)
}

// GetActivePromo reports the venue's best currently-active bonus, if any, scaled
// against the standard check-in award so clients can render "x points tonight".
func (s *Service) GetActivePromo(ctx context.Context, venueSlug string) (*domain.ActivePromoResponse, error) {
	venue, err := s.repo.FindVenueBySlug(ctx, venueSlug)
	if err != nil {
		return nil, err
	}
	schedules, err := s.repo.ListPromoSchedulesByVenue(ctx, venue.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list promo schedules: %w", err)
	}

	resp := &domain.ActivePromoResponse{VenueSlug: venue.Slug, BasePoints: s.cfg.CheckinPoints}
	best, points := promo.BestBonus(schedules, s.now().UTC(), s.cfg.CheckinPoints)
	if best != nil {
		resp.Active = true
		resp.PromoID = &best.ID
		resp.BonusKind = best.BonusKind
		resp.EffectivePoints = points
	} else {
		resp.EffectivePoints = s.cfg.CheckinPoints
	}
	return resp, nil
}

// publishAward emits the activity-feed event for an applied award. Best-effort.
func (s *Service) publishAward(ctx context.Context, accountID uuid.UUID, venueID *uuid.UUID, kind string, points int, geoVerified bool) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.PointsAwardedEvent{
		AccountID:   accountID,
		VenueID:     venueID,
		Kind:        kind,
		Points:      points,
		GeoVerified: geoVerified,
		Timestamp:   s.now().UTC(),
	}
	if err := s.eventProducer.PublishPointsAwardedEvent(ctx, event); err != nil {
		log.Printf("level=warn component=service msg=\"failed to publish points awarded event\" account_id=%s err=%v", accountID, err)
	}
}

// eventDate truncates an instant to its UTC calendar date. Check-in days roll
// over at midnight UTC everywhere.
func eventDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// currentWeekStart returns the most recent Monday 00:00 UTC at or before t.
func currentWeekStart(t time.Time) time.Time {
	d := eventDate(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
