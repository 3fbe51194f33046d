/**
 * @description
 * This file implements the companion (group check-in) use cases: a checked-in
 * creator mints a short-lived code anchored to their verified position, and
 * companions redeem it to earn the same-day presence award without their own
 * venue-radius fix.
 *
 * Joins share the presence idempotency key with direct check-ins, so a
 * companion who already checked in today (or joins through two codes) is
 * credited exactly once.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/geo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/promo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
	"github.com/vits2709/socialcraft-platform-sub000/pkg/rabbitmq"
)

// Code alphabet omits 0/O/1/I so codes survive being read aloud.
const (
	codeAlphabet       = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength         = 6
	codeCollisionRetry = 5
)

// FirstCompanionBadge is the badge slug granted on an account's first-ever join.
const FirstCompanionBadge = "first_companion"

// IssueCompanionCode mints a new join code. The creator must hold today's
// presence at the venue and must currently be inside the venue geofence; the
// creator's position is frozen onto the code as the proximity anchor for joins.
func (s *Service) IssueCompanionCode(ctx context.Context, accountID uuid.UUID, req domain.CompanionIssueRequest) (*domain.CompanionIssueResponse, error) {
	now := s.now().UTC()

	// 1. Resolve the venue.
	venue, err := s.repo.FindVenueBySlug(ctx, req.VenueSlug)
	if err != nil {
		return nil, err
	}

	// 2. The creator must have checked in today.
	if _, err := s.repo.FindPresenceEvent(ctx, accountID, venue.ID, eventDate(now)); err != nil {
		if errors.Is(err, store.ErrPresenceNotFound) {
			return nil, reject(domain.ReasonNoCheckinToday, "issuing a companion code requires a check-in at the venue today")
		}
		return nil, err
	}

	// 3. The creator must still be at the venue.
	if distance := geo.DistanceMeters(req.Latitude, req.Longitude, venue.Latitude, venue.Longitude); distance > s.cfg.CheckinRadiusMeters {
		return nil, reject(domain.ReasonTooFarFromVenue, fmt.Sprintf("too far from venue: %.0f m away", distance))
	}

	// 4. Mint and persist, re-minting on the rare code collision.
	ttl := time.Duration(s.cfg.CompanionCodeTTLMinutes) * time.Minute
	for attempt := 0; attempt < codeCollisionRetry; attempt++ {
		code := &domain.CompanionCode{
			ID:         uuid.New(),
			Code:       mintCode(),
			VenueID:    venue.ID,
			CreatorID:  accountID,
			CreatorLat: req.Latitude,
			CreatorLng: req.Longitude,
			Status:     domain.CompanionCodeStatusActive,
			IssuedAt:   now,
			ExpiresAt:  now.Add(ttl),
		}
		err := s.repo.CreateCompanionCode(ctx, code)
		if err == nil {
			log.Printf("level=info component=companion msg=\"code issued\" account_id=%s venue=%s expires_at=%s", accountID, venue.Slug, code.ExpiresAt.Format(time.RFC3339))
			return &domain.CompanionIssueResponse{Code: code.Code, ExpiresAt: code.ExpiresAt}, nil
		}
		if !errors.Is(err, store.ErrCodeCollision) {
			return nil, fmt.Errorf("failed to create companion code: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to mint a unique companion code after %d attempts", codeCollisionRetry)
}

// JoinWithCode redeems a companion code. Proximity is measured against the
// creator's recorded position, not the venue.
func (s *Service) JoinWithCode(ctx context.Context, accountID uuid.UUID, req domain.CompanionJoinRequest) (*domain.CompanionJoinResponse, error) {
	now := s.now().UTC()

	// 1. Look up the code and check its lifecycle.
	code, err := s.repo.FindCompanionCodeByCode(ctx, normalizeCode(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return nil, reject(domain.ReasonCodeUnknown, "companion code does not exist")
		}
		return nil, err
	}
	if code.Expired(now) {
		return nil, reject(domain.ReasonCodeExpired, fmt.Sprintf("companion code expired at %s", code.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	// 2. The creator cannot redeem their own code.
	if code.CreatorID == accountID {
		return nil, reject(domain.ReasonCreatorSelfJoin, "a code cannot be redeemed by its creator")
	}

	// 3. Proximity to the creator's recorded position.
	if distance := geo.DistanceMeters(req.Latitude, req.Longitude, code.CreatorLat, code.CreatorLng); distance > s.cfg.CompanionRadiusMeters {
		return nil, reject(domain.ReasonTooFarFromCreator, fmt.Sprintf("too far from the code's creator: %.0f m away", distance))
	}

	venue, err := s.repo.FindVenueByID(ctx, code.VenueID)
	if err != nil {
		return nil, err
	}

	// 4. Record the join. One redemption per user per code.
	firstEver, err := s.repo.CreateCompanionJoin(ctx, code.ID, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyJoined) {
			return nil, reject(domain.ReasonAlreadyJoined, "this code was already redeemed by this account")
		}
		return nil, fmt.Errorf("failed to record companion join: %w", err)
	}

	// 5. Promo bonuses apply: a companion join is geo-verified presence.
	basePoints := s.cfg.CompanionJoinPoints
	points := basePoints
	var promoID *uuid.UUID
	schedules, err := s.repo.ListPromoSchedulesByVenue(ctx, venue.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list promo schedules: %w", err)
	}
	if best, bonusPoints := promo.BestBonus(schedules, now, basePoints); best != nil {
		points = bonusPoints
		promoID = &best.ID
	}

	// 6. Atomic award on the shared daily presence key.
	outcome, err := s.repo.ApplyPresenceAward(ctx, store.PresenceAwardParams{
		AccountID:   accountID,
		VenueID:     venue.ID,
		EventDate:   eventDate(now),
		Kind:        domain.LedgerKindCompanionJoin,
		Points:      points,
		GeoVerified: true,
		PromoID:     promoID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply companion award: %w", err)
	}

	// 7. First-ever join unlocks the companion badge regardless of whether the
	// day's points were already claimed.
	if firstEver && s.eventProducer != nil {
		event := rabbitmq.BadgeUnlockedEvent{AccountID: accountID, Badge: FirstCompanionBadge, Timestamp: now}
		if err := s.eventProducer.PublishBadgeUnlockedEvent(ctx, event); err != nil {
			log.Printf("level=warn component=companion msg=\"failed to publish badge unlocked event\" account_id=%s err=%v", accountID, err)
		}
	}

	resp := &domain.CompanionJoinResponse{
		AlreadyCheckedInToday: !outcome.Applied,
		PointsAwarded:         outcome.Points,
		Total:                 outcome.NewBalance,
		VenueName:             venue.Name,
		BadgeUnlocked:         firstEver,
	}
	if outcome.Applied {
		s.publishAward(ctx, accountID, &venue.ID, domain.LedgerKindCompanionJoin, outcome.Points, true)
		log.Printf("level=info component=companion msg=\"join awarded\" account_id=%s venue=%s points=%d", accountID, venue.Slug, outcome.Points)
	} else {
		log.Printf("level=info component=companion msg=\"join recorded without award\" account_id=%s venue=%s", accountID, venue.Slug)
	}
	return resp, nil
}

// mintCode draws codeLength characters from the unambiguous alphabet.
func mintCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}

func normalizeCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c == ' ' || c == '-' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
