/**
 * @description
 * This file implements the direct check-in use case: a user at a venue claims
 * their daily presence award. Position is optional; a device that cannot supply
 * coordinates earns the degraded award, while coordinates outside the venue
 * geofence reject the attempt outright.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/geo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/promo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
)

// ProcessCheckin handles a direct check-in attempt.
func (s *Service) ProcessCheckin(ctx context.Context, accountID uuid.UUID, req domain.CheckinRequest) (*domain.CheckinResponse, error) {
	now := s.now().UTC()

	// 1. Resolve the venue.
	venue, err := s.repo.FindVenueBySlug(ctx, req.VenueSlug)
	if err != nil {
		return nil, err
	}

	// 2. Geofence. Missing coordinates degrade the award; coordinates outside
	// the radius reject the attempt.
	geoVerified := false
	if req.Latitude != nil && req.Longitude != nil {
		distance := geo.DistanceMeters(*req.Latitude, *req.Longitude, venue.Latitude, venue.Longitude)
		if distance > s.cfg.CheckinRadiusMeters {
			return nil, reject(domain.ReasonTooFarFromVenue, fmt.Sprintf("too far from venue: %.0f m away", distance))
		}
		geoVerified = true
	}

	basePoints := s.cfg.CheckinPointsDegraded
	if geoVerified {
		basePoints = s.cfg.CheckinPoints
	}

	// 3. Promo bonuses apply over the base, degraded or not.
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

	// 4. Atomic award keyed on (account, venue, day).
	outcome, err := s.repo.ApplyPresenceAward(ctx, store.PresenceAwardParams{
		AccountID:   accountID,
		VenueID:     venue.ID,
		EventDate:   eventDate(now),
		Kind:        domain.LedgerKindPresence,
		Points:      points,
		GeoVerified: geoVerified,
		PromoID:     promoID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply presence award: %w", err)
	}

	if !outcome.Applied {
		log.Printf("level=info component=checkin msg=\"duplicate check-in\" account_id=%s venue=%s", accountID, venue.Slug)
		return &domain.CheckinResponse{AlreadyToday: true, PointsAwarded: 0, Total: outcome.NewBalance}, nil
	}

	s.publishAward(ctx, accountID, &venue.ID, domain.LedgerKindPresence, outcome.Points, geoVerified)
	log.Printf("level=info component=checkin msg=\"check-in awarded\" account_id=%s venue=%s points=%d geo_verified=%t", accountID, venue.Slug, outcome.Points, geoVerified)

	return &domain.CheckinResponse{AlreadyToday: false, PointsAwarded: outcome.Points, Total: outcome.NewBalance}, nil
}
