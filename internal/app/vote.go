/**
 * @description
 * This file implements the venue vote use case. Votes are a zero-point social
 * signal: they never touch the ledger, but they are cooldown-gated per
 * user+venue so a single account cannot flood a venue's rating.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// CastVote records a 1..5 rating for a venue, subject to the per-venue cooldown.
func (s *Service) CastVote(ctx context.Context, accountID uuid.UUID, req domain.VoteRequest) (*domain.VenueRating, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d", req.Rating)
	}

	venue, err := s.repo.FindVenueBySlug(ctx, req.VenueSlug)
	if err != nil {
		return nil, err
	}

	vote := &domain.Vote{
		ID:        uuid.New(),
		AccountID: accountID,
		VenueID:   venue.ID,
		Rating:    req.Rating,
	}
	now := s.now().UTC()
	cooldown := time.Duration(s.cfg.VoteCooldownHours) * time.Hour
	inserted, err := s.repo.CreateVoteIfNotOnCooldown(ctx, vote, now.Add(-cooldown))
	if err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}
	if !inserted {
		message := "a vote for this venue was cast within the cooldown window"
		if last, lastErr := s.repo.FindLastVote(ctx, accountID, venue.ID); lastErr == nil {
			remaining := last.CreatedAt.Add(cooldown).Sub(now).Round(time.Minute)
			message = fmt.Sprintf("vote cooldown active for another %s", remaining)
		}
		return nil, reject(domain.ReasonVoteCooldown, message)
	}

	log.Printf("level=info component=vote msg=\"vote recorded\" account_id=%s venue=%s rating=%d", accountID, venue.Slug, req.Rating)
	return s.repo.VenueRating(ctx, venue.ID)
}

// GetVenueRating returns the venue's current rating aggregate.
func (s *Service) GetVenueRating(ctx context.Context, venueSlug string) (*domain.VenueRating, error) {
	venue, err := s.repo.FindVenueBySlug(ctx, venueSlug)
	if err != nil {
		return nil, err
	}
	return s.repo.VenueRating(ctx, venue.ID)
}
