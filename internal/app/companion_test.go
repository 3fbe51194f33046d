package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
	"github.com/vits2709/socialcraft-platform-sub000/pkg/rabbitmq"
)

type companionRepoStub struct {
	store.Repository

	venue       *domain.Venue
	presenceErr error
	code        *domain.CompanionCode
	outcome     *domain.AwardOutcome

	createCodeErrs []error
	createdCodes   []*domain.CompanionCode

	joinFirstEver bool
	joinErr       error
	joinCalled    bool

	awardCalled bool
	awardParams store.PresenceAwardParams
}

func (s *companionRepoStub) FindVenueBySlug(ctx context.Context, slug string) (*domain.Venue, error) {
	if s.venue == nil {
		return nil, store.ErrVenueNotFound
	}
	return s.venue, nil
}

func (s *companionRepoStub) FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error) {
	if s.venue == nil {
		return nil, store.ErrVenueNotFound
	}
	return s.venue, nil
}

func (s *companionRepoStub) FindPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, eventDate time.Time) (*domain.PresenceEvent, error) {
	if s.presenceErr != nil {
		return nil, s.presenceErr
	}
	return &domain.PresenceEvent{AccountID: accountID, VenueID: venueID, EventDate: eventDate}, nil
}

func (s *companionRepoStub) CreateCompanionCode(ctx context.Context, code *domain.CompanionCode) error {
	s.createdCodes = append(s.createdCodes, code)
	if len(s.createCodeErrs) > 0 {
		err := s.createCodeErrs[0]
		s.createCodeErrs = s.createCodeErrs[1:]
		return err
	}
	return nil
}

func (s *companionRepoStub) FindCompanionCodeByCode(ctx context.Context, code string) (*domain.CompanionCode, error) {
	if s.code == nil || s.code.Code != code {
		return nil, store.ErrCodeNotFound
	}
	return s.code, nil
}

func (s *companionRepoStub) CreateCompanionJoin(ctx context.Context, codeID, accountID uuid.UUID) (bool, error) {
	s.joinCalled = true
	if s.joinErr != nil {
		return false, s.joinErr
	}
	return s.joinFirstEver, nil
}

func (s *companionRepoStub) ListPromoSchedulesByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.PromoSchedule, error) {
	return nil, nil
}

func (s *companionRepoStub) ApplyPresenceAward(ctx context.Context, params store.PresenceAwardParams) (*domain.AwardOutcome, error) {
	s.awardCalled = true
	s.awardParams = params
	return s.outcome, nil
}

type publisherStub struct {
	pointsEvents []rabbitmq.PointsAwardedEvent
	badgeEvents  []rabbitmq.BadgeUnlockedEvent
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *publisherStub) PublishPointsAwardedEvent(ctx context.Context, event rabbitmq.PointsAwardedEvent) error {
	p.pointsEvents = append(p.pointsEvents, event)
	return nil
}

func (p *publisherStub) PublishBadgeUnlockedEvent(ctx context.Context, event rabbitmq.BadgeUnlockedEvent) error {
	p.badgeEvents = append(p.badgeEvents, event)
	return nil
}

func (p *publisherStub) Close() {}

func TestIssueCompanionCode_RequiresTodaysPresence(t *testing.T) {
	venue := testVenue()
	repo := &companionRepoStub{venue: venue, presenceErr: store.ErrPresenceNotFound}
	svc := newTestService(repo, testRewardConfig(), time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	_, err := svc.IssueCompanionCode(context.Background(), uuid.New(), domain.CompanionIssueRequest{
		VenueSlug: venue.Slug,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})

	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonNoCheckinToday {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonNoCheckinToday, err)
	}
	if len(repo.createdCodes) != 0 {
		t.Fatal("did not expect a code to be minted")
	}
}

func TestIssueCompanionCode_RequiresCreatorInsideGeofence(t *testing.T) {
	venue := testVenue()
	repo := &companionRepoStub{venue: venue}
	svc := newTestService(repo, testRewardConfig(), time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	_, err := svc.IssueCompanionCode(context.Background(), uuid.New(), domain.CompanionIssueRequest{
		VenueSlug: venue.Slug,
		Latitude:  venue.Latitude + 0.1,
		Longitude: venue.Longitude,
	})

	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonTooFarFromVenue {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonTooFarFromVenue, err)
	}
}

func TestIssueCompanionCode_RemintsOnCollision(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	repo := &companionRepoStub{venue: venue, createCodeErrs: []error{store.ErrCodeCollision}}
	svc := newTestService(repo, testRewardConfig(), now)

	resp, err := svc.IssueCompanionCode(context.Background(), uuid.New(), domain.CompanionIssueRequest{
		VenueSlug: venue.Slug,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.createdCodes) != 2 {
		t.Fatalf("expected one re-mint after the collision, got %d attempts", len(repo.createdCodes))
	}
	if len(resp.Code) != codeLength {
		t.Fatalf("expected a %d-character code, got %q", codeLength, resp.Code)
	}
	for i := 0; i < len(resp.Code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(resp.Code[i])) {
			t.Fatalf("code %q contains character outside the unambiguous alphabet", resp.Code)
		}
	}
	if want := now.Add(10 * time.Minute); !resp.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, resp.ExpiresAt)
	}
}

func activeCompanionCode(venue *domain.Venue, creatorID uuid.UUID, now time.Time) *domain.CompanionCode {
	return &domain.CompanionCode{
		ID:         uuid.New(),
		Code:       "MKX7PQ",
		VenueID:    venue.ID,
		CreatorID:  creatorID,
		CreatorLat: venue.Latitude,
		CreatorLng: venue.Longitude,
		Status:     domain.CompanionCodeStatusActive,
		IssuedAt:   now.Add(-2 * time.Minute),
		ExpiresAt:  now.Add(8 * time.Minute),
	}
}

func TestJoinWithCode_RejectsUnknownAndExpiredCodes(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	code := activeCompanionCode(venue, uuid.New(), now)
	repo := &companionRepoStub{venue: venue, code: code}
	svc := newTestService(repo, testRewardConfig(), now)

	_, err := svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      "NOSUCH",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonCodeUnknown {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonCodeUnknown, err)
	}

	code.ExpiresAt = now.Add(-time.Minute)
	_, err = svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      code.Code,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonCodeExpired {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonCodeExpired, err)
	}
}

func TestJoinWithCode_NormalizesTypedCodes(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	code := activeCompanionCode(venue, uuid.New(), now)
	repo := &companionRepoStub{
		venue:   venue,
		code:    code,
		outcome: &domain.AwardOutcome{Applied: true, Points: 2, NewBalance: 2},
	}
	svc := newTestService(repo, testRewardConfig(), now)

	resp, err := svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      "mkx-7pq",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	if err != nil {
		t.Fatalf("expected normalized code to resolve, got %v", err)
	}
	if resp.PointsAwarded != 2 {
		t.Fatalf("expected 2 points, got %d", resp.PointsAwarded)
	}
}

func TestJoinWithCode_RejectsCreatorSelfJoin(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	creatorID := uuid.New()
	repo := &companionRepoStub{venue: venue, code: activeCompanionCode(venue, creatorID, now)}
	svc := newTestService(repo, testRewardConfig(), now)

	_, err := svc.JoinWithCode(context.Background(), creatorID, domain.CompanionJoinRequest{
		Code:      "MKX7PQ",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonCreatorSelfJoin {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonCreatorSelfJoin, err)
	}
}

func TestJoinWithCode_MeasuresProximityAgainstCreatorPosition(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	code := activeCompanionCode(venue, uuid.New(), now)
	// The creator wandered to a terrace away from the venue anchor.
	code.CreatorLat = venue.Latitude + 0.5
	code.CreatorLng = venue.Longitude + 0.5
	repo := &companionRepoStub{
		venue:   venue,
		code:    code,
		outcome: &domain.AwardOutcome{Applied: true, Points: 2, NewBalance: 2},
	}
	svc := newTestService(repo, testRewardConfig(), now)

	// Standing at the venue is now out of range.
	_, err := svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      code.Code,
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonTooFarFromCreator {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonTooFarFromCreator, err)
	}

	// Standing next to the creator succeeds.
	if _, err := svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      code.Code,
		Latitude:  code.CreatorLat,
		Longitude: code.CreatorLng,
	}); err != nil {
		t.Fatalf("expected join next to the creator to succeed, got %v", err)
	}
}

func TestJoinWithCode_FirstEverJoinUnlocksBadge(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	repo := &companionRepoStub{
		venue:         venue,
		code:          activeCompanionCode(venue, uuid.New(), now),
		joinFirstEver: true,
		outcome:       &domain.AwardOutcome{Applied: true, Points: 2, NewBalance: 2},
	}
	producer := &publisherStub{}
	svc := newTestService(repo, testRewardConfig(), now)
	svc.eventProducer = producer

	accountID := uuid.New()
	resp, err := svc.JoinWithCode(context.Background(), accountID, domain.CompanionJoinRequest{
		Code:      "MKX7PQ",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !resp.BadgeUnlocked {
		t.Fatal("expected the badge unlock flag")
	}
	if len(producer.badgeEvents) != 1 || producer.badgeEvents[0].Badge != FirstCompanionBadge {
		t.Fatalf("expected one %q badge event, got %+v", FirstCompanionBadge, producer.badgeEvents)
	}
	if repo.awardParams.Kind != domain.LedgerKindCompanionJoin {
		t.Fatalf("expected award kind %q, got %q", domain.LedgerKindCompanionJoin, repo.awardParams.Kind)
	}
	if !repo.awardParams.GeoVerified {
		t.Fatal("expected a companion join to count as geo-verified presence")
	}
}

func TestJoinWithCode_AlreadyCheckedInTodayStillRecordsJoin(t *testing.T) {
	venue := testVenue()
	now := time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)
	repo := &companionRepoStub{
		venue:         venue,
		code:          activeCompanionCode(venue, uuid.New(), now),
		joinFirstEver: true,
		outcome:       &domain.AwardOutcome{Applied: false, Points: 0, NewBalance: 9},
	}
	producer := &publisherStub{}
	svc := newTestService(repo, testRewardConfig(), now)
	svc.eventProducer = producer

	resp, err := svc.JoinWithCode(context.Background(), uuid.New(), domain.CompanionJoinRequest{
		Code:      "MKX7PQ",
		Latitude:  venue.Latitude,
		Longitude: venue.Longitude,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !resp.AlreadyCheckedInToday {
		t.Fatal("expected the already-checked-in outcome")
	}
	if resp.PointsAwarded != 0 || resp.Total != 9 {
		t.Fatalf("expected zero points on standing balance 9, got %d and %d", resp.PointsAwarded, resp.Total)
	}
	if len(producer.pointsEvents) != 0 {
		t.Fatal("did not expect a points event for an unapplied award")
	}
	// The badge rides on the join record, not on the day's points.
	if len(producer.badgeEvents) != 1 {
		t.Fatalf("expected the badge event regardless of the award, got %d", len(producer.badgeEvents))
	}
}
