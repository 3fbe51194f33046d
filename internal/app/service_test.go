package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

func TestCurrentWeekStart(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{
			name: "monday maps to itself",
			at:   time.Date(2026, 3, 9, 15, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "sunday maps back to the prior monday",
			at:   time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "midweek maps back to monday",
			at:   time.Date(2026, 3, 12, 0, 1, 0, 0, time.UTC),
			want: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := currentWeekStart(tt.at); !got.Equal(tt.want) {
				t.Fatalf("expected week start %s, got %s", tt.want, got)
			}
		})
	}
}

func TestGetActivePromo_ReportsEffectivePoints(t *testing.T) {
	venue := testVenue()
	promoID := uuid.New()
	repo := &checkinRepoStub{
		venue: venue,
		schedules: []domain.PromoSchedule{
			{
				ID:         promoID,
				VenueID:    venue.ID,
				Active:     true,
				BonusKind:  domain.PromoBonusAdditive,
				BonusValue: 3,
				TimeStart:  0,
				TimeEnd:    1439,
			},
		},
	}
	svc := newTestService(repo, testRewardConfig(), time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC))

	resp, err := svc.GetActivePromo(context.Background(), venue.Slug)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !resp.Active {
		t.Fatal("expected an active promo")
	}
	if resp.PromoID == nil || *resp.PromoID != promoID {
		t.Fatal("expected the winning schedule id")
	}
	if resp.BasePoints != 2 || resp.EffectivePoints != 5 {
		t.Fatalf("expected 2 base and 5 effective points, got %d and %d", resp.BasePoints, resp.EffectivePoints)
	}
}

func TestGetActivePromo_NoActiveScheduleFallsBackToBase(t *testing.T) {
	venue := testVenue()
	repo := &checkinRepoStub{
		venue: venue,
		schedules: []domain.PromoSchedule{
			{VenueID: venue.ID, Active: false, BonusKind: domain.PromoBonusAdditive, BonusValue: 3, TimeEnd: 1439},
		},
	}
	svc := newTestService(repo, testRewardConfig(), time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC))

	resp, err := svc.GetActivePromo(context.Background(), venue.Slug)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Active {
		t.Fatal("expected no active promo")
	}
	if resp.EffectivePoints != 2 {
		t.Fatalf("expected base effective points 2, got %d", resp.EffectivePoints)
	}
}
