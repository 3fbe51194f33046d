/**
 * @description
 * Domain model for venue promotion schedules. Schedules are owned by venue/admin
 * tooling and read-only from this service's perspective; the evaluator in
 * internal/promo interprets them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Promo bonus kinds.
const (
	PromoBonusAdditive       = "additive"
	PromoBonusMultiplicative = "multiplicative"
)

// PromoSchedule is a declarative, time-boxed bonus rule for a venue.
// Time-of-day bounds are minutes since local midnight, inclusive on both ends.
// An empty Weekdays set means every day. A window with TimeEnd < TimeStart wraps
// midnight and is active on both sides of it.
type PromoSchedule struct {
	ID         uuid.UUID      `json:"id"`
	VenueID    uuid.UUID      `json:"venue_id"`
	Active     bool           `json:"active"`
	BonusKind  string         `json:"bonus_kind"`
	BonusValue float64        `json:"bonus_value"`
	Weekdays   []time.Weekday `json:"weekdays"`
	TimeStart  int            `json:"time_start"` // minutes since midnight, 0..1439
	TimeEnd    int            `json:"time_end"`   // minutes since midnight, 0..1439
	DateStart  *time.Time     `json:"date_start,omitempty"`
	DateEnd    *time.Time     `json:"date_end,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ActivePromoResponse is the read-only evaluation result exposed for diagnosis.
// EffectivePoints is what a geo-verified check-in would earn right now.
type ActivePromoResponse struct {
	VenueSlug       string     `json:"venue_slug"`
	Active          bool       `json:"active"`
	PromoID         *uuid.UUID `json:"promo_id,omitempty"`
	BonusKind       string     `json:"bonus_kind,omitempty"`
	BasePoints      int        `json:"base_points"`
	EffectivePoints int        `json:"effective_points"`
}
