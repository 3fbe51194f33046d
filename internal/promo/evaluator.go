/**
 * @description
 * The promotion schedule evaluator. Given a venue's schedules and an instant, it
 * decides which schedules are currently active and which one yields the best
 * final point value for the user. Every award path (check-in, companion-join,
 * receipt approval) must route base points through BestBonus so the bonus applied
 * never drifts between features.
 *
 * @notes
 * - Pure functions, no I/O. The caller supplies "now".
 * - Windows with time_end < time_start wrap midnight and are active on both sides
 *   of it. Bounds are inclusive at both ends.
 */

package promo

import (
	"math"
	"time"

	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// Multiplicative factors are clamped to this range before applying.
const (
	minMultiplier = 1.0
	maxMultiplier = 5.0
)

// IsActiveNow reports whether the schedule matches the given instant: the active
// flag is set, the date falls inside the optional [DateStart, DateEnd] range, the
// weekday is allowed (empty set means all days), and the time of day falls inside
// the daily window.
func IsActiveNow(s *domain.PromoSchedule, now time.Time) bool {
	if s == nil || !s.Active {
		return false
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if s.DateStart != nil && day.Before(dateOnly(*s.DateStart)) {
		return false
	}
	if s.DateEnd != nil && day.After(dateOnly(*s.DateEnd)) {
		return false
	}

	if len(s.Weekdays) > 0 {
		allowed := false
		for _, wd := range s.Weekdays {
			if wd == now.Weekday() {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	tod := now.Hour()*60 + now.Minute()
	if s.TimeStart <= s.TimeEnd {
		return tod >= s.TimeStart && tod <= s.TimeEnd
	}
	// Window wraps midnight, e.g. 22:00-02:00.
	return tod >= s.TimeStart || tod <= s.TimeEnd
}

// Apply returns the point value after applying the schedule's bonus to the base.
// Additive bonuses add a non-negative integer; multiplicative bonuses multiply by
// a factor clamped to [1, 5] and round to the nearest integer.
func Apply(s *domain.PromoSchedule, basePoints int) int {
	if s == nil || basePoints <= 0 {
		return basePoints
	}
	switch s.BonusKind {
	case domain.PromoBonusAdditive:
		add := int(math.Round(s.BonusValue))
		if add < 0 {
			add = 0
		}
		return basePoints + add
	case domain.PromoBonusMultiplicative:
		factor := s.BonusValue
		if factor < minMultiplier {
			factor = minMultiplier
		}
		if factor > maxMultiplier {
			factor = maxMultiplier
		}
		return int(math.Round(float64(basePoints) * factor))
	default:
		return basePoints
	}
}

// BestBonus evaluates all schedules at the given instant and returns the one that
// maximizes the user's final points, together with that final value. Ties resolve
// to the first schedule seen. A nil schedule return means no promotion applies and
// the base points stand. Storage may violate the one-active-schedule convention;
// the evaluator is correct regardless because it scans everything.
func BestBonus(schedules []domain.PromoSchedule, now time.Time, basePoints int) (*domain.PromoSchedule, int) {
	best := basePoints
	var bestSchedule *domain.PromoSchedule

	for i := range schedules {
		s := &schedules[i]
		if !IsActiveNow(s, now) {
			continue
		}
		if adjusted := Apply(s, basePoints); adjusted > best {
			best = adjusted
			bestSchedule = s
		}
	}

	return bestSchedule, best
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
