/**
 * @description
 * Stable machine-readable reason codes attached to every rejection and to every
 * manual-review note, so calling surfaces can localize and explain outcomes
 * without parsing free-form messages.
 */

package domain

// Reason codes for geofence, lifecycle and cooldown rejections.
const (
	ReasonTooFarFromVenue   = "too_far_from_venue"
	ReasonTooFarFromCreator = "too_far_from_creator"
	ReasonCodeUnknown       = "code_unknown"
	ReasonCodeExpired       = "code_expired"
	ReasonAlreadyJoined     = "already_joined"
	ReasonCreatorSelfJoin   = "creator_self_join"
	ReasonNoCheckinToday    = "no_checkin_today"
	ReasonVoteCooldown      = "vote_cooldown_active"
)

// Reason codes for receipt verification rules. Manual-review reasons accumulate
// comma-joined on the pending record; terminal reasons reject outright.
const (
	ReasonAmountUnreadable   = "amount_unreadable"
	ReasonAmountBelowMinimum = "amount_below_minimum"
	ReasonDateUnreadable     = "date_unreadable"     // terminal
	ReasonTimeUnreadable     = "time_unreadable"     // terminal
	ReasonNoPresenceOnDate   = "no_presence_on_date"
	ReasonMerchantUnreadable = "merchant_unreadable"
	ReasonLocaleMismatch     = "locale_mismatch"
	ReasonTimingOutOfWindow  = "timing_out_of_tolerance"
	ReasonNoRecentCheckin    = "no_recent_checkin"
	ReasonRecognitionFailed  = "recognition_unavailable"
	ReasonManualApproval     = "manual_approval"
	ReasonManualRejection    = "manual_rejection"
)

// knownReasonCodes indexes every stable code above. Free-text reviewer notes
// are not codes and must never be mistaken for an accumulated code list.
var knownReasonCodes = map[string]bool{
	ReasonTooFarFromVenue:    true,
	ReasonTooFarFromCreator:  true,
	ReasonCodeUnknown:        true,
	ReasonCodeExpired:        true,
	ReasonAlreadyJoined:      true,
	ReasonCreatorSelfJoin:    true,
	ReasonNoCheckinToday:     true,
	ReasonVoteCooldown:       true,
	ReasonAmountUnreadable:   true,
	ReasonAmountBelowMinimum: true,
	ReasonDateUnreadable:     true,
	ReasonTimeUnreadable:     true,
	ReasonNoPresenceOnDate:   true,
	ReasonMerchantUnreadable: true,
	ReasonLocaleMismatch:     true,
	ReasonTimingOutOfWindow:  true,
	ReasonNoRecentCheckin:    true,
	ReasonRecognitionFailed:  true,
	ReasonManualApproval:     true,
	ReasonManualRejection:    true,
}

// KnownReasonCode reports whether code is one of the stable reason codes.
func KnownReasonCode(code string) bool {
	return knownReasonCodes[code]
}
