/**
 * @description
 * This file implements the receipt verification pipeline: upload, automated
 * verification against the consumption rules, and the internal manual-decision
 * override.
 *
 * Pipeline shape:
 * - Upload stores the raw image, dedupes on a content fingerprint, gates on a
 *   recent check-in, and creates a pending verification record.
 * - Verify runs extraction and the rule set. An unreadable date or time rejects
 *   terminally (the receipt can never be tied to a visit). Every other rule
 *   failure accumulates onto the pending record for manual review.
 * - Approval flips the record terminal and applies the consumption award
 *   through the guarded idempotent path, so a re-driven verification or a
 *   concurrent manual decision can never double-credit.
 */

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
	"github.com/vits2709/socialcraft-platform-sub000/internal/promo"
	"github.com/vits2709/socialcraft-platform-sub000/internal/store"
	"github.com/vits2709/socialcraft-platform-sub000/pkg/visionclient"
)

// ErrNotReceiptOwner is returned when a caller verifies a record they do not own.
var ErrNotReceiptOwner = errors.New("verification record belongs to another account")

const (
	extractionDateLayout = "2006-01-02"
	extractionTimeLayout = "15:04"
)

// UploadReceipt accepts receipt image bytes for a venue and creates a pending
// verification record. Re-uploading identical bytes returns the prior record.
func (s *Service) UploadReceipt(ctx context.Context, accountID uuid.UUID, venueSlug string, image []byte, mediaType string) (*domain.ReceiptUploadResponse, error) {
	now := s.now().UTC()

	// 1. Resolve the venue.
	venue, err := s.repo.FindVenueBySlug(ctx, venueSlug)
	if err != nil {
		return nil, err
	}

	// 2. Dedupe on the content fingerprint before any storage writes.
	sum := sha256.Sum256(image)
	fingerprint := hex.EncodeToString(sum[:])
	if existing, err := s.repo.FindReceiptByFingerprint(ctx, accountID, fingerprint); err == nil {
		log.Printf("level=info component=receipt msg=\"duplicate upload reused\" account_id=%s verification_id=%s", accountID, existing.ID)
		return &domain.ReceiptUploadResponse{VerificationID: existing.ID, Status: existing.Status, Reused: true}, nil
	} else if !errors.Is(err, store.ErrReceiptNotFound) {
		return nil, err
	}

	// 3. A consumption claim needs a recent check-in at the venue.
	windowStart := now.Add(-time.Duration(s.cfg.ReceiptPresenceWindowMinutes) * time.Minute)
	if _, err := s.repo.FindLatestPresenceEventSince(ctx, accountID, venue.ID, windowStart); err != nil {
		if errors.Is(err, store.ErrPresenceNotFound) {
			return nil, reject(domain.ReasonNoRecentCheckin, "uploading a receipt requires a recent check-in at the venue")
		}
		return nil, err
	}

	// 4. Store the image and create the pending record.
	id := uuid.New()
	storageKey := fmt.Sprintf("receipts/%s/%s", accountID, id)
	if err := s.images.Put(ctx, storageKey, image, mediaType); err != nil {
		return nil, fmt.Errorf("failed to store receipt image: %w", err)
	}

	rv := &domain.ReceiptVerification{
		ID:          id,
		AccountID:   accountID,
		VenueID:     venue.ID,
		Status:      domain.ReceiptStatusPending,
		Fingerprint: fingerprint,
		StorageKey:  storageKey,
		MediaType:   mediaType,
	}
	if err := s.repo.CreateReceiptVerification(ctx, rv); err != nil {
		if delErr := s.images.Delete(ctx, storageKey); delErr != nil {
			log.Printf("level=warn component=receipt msg=\"failed to delete orphaned image\" key=%s err=%v", storageKey, delErr)
		}
		return nil, fmt.Errorf("failed to create verification record: %w", err)
	}

	log.Printf("level=info component=receipt msg=\"upload accepted\" account_id=%s venue=%s verification_id=%s", accountID, venue.Slug, id)
	return &domain.ReceiptUploadResponse{VerificationID: id, Status: domain.ReceiptStatusPending, Reused: false}, nil
}

// VerifyReceipt runs one pass of the automated pipeline over a verification
// record. Terminal records return their standing outcome unchanged.
func (s *Service) VerifyReceipt(ctx context.Context, accountID, verificationID uuid.UUID) (*domain.ReceiptVerifyResponse, error) {
	rv, err := s.repo.FindReceiptVerificationByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if rv.AccountID != accountID {
		return nil, ErrNotReceiptOwner
	}
	if rv.Terminal() {
		return s.standingOutcome(ctx, rv)
	}
	return s.runVerification(ctx, rv)
}

// runVerification executes extraction and the rule set on a pending record.
// Shared by the user-facing verify endpoint and the background re-drive poller.
func (s *Service) runVerification(ctx context.Context, rv *domain.ReceiptVerification) (*domain.ReceiptVerifyResponse, error) {
	// 1. Re-read the stored image and extract.
	image, err := s.images.Get(ctx, rv.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt image: %w", err)
	}

	extraction, err := s.vision.Extract(ctx, image, rv.MediaType)
	if err != nil {
		if errors.Is(err, visionclient.ErrRecognitionUnavailable) {
			// Provider outage is not a verdict: stay pending for re-drive.
			if noteErr := s.repo.RecordReceiptReviewNote(ctx, rv.ID, domain.ReasonRecognitionFailed); noteErr != nil {
				log.Printf("level=warn component=receipt msg=\"failed to record review note\" verification_id=%s err=%v", rv.ID, noteErr)
			}
			return &domain.ReceiptVerifyResponse{
				VerificationID: rv.ID,
				Status:         domain.ReceiptStatusPending,
				Reasons:        []string{domain.ReasonRecognitionFailed},
			}, nil
		}
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	// 2. Date and time are load-bearing: without them the receipt can never be
	// tied to a visit, so unreadable values reject terminally.
	extractedAt, timeReason := parseExtractionTimestamp(extraction)
	if timeReason != "" {
		return s.rejectTerminal(ctx, rv, timeReason)
	}
	if err := s.repo.RecordReceiptExtraction(ctx, rv.ID, extractedAt); err != nil {
		log.Printf("level=warn component=receipt msg=\"failed to record extraction timestamp\" verification_id=%s err=%v", rv.ID, err)
	}

	// 3. Remaining rules accumulate for manual review rather than rejecting.
	var reasons []string

	// Amount must be readable and at least the consumption minimum.
	if amount, ok := extraction.AmountDecimal(); !ok {
		reasons = append(reasons, domain.ReasonAmountUnreadable)
	} else if amount.LessThan(s.cfg.MinReceiptAmount()) {
		reasons = append(reasons, domain.ReasonAmountBelowMinimum)
	}

	// The account must have held presence at the venue on the receipt's date.
	if _, err := s.repo.FindPresenceEvent(ctx, rv.AccountID, rv.VenueID, eventDate(extractedAt)); err != nil {
		if !errors.Is(err, store.ErrPresenceNotFound) {
			return nil, err
		}
		reasons = append(reasons, domain.ReasonNoPresenceOnDate)
	} else {
		// And the receipt's timestamp must sit within tolerance of a check-in.
		nearest, err := s.repo.FindNearestPresenceEvent(ctx, rv.AccountID, rv.VenueID, extractedAt)
		if err != nil && !errors.Is(err, store.ErrPresenceNotFound) {
			return nil, err
		}
		if nearest == nil || outsideTolerance(nearest.CreatedAt, extractedAt, s.cfg.ReceiptToleranceMinutes) {
			reasons = append(reasons, domain.ReasonTimingOutOfWindow)
		}
	}

	// The printed merchant name must resemble the venue's. An unreadable
	// merchant cannot satisfy the rule.
	venue, err := s.repo.FindVenueByID(ctx, rv.VenueID)
	if err != nil {
		return nil, err
	}
	if extraction.MerchantName == nil {
		reasons = append(reasons, domain.ReasonMerchantUnreadable)
	} else if !merchantMatches(*extraction.MerchantName, venue.Name) {
		reasons = append(reasons, domain.ReasonLocaleMismatch)
	}

	if len(reasons) > 0 {
		note := strings.Join(reasons, ",")
		if err := s.repo.RecordReceiptReviewNote(ctx, rv.ID, note); err != nil {
			log.Printf("level=warn component=receipt msg=\"failed to record review note\" verification_id=%s err=%v", rv.ID, err)
		}
		log.Printf("level=info component=receipt msg=\"verification held for review\" verification_id=%s reasons=%q", rv.ID, note)
		return &domain.ReceiptVerifyResponse{VerificationID: rv.ID, Status: domain.ReceiptStatusPending, Reasons: reasons}, nil
	}

	// 4. All rules passed: approve and award.
	return s.approveAndAward(ctx, rv, extractedAt)
}

// approveAndAward flips the record to approved and applies the consumption
// bonus. Losing either guard (already terminal, already awarded) degrades to
// reporting the standing state rather than erroring.
func (s *Service) approveAndAward(ctx context.Context, rv *domain.ReceiptVerification, extractedAt time.Time) (*domain.ReceiptVerifyResponse, error) {
	transitioned, err := s.repo.TransitionReceiptStatus(ctx, rv.ID, domain.ReceiptStatusApproved, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to approve verification: %w", err)
	}
	if !transitioned {
		current, err := s.repo.FindReceiptVerificationByID(ctx, rv.ID)
		if err != nil {
			return nil, err
		}
		return s.standingOutcome(ctx, current)
	}

	outcome, err := s.settleConsumptionAward(ctx, rv, &extractedAt)
	if err != nil {
		return nil, err
	}
	if outcome.Applied {
		log.Printf("level=info component=receipt msg=\"verification approved\" verification_id=%s points=%d", rv.ID, outcome.Points)
	}

	return &domain.ReceiptVerifyResponse{
		VerificationID: rv.ID,
		Status:         domain.ReceiptStatusApproved,
		PointsAwarded:  outcome.Points,
		Total:          outcome.NewBalance,
	}, nil
}

// DecideReceipt applies a manual override from the review console. Deciding an
// already-terminal record is a no-op reporting the standing state.
func (s *Service) DecideReceipt(ctx context.Context, verificationID uuid.UUID, req domain.ReceiptDecisionRequest) (*domain.ReceiptVerifyResponse, error) {
	rv, err := s.repo.FindReceiptVerificationByID(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if rv.Terminal() {
		return s.standingOutcome(ctx, rv)
	}

	if !req.Approve {
		note := domain.ReasonManualRejection
		if req.Note != nil && strings.TrimSpace(*req.Note) != "" {
			note = strings.TrimSpace(*req.Note)
		}
		if _, err := s.repo.TransitionReceiptStatus(ctx, verificationID, domain.ReceiptStatusRejected, &note); err != nil {
			return nil, fmt.Errorf("failed to reject verification: %w", err)
		}
		log.Printf("level=info component=receipt msg=\"verification manually rejected\" verification_id=%s", verificationID)
		return &domain.ReceiptVerifyResponse{VerificationID: verificationID, Status: domain.ReceiptStatusRejected, Reasons: []string{note}}, nil
	}

	note := domain.ReasonManualApproval
	transitioned, err := s.repo.TransitionReceiptStatus(ctx, verificationID, domain.ReceiptStatusApproved, &note)
	if err != nil {
		return nil, fmt.Errorf("failed to approve verification: %w", err)
	}
	if !transitioned {
		current, err := s.repo.FindReceiptVerificationByID(ctx, verificationID)
		if err != nil {
			return nil, err
		}
		return s.standingOutcome(ctx, current)
	}

	// Manual approvals pay the flat bonus; the reviewer has no extraction
	// timestamp to evaluate promos against.
	outcome, err := s.settleConsumptionAward(ctx, rv, nil)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=receipt msg=\"verification manually approved\" verification_id=%s points=%d", verificationID, outcome.Points)

	return &domain.ReceiptVerifyResponse{
		VerificationID: verificationID,
		Status:         domain.ReceiptStatusApproved,
		PointsAwarded:  outcome.Points,
		Total:          outcome.NewBalance,
	}, nil
}

// rejectTerminal moves the record to rejected with the given reason. A lost
// transition race reports the standing state instead.
func (s *Service) rejectTerminal(ctx context.Context, rv *domain.ReceiptVerification, reason string) (*domain.ReceiptVerifyResponse, error) {
	transitioned, err := s.repo.TransitionReceiptStatus(ctx, rv.ID, domain.ReceiptStatusRejected, &reason)
	if err != nil {
		return nil, fmt.Errorf("failed to reject verification: %w", err)
	}
	if !transitioned {
		current, err := s.repo.FindReceiptVerificationByID(ctx, rv.ID)
		if err != nil {
			return nil, err
		}
		return s.standingOutcome(ctx, current)
	}
	log.Printf("level=info component=receipt msg=\"verification rejected\" verification_id=%s reason=%s", rv.ID, reason)
	return &domain.ReceiptVerifyResponse{VerificationID: rv.ID, Status: domain.ReceiptStatusRejected, Reasons: []string{reason}}, nil
}

// settleConsumptionAward applies the consumption bonus for an approved record.
// Promo bonuses evaluate at the receipt's own timestamp when one is known. The
// points_awarded flag guard keeps repeated settlement exactly-once.
func (s *Service) settleConsumptionAward(ctx context.Context, rv *domain.ReceiptVerification, extractedAt *time.Time) (*domain.AwardOutcome, error) {
	points := s.cfg.ConsumptionPoints
	var promoID *uuid.UUID
	if extractedAt != nil {
		schedules, err := s.repo.ListPromoSchedulesByVenue(ctx, rv.VenueID)
		if err != nil {
			return nil, fmt.Errorf("failed to list promo schedules: %w", err)
		}
		if best, bonusPoints := promo.BestBonus(schedules, *extractedAt, points); best != nil {
			points = bonusPoints
			promoID = &best.ID
		}
	}

	outcome, err := s.repo.ApplyReceiptAward(ctx, rv.ID, rv.AccountID, rv.VenueID, points, promoID)
	if err != nil {
		return nil, fmt.Errorf("failed to apply consumption award: %w", err)
	}
	if outcome.Applied {
		s.publishAward(ctx, rv.AccountID, &rv.VenueID, domain.LedgerKindConsumption, outcome.Points, true)
	}
	return outcome, nil
}

// standingOutcome renders a terminal record's state. An approved record whose
// award was interrupted between the status transition and the ledger write is
// settled here, so approval can never strand points.
func (s *Service) standingOutcome(ctx context.Context, rv *domain.ReceiptVerification) (*domain.ReceiptVerifyResponse, error) {
	resp := &domain.ReceiptVerifyResponse{VerificationID: rv.ID, Status: rv.Status}
	if rv.DecisionNote != nil && *rv.DecisionNote != "" {
		resp.Reasons = splitReasonCodes(*rv.DecisionNote)
	}
	if rv.Status != domain.ReceiptStatusApproved {
		return resp, nil
	}

	if !rv.PointsAwarded {
		outcome, err := s.settleConsumptionAward(ctx, rv, rv.ExtractedAt)
		if err != nil {
			return nil, err
		}
		if outcome.Applied {
			log.Printf("level=info component=receipt msg=\"interrupted award settled\" verification_id=%s points=%d", rv.ID, outcome.Points)
		}
		resp.PointsAwarded = outcome.Points
		resp.Total = outcome.NewBalance
		return resp, nil
	}

	account, err := s.repo.FindAccountByID(ctx, rv.AccountID)
	if err != nil {
		return nil, err
	}
	resp.Total = account.Balance
	return resp, nil
}

// splitReasonCodes recovers the accumulated codes from a review note. A
// free-text reviewer note, which may itself contain commas, is returned whole.
func splitReasonCodes(note string) []string {
	parts := strings.Split(note, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if !domain.KnownReasonCode(parts[i]) {
			return []string{note}
		}
	}
	return parts
}

// parseExtractionTimestamp reconstructs the receipt's UTC timestamp from the
// extracted date and time. The returned reason is the terminal rejection code
// when either field is missing or unparsable.
func parseExtractionTimestamp(e *domain.Extraction) (time.Time, string) {
	if e.Date == nil {
		return time.Time{}, domain.ReasonDateUnreadable
	}
	day, err := time.ParseInLocation(extractionDateLayout, strings.TrimSpace(*e.Date), time.UTC)
	if err != nil {
		return time.Time{}, domain.ReasonDateUnreadable
	}
	if e.Time == nil {
		return time.Time{}, domain.ReasonTimeUnreadable
	}
	tod, err := time.Parse(extractionTimeLayout, strings.TrimSpace(*e.Time))
	if err != nil {
		return time.Time{}, domain.ReasonTimeUnreadable
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC), ""
}

func outsideTolerance(checkinAt, receiptAt time.Time, toleranceMinutes int) bool {
	diff := checkinAt.Sub(receiptAt)
	if diff < 0 {
		diff = -diff
	}
	return diff > time.Duration(toleranceMinutes)*time.Minute
}

// merchantMatches compares the printed merchant name against the venue name:
// case-insensitive containment in either direction, or any shared word of at
// least three characters.
func merchantMatches(merchant, venueName string) bool {
	m := strings.ToLower(strings.TrimSpace(merchant))
	v := strings.ToLower(strings.TrimSpace(venueName))
	if m == "" || v == "" {
		return false
	}
	if strings.Contains(m, v) || strings.Contains(v, m) {
		return true
	}
	for _, word := range strings.Fields(m) {
		if len(word) < 3 {
			continue
		}
		for _, other := range strings.Fields(v) {
			if word == other {
				return true
			}
		}
	}
	return false
}
