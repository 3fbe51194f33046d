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
	"github.com/vits2709/socialcraft-platform-sub000/pkg/visionclient"
)

type receiptRepoStub struct {
	store.Repository

	venue    *domain.Venue
	account  *domain.Account
	existing *domain.ReceiptVerification
	record   *domain.ReceiptVerification

	presence        *domain.PresenceEvent
	nearestPresence *domain.PresenceEvent
	recentPresence  *domain.PresenceEvent

	outcome *domain.AwardOutcome

	created *domain.ReceiptVerification

	transitionCalled bool
	transitionStatus string
	transitionNote   *string
	transitionOK     bool

	reviewNote string

	extractionRecorded *time.Time

	awardCalled bool
	awardPoints int
	awardPromo  *uuid.UUID
}

func (s *receiptRepoStub) FindVenueBySlug(ctx context.Context, slug string) (*domain.Venue, error) {
	if s.venue == nil {
		return nil, store.ErrVenueNotFound
	}
	return s.venue, nil
}

func (s *receiptRepoStub) FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error) {
	if s.venue == nil {
		return nil, store.ErrVenueNotFound
	}
	return s.venue, nil
}

func (s *receiptRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *receiptRepoStub) FindReceiptByFingerprint(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.ReceiptVerification, error) {
	if s.existing == nil {
		return nil, store.ErrReceiptNotFound
	}
	return s.existing, nil
}

func (s *receiptRepoStub) FindReceiptVerificationByID(ctx context.Context, id uuid.UUID) (*domain.ReceiptVerification, error) {
	if s.record == nil {
		return nil, store.ErrReceiptNotFound
	}
	return s.record, nil
}

func (s *receiptRepoStub) FindLatestPresenceEventSince(ctx context.Context, accountID, venueID uuid.UUID, since time.Time) (*domain.PresenceEvent, error) {
	if s.recentPresence == nil {
		return nil, store.ErrPresenceNotFound
	}
	return s.recentPresence, nil
}

func (s *receiptRepoStub) FindPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, eventDate time.Time) (*domain.PresenceEvent, error) {
	if s.presence == nil {
		return nil, store.ErrPresenceNotFound
	}
	return s.presence, nil
}

func (s *receiptRepoStub) FindNearestPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, around time.Time) (*domain.PresenceEvent, error) {
	if s.nearestPresence == nil {
		return nil, store.ErrPresenceNotFound
	}
	return s.nearestPresence, nil
}

func (s *receiptRepoStub) CreateReceiptVerification(ctx context.Context, rv *domain.ReceiptVerification) error {
	s.created = rv
	return nil
}

func (s *receiptRepoStub) TransitionReceiptStatus(ctx context.Context, id uuid.UUID, status string, note *string) (bool, error) {
	s.transitionCalled = true
	s.transitionStatus = status
	s.transitionNote = note
	return s.transitionOK, nil
}

func (s *receiptRepoStub) RecordReceiptReviewNote(ctx context.Context, id uuid.UUID, note string) error {
	s.reviewNote = note
	return nil
}

func (s *receiptRepoStub) RecordReceiptExtraction(ctx context.Context, id uuid.UUID, extractedAt time.Time) error {
	s.extractionRecorded = &extractedAt
	return nil
}

func (s *receiptRepoStub) ListPromoSchedulesByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.PromoSchedule, error) {
	return nil, nil
}

func (s *receiptRepoStub) ApplyReceiptAward(ctx context.Context, verificationID, accountID, venueID uuid.UUID, points int, promoID *uuid.UUID) (*domain.AwardOutcome, error) {
	s.awardCalled = true
	s.awardPoints = points
	s.awardPromo = promoID
	return s.outcome, nil
}

type extractorStub struct {
	extraction *domain.Extraction
	err        error
}

func (e *extractorStub) Extract(ctx context.Context, image []byte, mediaType string) (*domain.Extraction, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.extraction, nil
}

type imageStoreStub struct {
	putKey  string
	deleted string
	data    []byte
}

func (s *imageStoreStub) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.putKey = key
	s.data = data
	return nil
}

func (s *imageStoreStub) Get(ctx context.Context, key string) ([]byte, error) {
	return s.data, nil
}

func (s *imageStoreStub) Delete(ctx context.Context, key string) error {
	s.deleted = key
	return nil
}

func (s *imageStoreStub) Enabled() bool { return true }

func pendingRecord(accountID, venueID uuid.UUID) *domain.ReceiptVerification {
	return &domain.ReceiptVerification{
		ID:         uuid.New(),
		AccountID:  accountID,
		VenueID:    venueID,
		Status:     domain.ReceiptStatusPending,
		StorageKey: "receipts/key",
		MediaType:  "image/jpeg",
	}
}

func fullExtraction() *domain.Extraction {
	date := "2026-03-14"
	tod := "20:30"
	amount := "25.00"
	merchant := "Blue Lantern"
	return &domain.Extraction{Date: &date, Time: &tod, Amount: &amount, MerchantName: &merchant}
}

func newReceiptService(repo *receiptRepoStub, vision Extractor, images ImageStore, at time.Time) *Service {
	svc := NewService(repo, vision, images, nil, testRewardConfig())
	svc.now = func() time.Time { return at }
	return svc
}

func TestUploadReceipt_ReusesPriorRecordForIdenticalBytes(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	existing := pendingRecord(accountID, venue.ID)
	repo := &receiptRepoStub{venue: venue, existing: existing}
	images := &imageStoreStub{}
	svc := newReceiptService(repo, nil, images, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.UploadReceipt(context.Background(), accountID, venue.Slug, []byte("same bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !resp.Reused {
		t.Fatal("expected the prior record to be reused")
	}
	if resp.VerificationID != existing.ID {
		t.Fatalf("expected prior verification id %s, got %s", existing.ID, resp.VerificationID)
	}
	if images.putKey != "" {
		t.Fatal("did not expect a storage write for a duplicate upload")
	}
}

func TestUploadReceipt_RequiresRecentCheckin(t *testing.T) {
	venue := testVenue()
	repo := &receiptRepoStub{venue: venue}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	_, err := svc.UploadReceipt(context.Background(), uuid.New(), venue.Slug, []byte("receipt"), "image/jpeg")

	var rejected *RejectionError
	if !errors.As(err, &rejected) || rejected.Reason != domain.ReasonNoRecentCheckin {
		t.Fatalf("expected rejection %q, got %v", domain.ReasonNoRecentCheckin, err)
	}
	if repo.created != nil {
		t.Fatal("did not expect a verification record")
	}
}

func TestUploadReceipt_CreatesPendingRecord(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	repo := &receiptRepoStub{
		venue:          venue,
		recentPresence: &domain.PresenceEvent{AccountID: accountID, VenueID: venue.ID},
	}
	images := &imageStoreStub{}
	svc := newReceiptService(repo, nil, images, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.UploadReceipt(context.Background(), accountID, venue.Slug, []byte("receipt bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusPending || resp.Reused {
		t.Fatalf("expected a fresh pending record, got %+v", resp)
	}
	if repo.created == nil {
		t.Fatal("expected a verification record")
	}
	if repo.created.Fingerprint == "" {
		t.Fatal("expected a content fingerprint on the record")
	}
	if !strings.HasPrefix(images.putKey, "receipts/"+accountID.String()+"/") {
		t.Fatalf("expected storage key scoped to the account, got %q", images.putKey)
	}
}

func TestVerifyReceipt_RejectsOtherAccountsRecords(t *testing.T) {
	venue := testVenue()
	repo := &receiptRepoStub{venue: venue, record: pendingRecord(uuid.New(), venue.ID)}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	_, err := svc.VerifyReceipt(context.Background(), uuid.New(), repo.record.ID)
	if !errors.Is(err, ErrNotReceiptOwner) {
		t.Fatalf("expected ErrNotReceiptOwner, got %v", err)
	}
}

func TestVerifyReceipt_UnreadableDateRejectsTerminally(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	repo := &receiptRepoStub{venue: venue, record: pendingRecord(accountID, venue.ID), transitionOK: true}
	extraction := fullExtraction()
	extraction.Date = nil
	svc := newReceiptService(repo, &extractorStub{extraction: extraction}, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusRejected {
		t.Fatalf("expected terminal rejection, got %q", resp.Status)
	}
	if repo.transitionStatus != domain.ReceiptStatusRejected {
		t.Fatalf("expected a rejected transition, got %q", repo.transitionStatus)
	}
	if repo.transitionNote == nil || *repo.transitionNote != domain.ReasonDateUnreadable {
		t.Fatalf("expected note %q, got %v", domain.ReasonDateUnreadable, repo.transitionNote)
	}
	if repo.awardCalled {
		t.Fatal("did not expect an award")
	}
}

func TestVerifyReceipt_AccumulatesRuleFailuresAndStaysPending(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	repo := &receiptRepoStub{venue: venue, record: pendingRecord(accountID, venue.ID)}
	extraction := fullExtraction()
	low := "4.50"
	merchant := "Some Other Kiosk"
	extraction.Amount = &low
	extraction.MerchantName = &merchant
	// No presence on the receipt's date either.
	svc := newReceiptService(repo, &extractorStub{extraction: extraction}, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusPending {
		t.Fatalf("expected the record to stay pending, got %q", resp.Status)
	}
	want := []string{domain.ReasonAmountBelowMinimum, domain.ReasonNoPresenceOnDate, domain.ReasonLocaleMismatch}
	if len(resp.Reasons) != len(want) {
		t.Fatalf("expected reasons %v, got %v", want, resp.Reasons)
	}
	for i, reason := range want {
		if resp.Reasons[i] != reason {
			t.Fatalf("expected reasons %v, got %v", want, resp.Reasons)
		}
	}
	if repo.reviewNote != strings.Join(want, ",") {
		t.Fatalf("expected comma-joined review note, got %q", repo.reviewNote)
	}
	if repo.transitionCalled {
		t.Fatal("did not expect a terminal transition for reviewable failures")
	}
}

func TestVerifyReceipt_TimingOutsideToleranceHoldsForReview(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	checkinAt := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC) // 5.5h before the receipt
	repo := &receiptRepoStub{
		venue:           venue,
		record:          pendingRecord(accountID, venue.ID),
		presence:        &domain.PresenceEvent{CreatedAt: checkinAt},
		nearestPresence: &domain.PresenceEvent{CreatedAt: checkinAt},
	}
	svc := newReceiptService(repo, &extractorStub{extraction: fullExtraction()}, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusPending {
		t.Fatalf("expected the record to stay pending, got %q", resp.Status)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != domain.ReasonTimingOutOfWindow {
		t.Fatalf("expected only %q, got %v", domain.ReasonTimingOutOfWindow, resp.Reasons)
	}
}

func TestVerifyReceipt_AllRulesPassApprovesAndAwards(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	checkinAt := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC) // 30min before the receipt
	repo := &receiptRepoStub{
		venue:           venue,
		record:          pendingRecord(accountID, venue.ID),
		presence:        &domain.PresenceEvent{CreatedAt: checkinAt},
		nearestPresence: &domain.PresenceEvent{CreatedAt: checkinAt},
		transitionOK:    true,
		outcome:         &domain.AwardOutcome{Applied: true, Points: 8, NewBalance: 20},
	}
	svc := newReceiptService(repo, &extractorStub{extraction: fullExtraction()}, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusApproved {
		t.Fatalf("expected approval, got %q", resp.Status)
	}
	if !repo.awardCalled || repo.awardPoints != 8 {
		t.Fatalf("expected an 8-point consumption award, got called=%t points=%d", repo.awardCalled, repo.awardPoints)
	}
	if resp.PointsAwarded != 8 || resp.Total != 20 {
		t.Fatalf("expected 8 points on total 20, got %d and %d", resp.PointsAwarded, resp.Total)
	}
	if repo.extractionRecorded == nil {
		t.Fatal("expected the extraction timestamp to be persisted")
	}
	if want := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC); !repo.extractionRecorded.Equal(want) {
		t.Fatalf("expected extraction timestamp %s, got %s", want, *repo.extractionRecorded)
	}
}

func TestVerifyReceipt_UnreadableMerchantHoldsForReview(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	checkinAt := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	repo := &receiptRepoStub{
		venue:           venue,
		record:          pendingRecord(accountID, venue.ID),
		presence:        &domain.PresenceEvent{CreatedAt: checkinAt},
		nearestPresence: &domain.PresenceEvent{CreatedAt: checkinAt},
	}
	extraction := fullExtraction()
	extraction.MerchantName = nil
	svc := newReceiptService(repo, &extractorStub{extraction: extraction}, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusPending {
		t.Fatalf("expected the record to stay pending, got %q", resp.Status)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != domain.ReasonMerchantUnreadable {
		t.Fatalf("expected only %q, got %v", domain.ReasonMerchantUnreadable, resp.Reasons)
	}
	if repo.awardCalled {
		t.Fatal("an unreadable merchant must not be awarded")
	}
	if repo.transitionCalled {
		t.Fatal("did not expect a terminal transition for a reviewable failure")
	}
}

func TestVerifyReceipt_SettlesInterruptedAward(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	extractedAt := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)
	record := pendingRecord(accountID, venue.ID)
	record.Status = domain.ReceiptStatusApproved
	record.PointsAwarded = false
	record.ExtractedAt = &extractedAt
	repo := &receiptRepoStub{
		venue:   venue,
		record:  record,
		outcome: &domain.AwardOutcome{Applied: true, Points: 8, NewBalance: 28},
	}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.awardCalled {
		t.Fatal("expected the unpaid approval to be settled")
	}
	if repo.awardPoints != 8 {
		t.Fatalf("expected the 8-point consumption award, got %d", repo.awardPoints)
	}
	if resp.PointsAwarded != 8 || resp.Total != 28 {
		t.Fatalf("expected 8 points on total 28, got %d and %d", resp.PointsAwarded, resp.Total)
	}
	if repo.transitionCalled {
		t.Fatal("settlement must not re-transition the record")
	}
}

func TestVerifyReceipt_FreeTextDecisionNoteKeptWhole(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	note := "photo of a different venue's receipt, image too blurry to read"
	record := pendingRecord(accountID, venue.ID)
	record.Status = domain.ReceiptStatusRejected
	record.DecisionNote = &note
	repo := &receiptRepoStub{venue: venue, record: record}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != note {
		t.Fatalf("expected the reviewer note intact, got %v", resp.Reasons)
	}
}

func TestSplitReasonCodes(t *testing.T) {
	tests := []struct {
		name string
		note string
		want []string
	}{
		{
			name: "accumulated codes",
			note: "amount_below_minimum,no_presence_on_date,locale_mismatch",
			want: []string{domain.ReasonAmountBelowMinimum, domain.ReasonNoPresenceOnDate, domain.ReasonLocaleMismatch},
		},
		{
			name: "single code",
			note: "date_unreadable",
			want: []string{domain.ReasonDateUnreadable},
		},
		{
			name: "free text with comma",
			note: "receipt from another venue, please re-upload",
			want: []string{"receipt from another venue, please re-upload"},
		},
		{
			name: "free text without comma",
			note: "handwriting illegible",
			want: []string{"handwriting illegible"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitReasonCodes(tt.note)
			if len(got) != len(tt.want) {
				t.Fatalf("splitReasonCodes(%q) = %v, want %v", tt.note, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("splitReasonCodes(%q) = %v, want %v", tt.note, got, tt.want)
				}
			}
		})
	}
}

func TestVerifyReceipt_RecognitionOutageStaysPending(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	repo := &receiptRepoStub{venue: venue, record: pendingRecord(accountID, venue.ID)}
	vision := &extractorStub{err: visionclient.ErrRecognitionUnavailable}
	svc := newReceiptService(repo, vision, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, repo.record.ID)
	if err != nil {
		t.Fatalf("expected the outage to be absorbed, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusPending {
		t.Fatalf("expected the record to stay pending, got %q", resp.Status)
	}
	if len(resp.Reasons) != 1 || resp.Reasons[0] != domain.ReasonRecognitionFailed {
		t.Fatalf("expected only %q, got %v", domain.ReasonRecognitionFailed, resp.Reasons)
	}
	if repo.transitionCalled {
		t.Fatal("a provider outage must not move the record")
	}
}

func TestVerifyReceipt_TerminalRecordReturnsStandingOutcome(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	record := pendingRecord(accountID, venue.ID)
	record.Status = domain.ReceiptStatusApproved
	record.PointsAwarded = true
	repo := &receiptRepoStub{
		venue:   venue,
		record:  record,
		account: &domain.Account{ID: accountID, Balance: 42},
	}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.VerifyReceipt(context.Background(), accountID, record.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusApproved {
		t.Fatalf("expected the standing approval, got %q", resp.Status)
	}
	if resp.Total != 42 {
		t.Fatalf("expected the standing balance 42, got %d", resp.Total)
	}
	if repo.transitionCalled || repo.awardCalled {
		t.Fatal("a terminal record must not be re-processed")
	}
}

func TestDecideReceipt_ManualRejectionRecordsNote(t *testing.T) {
	venue := testVenue()
	repo := &receiptRepoStub{
		venue:        venue,
		record:       pendingRecord(uuid.New(), venue.ID),
		transitionOK: true,
	}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	note := "photo of a different venue's receipt"
	resp, err := svc.DecideReceipt(context.Background(), repo.record.ID, domain.ReceiptDecisionRequest{Approve: false, Note: &note})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusRejected {
		t.Fatalf("expected rejection, got %q", resp.Status)
	}
	if repo.transitionNote == nil || *repo.transitionNote != note {
		t.Fatalf("expected the reviewer note to be persisted, got %v", repo.transitionNote)
	}
	if repo.awardCalled {
		t.Fatal("did not expect an award on rejection")
	}
}

func TestMerchantMatches(t *testing.T) {
	tests := []struct {
		name     string
		merchant string
		venue    string
		want     bool
	}{
		{name: "exact match", merchant: "Blue Lantern Bar", venue: "Blue Lantern Bar", want: true},
		{name: "merchant contained in venue", merchant: "blue lantern", venue: "Blue Lantern Bar", want: true},
		{name: "venue contained in merchant", merchant: "BLUE LANTERN BAR GMBH", venue: "Blue Lantern Bar", want: true},
		{name: "shared significant word", merchant: "Lantern Gastro Ltd", venue: "Blue Lantern Bar", want: true},
		{name: "only short words shared", merchant: "El Toro", venue: "El Gato", want: false},
		{name: "no overlap", merchant: "Some Other Kiosk", venue: "Blue Lantern Bar", want: false},
		{name: "empty merchant", merchant: "", venue: "Blue Lantern Bar", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := merchantMatches(tt.merchant, tt.venue); got != tt.want {
				t.Fatalf("merchantMatches(%q, %q) = %t, want %t", tt.merchant, tt.venue, got, tt.want)
			}
		})
	}
}

func TestDecideReceipt_ManualApprovalPaysFlatBonus(t *testing.T) {
	venue := testVenue()
	accountID := uuid.New()
	repo := &receiptRepoStub{
		venue:        venue,
		record:       pendingRecord(accountID, venue.ID),
		transitionOK: true,
		outcome:      &domain.AwardOutcome{Applied: true, Points: 8, NewBalance: 16},
	}
	svc := newReceiptService(repo, nil, &imageStoreStub{}, time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC))

	resp, err := svc.DecideReceipt(context.Background(), repo.record.ID, domain.ReceiptDecisionRequest{Approve: true})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if resp.Status != domain.ReceiptStatusApproved {
		t.Fatalf("expected approval, got %q", resp.Status)
	}
	if !repo.awardCalled || repo.awardPoints != 8 {
		t.Fatalf("expected the flat 8-point award, got called=%t points=%d", repo.awardCalled, repo.awardPoints)
	}
	if repo.awardPromo != nil {
		t.Fatal("manual approvals must not apply promo bonuses")
	}
}
