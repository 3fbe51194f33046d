/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed to interact with the accounts, ledger, presence,
 * receipt-verification, companion-code and vote tables.
 *
 * Key invariants enforced here:
 * - Every point award is a single database transaction combining a guarded state
 *   transition on the source record and the balance increment + ledger insert.
 *   When the guard loses (key already spent) no balance mutation happens and the
 *   outcome reports Applied=false.
 * - ledger_entries is append-only; accounts.balance is only written inside the
 *   two Apply* methods.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrVenueNotFound    = errors.New("venue not found")
	ErrPresenceNotFound = errors.New("presence event not found")
	ErrReceiptNotFound  = errors.New("receipt verification not found")
	ErrCodeNotFound     = errors.New("companion code not found")
	ErrCodeCollision    = errors.New("companion code already exists")
	ErrAlreadyJoined    = errors.New("code already redeemed by this account")
	ErrVoteNotFound     = errors.New("vote not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// FindOrCreateAccountBySubject resolves the account for an external auth subject,
// creating it on first contact.
func (r *PostgresRepository) FindOrCreateAccountBySubject(ctx context.Context, subject string) (*domain.Account, error) {
	var account domain.Account
	query := `
		INSERT INTO accounts (id, subject, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (subject) DO UPDATE SET updated_at = NOW()
		RETURNING id, subject, nickname, balance, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, uuid.New(), subject).Scan(
		&account.ID, &account.Subject, &account.Nickname, &account.Balance,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account for subject: %w", err)
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, subject, nickname, balance, created_at, updated_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.Subject, &account.Nickname, &account.Balance,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindVenueBySlug retrieves a venue by its URL slug.
func (r *PostgresRepository) FindVenueBySlug(ctx context.Context, slug string) (*domain.Venue, error) {
	var venue domain.Venue
	query := `SELECT id, slug, name, latitude, longitude, created_at FROM venues WHERE lower(btrim(slug)) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, slug).Scan(
		&venue.ID, &venue.Slug, &venue.Name, &venue.Latitude, &venue.Longitude, &venue.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &venue, nil
}

// FindVenueByID retrieves a venue by its ID.
func (r *PostgresRepository) FindVenueByID(ctx context.Context, venueID uuid.UUID) (*domain.Venue, error) {
	var venue domain.Venue
	query := `SELECT id, slug, name, latitude, longitude, created_at FROM venues WHERE id = $1`
	err := r.db.QueryRow(ctx, query, venueID).Scan(
		&venue.ID, &venue.Slug, &venue.Name, &venue.Latitude, &venue.Longitude, &venue.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return &venue, nil
}

// ListPromoSchedulesByVenue returns every schedule configured for a venue,
// ordered oldest first so tie-breaking in the evaluator is deterministic.
func (r *PostgresRepository) ListPromoSchedulesByVenue(ctx context.Context, venueID uuid.UUID) ([]domain.PromoSchedule, error) {
	query := `
		SELECT id, venue_id, active, bonus_kind, bonus_value, weekdays,
		       time_start, time_end, date_start, date_end, created_at
		FROM promo_schedules
		WHERE venue_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, venueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.PromoSchedule
	for rows.Next() {
		var s domain.PromoSchedule
		var weekdays []int16
		if err := rows.Scan(
			&s.ID, &s.VenueID, &s.Active, &s.BonusKind, &s.BonusValue, &weekdays,
			&s.TimeStart, &s.TimeEnd, &s.DateStart, &s.DateEnd, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		for _, wd := range weekdays {
			s.Weekdays = append(s.Weekdays, time.Weekday(wd))
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// FindPresenceEvent returns the presence event for the natural key, if any.
func (r *PostgresRepository) FindPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, eventDate time.Time) (*domain.PresenceEvent, error) {
	var ev domain.PresenceEvent
	query := `
		SELECT id, account_id, venue_id, event_date, kind, geo_verified, created_at
		FROM presence_events
		WHERE account_id = $1 AND venue_id = $2 AND event_date = $3
	`
	err := r.db.QueryRow(ctx, query, accountID, venueID, eventDate).Scan(
		&ev.ID, &ev.AccountID, &ev.VenueID, &ev.EventDate, &ev.Kind, &ev.GeoVerified, &ev.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPresenceNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// FindLatestPresenceEventSince returns the account's most recent presence event
// at the venue created at or after the given instant.
func (r *PostgresRepository) FindLatestPresenceEventSince(ctx context.Context, accountID, venueID uuid.UUID, since time.Time) (*domain.PresenceEvent, error) {
	var ev domain.PresenceEvent
	query := `
		SELECT id, account_id, venue_id, event_date, kind, geo_verified, created_at
		FROM presence_events
		WHERE account_id = $1 AND venue_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, accountID, venueID, since).Scan(
		&ev.ID, &ev.AccountID, &ev.VenueID, &ev.EventDate, &ev.Kind, &ev.GeoVerified, &ev.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPresenceNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// FindNearestPresenceEvent returns the account's presence event at the venue
// whose creation time is closest to the given instant.
func (r *PostgresRepository) FindNearestPresenceEvent(ctx context.Context, accountID, venueID uuid.UUID, around time.Time) (*domain.PresenceEvent, error) {
	var ev domain.PresenceEvent
	query := `
		SELECT id, account_id, venue_id, event_date, kind, geo_verified, created_at
		FROM presence_events
		WHERE account_id = $1 AND venue_id = $2
		ORDER BY ABS(EXTRACT(EPOCH FROM (created_at - $3::timestamptz))) ASC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, accountID, venueID, around).Scan(
		&ev.ID, &ev.AccountID, &ev.VenueID, &ev.EventDate, &ev.Kind, &ev.GeoVerified, &ev.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPresenceNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// ApplyPresenceAward performs the atomic presence-keyed award. The guarded
// transition is the conditional insert of the presence event: when the natural
// key already exists the insert affects zero rows, the transaction commits with
// no balance change, and the outcome reports Applied=false with the current
// balance. Concurrent callers racing on the same key serialize on the unique
// index; exactly one wins.
func (r *PostgresRepository) ApplyPresenceAward(ctx context.Context, params PresenceAwardParams) (*domain.AwardOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin award transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Guarded transition: claim the natural key.
	var presenceID uuid.UUID
	insertPresence := `
		INSERT INTO presence_events (id, account_id, venue_id, event_date, kind, geo_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, venue_id, event_date) DO NOTHING
		RETURNING id
	`
	err = tx.QueryRow(ctx, insertPresence,
		uuid.New(), params.AccountID, params.VenueID, params.EventDate, params.Kind, params.GeoVerified,
	).Scan(&presenceID)
	if err == pgx.ErrNoRows {
		// Key already spent: report the standing balance, mutate nothing.
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, params.AccountID).Scan(&balance); err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &domain.AwardOutcome{Applied: false, Points: 0, NewBalance: balance}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert presence event: %w", err)
	}

	// 2. Append the ledger entry.
	entryID := uuid.New()
	insertEntry := `
		INSERT INTO ledger_entries (id, account_id, venue_id, kind, points, geo_verified, promo_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insertEntry,
		entryID, params.AccountID, params.VenueID, params.Kind, params.Points, params.GeoVerified, params.PromoID,
	); err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// 3. Increment the balance.
	var newBalance int64
	updateBalance := `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`
	if err := tx.QueryRow(ctx, updateBalance, params.Points, params.AccountID).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.AwardOutcome{Applied: true, Points: params.Points, NewBalance: newBalance, EntryID: &entryID}, nil
}

// ApplyReceiptAward performs the atomic receipt-keyed award. The guarded
// transition flips points_awarded from false to true on the verification record;
// a zero-row update means another caller already applied the award and the
// transaction commits with no balance change.
func (r *PostgresRepository) ApplyReceiptAward(ctx context.Context, verificationID, accountID, venueID uuid.UUID, points int, promoID *uuid.UUID) (*domain.AwardOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin award transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Guarded transition on the source record.
	guard := `
		UPDATE receipt_verifications
		SET points_awarded = TRUE, updated_at = NOW()
		WHERE id = $1 AND account_id = $2 AND points_awarded = FALSE
	`
	guardResult, err := tx.Exec(ctx, guard, verificationID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to flip award guard: %w", err)
	}
	if guardResult.RowsAffected() == 0 {
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance); err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &domain.AwardOutcome{Applied: false, Points: 0, NewBalance: balance}, nil
	}

	// 2. Append the ledger entry.
	entryID := uuid.New()
	insertEntry := `
		INSERT INTO ledger_entries (id, account_id, venue_id, kind, points, geo_verified, promo_id)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
	`
	if _, err := tx.Exec(ctx, insertEntry,
		entryID, accountID, venueID, domain.LedgerKindConsumption, points, promoID,
	); err != nil {
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// 3. Increment the balance.
	var newBalance int64
	updateBalance := `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`
	if err := tx.QueryRow(ctx, updateBalance, points, accountID).Scan(&newBalance); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.AwardOutcome{Applied: true, Points: points, NewBalance: newBalance, EntryID: &entryID}, nil
}

// ListLedgerEntries returns an account's activity history, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, account_id, venue_id, kind, points, geo_verified, promo_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.VenueID, &e.Kind, &e.Points, &e.GeoVerified, &e.PromoID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WeeklyLeaderboard sums ledger entries for the week starting at weekStart. It is
// a pure read over the ledger so it cannot drift from account balances.
func (r *PostgresRepository) WeeklyLeaderboard(ctx context.Context, weekStart time.Time, limit int) ([]domain.LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT a.id, a.nickname, COALESCE(SUM(l.points), 0)::bigint AS week_points
		FROM ledger_entries l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.created_at >= $1 AND l.created_at < $1 + INTERVAL '7 days'
		GROUP BY a.id
		HAVING COALESCE(SUM(l.points), 0) > 0
		ORDER BY week_points DESC, a.created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, weekStart, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.LeaderboardRow, 0, limit)
	rank := 0
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.AccountID, &row.Nickname, &row.Points); err != nil {
			return nil, err
		}
		rank++
		row.Rank = rank
		results = append(results, row)
	}
	return results, rows.Err()
}

// CreateReceiptVerification inserts a new pending verification record.
func (r *PostgresRepository) CreateReceiptVerification(ctx context.Context, rv *domain.ReceiptVerification) error {
	query := `
		INSERT INTO receipt_verifications (id, account_id, venue_id, status, fingerprint, storage_key, media_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		rv.ID, rv.AccountID, rv.VenueID, rv.Status, rv.Fingerprint, rv.StorageKey, rv.MediaType,
	).Scan(&rv.CreatedAt, &rv.UpdatedAt)
}

// FindReceiptByFingerprint returns the account's existing verification for this
// content fingerprint, if any. This is the upload dedupe path.
func (r *PostgresRepository) FindReceiptByFingerprint(ctx context.Context, accountID uuid.UUID, fingerprint string) (*domain.ReceiptVerification, error) {
	return r.scanReceipt(ctx, `
		SELECT id, account_id, venue_id, status, fingerprint, storage_key, media_type,
		       extracted_at, decision_note, points_awarded, created_at, updated_at
		FROM receipt_verifications
		WHERE account_id = $1 AND fingerprint = $2
	`, accountID, fingerprint)
}

// FindReceiptVerificationByID returns the verification record by ID.
func (r *PostgresRepository) FindReceiptVerificationByID(ctx context.Context, id uuid.UUID) (*domain.ReceiptVerification, error) {
	return r.scanReceipt(ctx, `
		SELECT id, account_id, venue_id, status, fingerprint, storage_key, media_type,
		       extracted_at, decision_note, points_awarded, created_at, updated_at
		FROM receipt_verifications
		WHERE id = $1
	`, id)
}

func (r *PostgresRepository) scanReceipt(ctx context.Context, query string, args ...interface{}) (*domain.ReceiptVerification, error) {
	var rv domain.ReceiptVerification
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&rv.ID, &rv.AccountID, &rv.VenueID, &rv.Status, &rv.Fingerprint, &rv.StorageKey, &rv.MediaType,
		&rv.ExtractedAt, &rv.DecisionNote, &rv.PointsAwarded, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &rv, nil
}

// TransitionReceiptStatus moves a pending record to the given terminal status.
// The WHERE status='pending' guard makes the transition monotonic: re-deciding an
// already-terminal record affects zero rows and returns false.
func (r *PostgresRepository) TransitionReceiptStatus(ctx context.Context, id uuid.UUID, status string, note *string) (bool, error) {
	query := `
		UPDATE receipt_verifications
		SET status = $1, decision_note = COALESCE($2, decision_note), updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, status, note, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// RecordReceiptReviewNote stores the accumulated rule-failure reasons on a record
// that stays pending for manual review.
func (r *PostgresRepository) RecordReceiptReviewNote(ctx context.Context, id uuid.UUID, note string) error {
	query := `
		UPDATE receipt_verifications
		SET decision_note = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`
	_, err := r.db.Exec(ctx, query, note, id)
	return err
}

// RecordReceiptExtraction stores the timestamp reconstructed from the extracted
// date and time fields.
func (r *PostgresRepository) RecordReceiptExtraction(ctx context.Context, id uuid.UUID, extractedAt time.Time) error {
	query := `
		UPDATE receipt_verifications
		SET extracted_at = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.Exec(ctx, query, extractedAt, id)
	return err
}

// ListStalePendingReceipts returns pending verifications created before the
// cutoff, oldest first, for the background re-drive poller.
func (r *PostgresRepository) ListStalePendingReceipts(ctx context.Context, olderThan time.Time, limit int) ([]domain.ReceiptVerification, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, account_id, venue_id, status, fingerprint, storage_key, media_type,
		       extracted_at, decision_note, points_awarded, created_at, updated_at
		FROM receipt_verifications
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ReceiptVerification
	for rows.Next() {
		var rv domain.ReceiptVerification
		if err := rows.Scan(
			&rv.ID, &rv.AccountID, &rv.VenueID, &rv.Status, &rv.Fingerprint, &rv.StorageKey, &rv.MediaType,
			&rv.ExtractedAt, &rv.DecisionNote, &rv.PointsAwarded, &rv.CreatedAt, &rv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, rv)
	}
	return results, rows.Err()
}

// CreateCompanionCode inserts a freshly minted code. A unique violation on the
// code column surfaces as ErrCodeCollision so the caller can re-mint and retry.
func (r *PostgresRepository) CreateCompanionCode(ctx context.Context, code *domain.CompanionCode) error {
	query := `
		INSERT INTO companion_codes (id, code, venue_id, creator_id, creator_lat, creator_lng, status, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		code.ID, code.Code, code.VenueID, code.CreatorID, code.CreatorLat, code.CreatorLng,
		code.Status, code.IssuedAt, code.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeCollision
		}
		return err
	}
	return nil
}

// FindCompanionCodeByCode looks up a code by its human-typable value.
func (r *PostgresRepository) FindCompanionCodeByCode(ctx context.Context, code string) (*domain.CompanionCode, error) {
	var c domain.CompanionCode
	query := `
		SELECT id, code, venue_id, creator_id, creator_lat, creator_lng, status, issued_at, expires_at
		FROM companion_codes
		WHERE code = $1
	`
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.ID, &c.Code, &c.VenueID, &c.CreatorID, &c.CreatorLat, &c.CreatorLng,
		&c.Status, &c.IssuedAt, &c.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCompanionJoin inserts the join record and, in the same transaction,
// determines whether this was the account's first-ever companion join. The
// unique (code_id, account_id) index enforces one redemption per user per code.
func (r *PostgresRepository) CreateCompanionJoin(ctx context.Context, codeID, accountID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin join transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	joinID := uuid.New()
	insertJoin := `
		INSERT INTO companion_joins (id, code_id, account_id)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.Exec(ctx, insertJoin, joinID, codeID, accountID); err != nil {
		if isUniqueViolation(err) {
			return false, ErrAlreadyJoined
		}
		return false, fmt.Errorf("failed to insert companion join: %w", err)
	}

	var priorJoins int
	countPrior := `SELECT COUNT(*) FROM companion_joins WHERE account_id = $1 AND id <> $2`
	if err := tx.QueryRow(ctx, countPrior, accountID, joinID).Scan(&priorJoins); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return priorJoins == 0, nil
}

// LapseExpiredCompanionCodes marks codes past their TTL as expired. This is
// operator-facing bookkeeping only; correctness comes from the read-time TTL
// check on join.
func (r *PostgresRepository) LapseExpiredCompanionCodes(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE companion_codes SET status = 'expired' WHERE status = 'active' AND expires_at <= $1`
	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CreateVoteIfNotOnCooldown inserts a vote only when the account has no vote at
// the venue newer than the cooldown cutoff. The conditional insert keeps the
// cooldown race-safe without a separate read.
func (r *PostgresRepository) CreateVoteIfNotOnCooldown(ctx context.Context, vote *domain.Vote, cooldownCutoff time.Time) (bool, error) {
	query := `
		INSERT INTO votes (id, account_id, venue_id, rating)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM votes
			WHERE account_id = $2 AND venue_id = $3 AND created_at > $5
		)
	`
	result, err := r.db.Exec(ctx, query, vote.ID, vote.AccountID, vote.VenueID, vote.Rating, cooldownCutoff)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// FindLastVote returns the account's most recent vote at the venue.
func (r *PostgresRepository) FindLastVote(ctx context.Context, accountID, venueID uuid.UUID) (*domain.Vote, error) {
	var v domain.Vote
	query := `
		SELECT id, account_id, venue_id, rating, created_at
		FROM votes
		WHERE account_id = $1 AND venue_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, accountID, venueID).Scan(&v.ID, &v.AccountID, &v.VenueID, &v.Rating, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}
	return &v, nil
}

// VenueRating computes the rating aggregate from vote rows at read time.
func (r *PostgresRepository) VenueRating(ctx context.Context, venueID uuid.UUID) (*domain.VenueRating, error) {
	var rating domain.VenueRating
	rating.VenueID = venueID
	query := `SELECT COALESCE(AVG(rating), 0)::float8, COUNT(*) FROM votes WHERE venue_id = $1`
	if err := r.db.QueryRow(ctx, query, venueID).Scan(&rating.Average, &rating.Count); err != nil {
		return nil, err
	}
	return &rating, nil
}
