package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/salvadordea/eartesana-sub001/internal/models"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

type RecoveryRepo struct {
	db *sql.DB
}

func NewRecoveryRepo(conn *sql.DB) *RecoveryRepo {
	return &RecoveryRepo{db: conn}
}

const recoveryColumns = `id, cart_id, email, token, coupon_code, abandoned_at,
	       status, emails_sent, last_email_at, expires_at, created_at`

// Create inserts at most one record per cart. The unique cart_id
// constraint is the insert-if-absent guard; a concurrent or repeated
// sweep sees created == false and moves on.
func (r *RecoveryRepo) Create(ctx context.Context, rec *models.RecoveryRecord) (created bool, err error) {
	query := `
		INSERT INTO cart_recoveries
		(cart_id, email, token, coupon_code, abandoned_at, status,
		 emails_sent, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,NOW())
		ON CONFLICT (cart_id) DO NOTHING
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		rec.CartID,
		rec.Email,
		rec.Token,
		rec.CouponCode,
		rec.AbandonedAt,
		models.RecoveryStatusPending,
		rec.ExpiresAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("create recovery record for cart %d: %w", rec.CartID, err)
	}
	rec.Status = models.RecoveryStatusPending
	return true, nil
}

func (r *RecoveryRepo) GetByToken(ctx context.Context, token string) (*models.RecoveryRecord, error) {
	query := `SELECT ` + recoveryColumns + ` FROM cart_recoveries WHERE token = $1`

	rec, err := scanRecovery(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("get recovery by token: %w", err)
	}
	return rec, nil
}

func (r *RecoveryRepo) GetByCartID(ctx context.Context, cartID int64) (*models.RecoveryRecord, error) {
	query := `SELECT ` + recoveryColumns + ` FROM cart_recoveries WHERE cart_id = $1`

	rec, err := scanRecovery(r.db.QueryRowContext(ctx, query, cartID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrRecoveryNotFound
		}
		return nil, fmt.Errorf("get recovery for cart %d: %w", cartID, err)
	}
	return rec, nil
}

// ListSendable returns unexpired records that have not hit the attempt
// cap. Whether each one is actually due is the scheduler's call.
func (r *RecoveryRepo) ListSendable(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.RecoveryRecord, error) {
	query := `
		SELECT ` + recoveryColumns + `
		FROM cart_recoveries
		WHERE status IN ($1, $2)
		  AND emails_sent < $3
		  AND expires_at > $4
		ORDER BY abandoned_at
		LIMIT $5
	`

	rows, err := r.db.QueryContext(ctx, query,
		models.RecoveryStatusPending,
		models.RecoveryStatusEmailSent,
		maxAttempts,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sendable recoveries: %w", err)
	}
	defer rows.Close()

	var recs []models.RecoveryRecord
	for rows.Next() {
		rec, err := scanRecovery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recovery: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// MarkEmailSent is a compare-and-increment: it only advances when the
// stored count still matches what the caller read, so two sweeps racing
// on one record produce one send-count advance.
func (r *RecoveryRepo) MarkEmailSent(ctx context.Context, id int64, expectedSent int, at time.Time) (bool, error) {
	query := `
		UPDATE cart_recoveries
		SET emails_sent = emails_sent + 1,
		    last_email_at = $3,
		    status = $4
		WHERE id = $1 AND emails_sent = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, expectedSent, at, models.RecoveryStatusEmailSent)
	if err != nil {
		return false, fmt.Errorf("mark email sent for recovery %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark email sent rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkRecovered succeeds once; a second visit on the same link reports
// false and mutates nothing.
func (r *RecoveryRepo) MarkRecovered(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE cart_recoveries
		SET status = $2
		WHERE id = $1 AND status IN ($3, $4)
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		models.RecoveryStatusRecovered,
		models.RecoveryStatusPending,
		models.RecoveryStatusEmailSent,
	)
	if err != nil {
		return false, fmt.Errorf("mark recovery %d recovered: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark recovered rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *RecoveryRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE cart_recoveries
		SET status = $1
		WHERE expires_at <= $2 AND status IN ($3, $4)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.RecoveryStatusExpired,
		now,
		models.RecoveryStatusPending,
		models.RecoveryStatusEmailSent,
	)
	if err != nil {
		return 0, fmt.Errorf("expire recoveries: %w", err)
	}
	return result.RowsAffected()
}

func (r *RecoveryRepo) PruneExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM cart_recoveries WHERE status = $1 AND expires_at < $2`

	result, err := r.db.ExecContext(ctx, query, models.RecoveryStatusExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune recoveries: %w", err)
	}
	return result.RowsAffected()
}

func scanRecovery(row rowScanner) (*models.RecoveryRecord, error) {
	var rec models.RecoveryRecord
	err := row.Scan(
		&rec.ID,
		&rec.CartID,
		&rec.Email,
		&rec.Token,
		&rec.CouponCode,
		&rec.AbandonedAt,
		&rec.Status,
		&rec.EmailsSent,
		&rec.LastEmailAt,
		&rec.ExpiresAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
