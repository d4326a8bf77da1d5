package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salvadordea/eartesana-sub001/internal/models"
)

type AttemptRepo struct {
	db *sql.DB
}

func NewAttemptRepo(conn *sql.DB) *AttemptRepo {
	return &AttemptRepo{db: conn}
}

// Log appends one attempt row. Callers treat a failure here as non-fatal;
// the error return exists so that choice is visible at the call site.
func (r *AttemptRepo) Log(ctx context.Context, a *models.CouponAttempt) error {
	query := `
		INSERT INTO coupon_attempts (code, user_id, success, reason, created_at)
		VALUES ($1,$2,$3,$4,NOW())
	`

	if _, err := r.db.ExecContext(ctx, query, a.Code, a.UserID, a.Success, a.Reason); err != nil {
		return fmt.Errorf("log coupon attempt: %w", err)
	}
	return nil
}
