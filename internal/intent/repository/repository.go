package repository

import (
	"context"
	"time"

	"github.com/FESP32/clientela-pro-sub001/internal/intent/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns the guarded status transitions. Every transition is a single
// conditional update keyed on the current status; a false return means the
// guard lost and some other actor already moved the row.
type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*domain.Intent, error)
	FindByIDScoped(ctx context.Context, tenantID, id snowflake.ID) (*domain.Intent, error)
	MarkConsumed(ctx context.Context, id, customerID snowflake.ID, now time.Time) (bool, error)
	RevertConsumed(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	MarkFinalized(ctx context.Context, tenantID, id snowflake.ID, now time.Time) (bool, error)
	MarkCanceled(ctx context.Context, tenantID, id snowflake.ID, now time.Time) (bool, error)
}

type repo struct {
	db *gorm.DB
}

// Provide builds the intent repository.
func Provide(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Intent, error) {
	var intent domain.Intent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repo) FindByIDScoped(ctx context.Context, tenantID, id snowflake.ID) (*domain.Intent, error) {
	var intent domain.Intent
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// MarkConsumed flips pending to consumed. The assignment and expiry
// preconditions ride in the WHERE clause alongside the status guard, so a
// concurrent consumer, a late arrival on an expired row and a mismatched
// assignee all collapse to zero rows affected.
func (r *repo) MarkConsumed(ctx context.Context, id, customerID snowflake.ID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE intents
		 SET status = ?, consumed_by = ?, consumed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		   AND (customer_id IS NULL OR customer_id = ?)
		   AND (expires_at IS NULL OR expires_at > ?)`,
		domain.StatusConsumed,
		customerID,
		now,
		now,
		id,
		domain.StatusPending,
		customerID,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevertConsumed is the single sanctioned backward transition, compensating a
// failed side-effect write. It is guarded on consumed so it can never clobber
// a state another actor advanced further.
func (r *repo) RevertConsumed(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE intents
		 SET status = ?, consumed_by = NULL, consumed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending,
		now,
		id,
		domain.StatusConsumed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFinalized(ctx context.Context, tenantID, id snowflake.ID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE intents
		 SET status = ?, finalized_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = ?`,
		domain.StatusClaimed,
		now,
		now,
		id,
		tenantID,
		domain.StatusConsumed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkCanceled(ctx context.Context, tenantID, id snowflake.ID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE intents
		 SET status = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND status = ?`,
		domain.StatusCanceled,
		now,
		now,
		id,
		tenantID,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
