// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Commission
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. The one deliberate exception is
// AcceptCommission, whose single conditional UPDATE is the concurrency guard
// for the accept race and therefore lives with the SQL, not above it.
//
// Error semantics:
//   - When a commission is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Conditional updates report the number of affected rows; deciding what
//     zero rows means (missing, already accepted, self-accept) is left to the
//     service layer.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateCommission inserts a commission row together with its attached
// images in one transaction. Timestamps are set to UTC; the generated ID is
// written back into c.
func CreateCommission(ctx context.Context, db *gorm.DB, c *domain.Commission) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return db.WithContext(ctx).Create(c).Error
}

// GetCommission fetches a commission by ID including its images, or
// ErrNotFound if missing.
func GetCommission(ctx context.Context, db *gorm.DB, id uint64) (*domain.Commission, error) {
	var c domain.Commission
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("slot ASC") }).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPublicCommissions returns open marketplace listings: public
// commissions still waiting for a creator, newest first.
func ListPublicCommissions(ctx context.Context, db *gorm.DB) ([]domain.Commission, error) {
	var out []domain.Commission
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("slot ASC") }).
		Where("type = ? AND status = ? AND creator_id IS NULL", domain.CommissionPublic, domain.StatusOpen).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ListUserCommissions returns every commission the user participates in,
// as customer or as creator, newest first.
func ListUserCommissions(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Commission, error) {
	var out []domain.Commission
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("slot ASC") }).
		Where("customer_id = ? OR creator_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// AcceptCommission atomically assigns callerID as creator of an Open
// commission and moves it to Sketch. The WHERE clause carries the whole
// guard: the row must still be Open (any casing) and the caller must not be
// the customer. Exactly one of several concurrent callers can match the
// still-Open row; everyone else observes zero affected rows.
func AcceptCommission(ctx context.Context, db *gorm.DB, id uint64, callerID int64, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Commission{}).
		Where("id = ? AND LOWER(status) = ? AND customer_id <> ? AND creator_id IS NULL", id, "open", callerID).
		Updates(map[string]any{
			"status":     domain.StatusSketch,
			"type":       domain.CommissionDirect,
			"creator_id": callerID,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// UpdateCommissionStatus sets the status column unconditionally and bumps
// updated_at. The status must already be canonical (domain.ParseStatus).
func UpdateCommissionStatus(ctx context.Context, db *gorm.DB, id uint64, status domain.Status, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Commission{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": now})
	return res.RowsAffected, res.Error
}

// SetCommissionPaid records the payment collaborator's verdict.
func SetCommissionPaid(ctx context.Context, db *gorm.DB, id uint64, paid bool) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Commission{}).
		Where("id = ?", id).
		Update("is_paid", paid)
	return res.RowsAffected, res.Error
}

// UpsertCommissionImage writes an image slot, replacing any previous value
// for the same (commission, slot) pair.
func UpsertCommissionImage(ctx context.Context, db *gorm.DB, commissionID uint64, slot int, kind domain.ImageSourceKind, value []byte) error {
	tx := db.WithContext(ctx)
	res := tx.Model(&domain.CommissionImage{}).
		Where("commission_id = ? AND slot = ?", commissionID, slot).
		Updates(map[string]any{"kind": kind, "value": value})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := tx.Create(&domain.CommissionImage{
		CommissionID: commissionID,
		Slot:         slot,
		Kind:         kind,
		Value:        value,
		CreatedAt:    time.Now().UTC(),
	}).Error
	if err != nil && isUniqueViolation(err) {
		// Lost a concurrent upsert race; the other writer's value stands.
		return nil
	}
	return err
}

// CommissionExists reports whether a commission row exists without loading it.
func CommissionExists(ctx context.Context, db *gorm.DB, id uint64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Commission{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// isUniqueViolation matches GORM and glebarez/sqlite unique-constraint
// failures, which the driver often reports as plain text.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") || strings.Contains(low, "constraint failed: unique")
}
