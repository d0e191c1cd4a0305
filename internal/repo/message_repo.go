// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/domain"
)

// CreateMessage inserts a new message row. CreatedAt is set to UTC and the
// generated ID is written back into m.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = domain.ReadStatusUnread
	}
	return db.WithContext(ctx).Omit("Commission").Create(m).Error
}

// ListMessages returns messages for a commission ordered deterministically
// (CreatedAt ASC, ID ASC). A limit <= 0 disables the cap.
func ListMessages(ctx context.Context, db *gorm.DB, commissionID uint64, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).
		Where("commission_id = ?", commissionID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID, or ErrNotFound if missing.
func GetMessage(ctx context.Context, db *gorm.DB, id uint64) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMessageRead flips a message to read. The affected-row count tells the
// caller whether the message existed (already-read rows still match).
func MarkMessageRead(ctx context.Context, db *gorm.DB, id uint64) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.ChatMessage{}).
		Where("id = ?", id).
		Update("status", domain.ReadStatusRead)
	return res.RowsAffected, res.Error
}

// CountUnread counts unread messages addressed to userID, optionally scoped
// to one commission when commissionID is non-nil.
func CountUnread(ctx context.Context, db *gorm.DB, userID int64, commissionID *uint64) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.ChatMessage{}).
		Where("receiver_id = ? AND status = ?", userID, domain.ReadStatusUnread)
	if commissionID != nil {
		q = q.Where("commission_id = ?", *commissionID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// LatestStageMessage returns the most recent stage submission within a
// commission, or ErrNotFound when the creator has not submitted anything.
func LatestStageMessage(ctx context.Context, db *gorm.DB, commissionID uint64) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := db.WithContext(ctx).
		Where("commission_id = ? AND type = ?", commissionID, domain.MessageStage).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
