// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the outcome of a previously processed
// commission-creating request, keyed by (user_id, key). It enables safe
// retries of POST /commissions: a replayed request returns the originally
// created commission instead of inserting a duplicate listing.
type Idempotency struct {
	ID           string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID       int64     `gorm:"not null;uniqueIndex:ux_user_key,priority:1"`
	Key          string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	CommissionID uint64    `gorm:"not null"`
	Status       int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
