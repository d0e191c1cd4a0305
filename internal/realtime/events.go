// Package realtime pushes state-changing events to clients currently viewing
// a commission. The model is one logical room per commission
// ("commission_{id}"); clients join and leave rooms explicitly over a
// websocket connection.
//
// Delivery is at-most-once and best-effort: the authoritative state lives in
// the database, events are hints. Mutating operations never fail because a
// broadcast could not be delivered.
//
// This file defines the event vocabulary and the Broadcaster contract the
// service layer depends on. The concrete hub lives in hub.go; tests and
// boot-time gaps use a nil Broadcaster, which services treat as "swallow and
// log".
package realtime

import (
	"fmt"

	"github.com/palettehub/commission-backend/internal/domain"
)

// Event names pushed to room members. statusUpdated and paymentUpdate are
// additionally fanned out to every connected client so list views refresh
// without room membership.
const (
	EventNewMessage     = "newMessage"
	EventStageSubmitted = "stageSubmitted"
	EventStageReview    = "stageReview"
	EventStatusUpdated  = "statusUpdated"
	EventPaymentUpdate  = "paymentUpdate"
)

// Room returns the room name for a commission.
func Room(commissionID uint64) string {
	return fmt.Sprintf("commission_%d", commissionID)
}

// Broadcaster fans events out to connected clients. Implementations must be
// safe for concurrent use and must never block the caller on slow clients.
type Broadcaster interface {
	// ToRoom delivers an event to every member of a room.
	ToRoom(room, event string, payload any)
	// ToAll delivers an event to every connected client.
	ToAll(event string, payload any)
}

// StatusUpdatedPayload accompanies EventStatusUpdated.
type StatusUpdatedPayload struct {
	CommissionID uint64        `json:"commission_id"`
	Status       domain.Status `json:"status"`
}

// StageSubmittedPayload accompanies EventStageSubmitted. Message is already
// normalized for display.
type StageSubmittedPayload struct {
	CommissionID uint64              `json:"commission_id"`
	Message      *domain.ChatMessage `json:"message"`
}

// StageReviewPayload accompanies EventStageReview.
type StageReviewPayload struct {
	CommissionID uint64        `json:"commission_id"`
	MessageID    uint64        `json:"message_id"`
	Decision     string        `json:"decision"`
	NextStatus   domain.Status `json:"next_status"`
}

// PaymentUpdatePayload accompanies EventPaymentUpdate, triggered by the
// external payment collaborator's webhook.
type PaymentUpdatePayload struct {
	CommissionID uint64 `json:"commission_id"`
	IsPaid       bool   `json:"is_paid"`
}

// envelope is the wire format for server→client frames.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
