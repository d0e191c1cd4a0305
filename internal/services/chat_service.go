// Package services – ChatService
//
// This file implements the ChatService, which owns the per-commission
// message store: appending messages, listing them in insertion order,
// read/unread tracking, and the normalization routine applied to every row
// on the way out. Stage submissions and reviews are appended through the
// same path by the CommissionService, which owns their lifecycle rules.
//
// Service-level errors (ErrValidation, ErrNotFound, …) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/domain"
	"github.com/palettehub/commission-backend/internal/imaging"
	"github.com/palettehub/commission-backend/internal/realtime"
	"github.com/palettehub/commission-backend/internal/repo"
)

// DefaultListLimit caps a message listing when the caller does not supply a
// limit of their own.
const DefaultListLimit = 1000

// ChatService provides message-level operations within a commission:
// appending, listing, read tracking, and unread counts.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives newMessage broadcasts; nil means events are swallowed.
	Events realtime.Broadcaster
	// ImageRoots are the directories file-path image values may resolve
	// under when messages are normalized for display.
	ImageRoots []string
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB, events realtime.Broadcaster) *ChatService {
	return &ChatService{DB: db, Events: events}
}

// Send appends a user-authored message (text or image) to a commission's
// conversation and broadcasts it to the commission room.
//
// The sender must be one of the commission's two parties and the opposite
// party must be resolvable (a public commission without a creator has nobody
// to receive the customer's message yet).
func (s *ChatService) Send(ctx context.Context, commissionID uint64, senderID int64, mt domain.MessageType, content string) (*domain.ChatMessage, error) {
	var image []byte
	if mt == domain.MessageImage {
		// Image messages arrive with the payload in content (a data URI or
		// URL); move it into the image column so the source tag is stored.
		image = []byte(strings.TrimSpace(content))
		content = ""
		if len(image) == 0 {
			return nil, fmt.Errorf("%w: image message without payload", ErrValidation)
		}
	}

	m, err := s.append(ctx, commissionID, senderID, mt, content, image, nil)
	if err != nil {
		return nil, err
	}
	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventNewMessage, m)
	return m, nil
}

// append is the shared insertion path for user messages, stage submissions,
// and review verdicts. It resolves the receiver from the commission's
// parties, classifies any image payload once, persists the row, and returns
// it normalized. It does not broadcast; callers own their event type.
func (s *ChatService) append(ctx context.Context, commissionID uint64, senderID int64, mt domain.MessageType, content string, image []byte, reviews *uint64) (*domain.ChatMessage, error) {
	comm, err := repo.GetCommission(ctx, s.DB, commissionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: commission %d", ErrNotFound, commissionID)
		}
		return nil, err
	}

	if !comm.PartyOf(senderID) {
		return nil, fmt.Errorf("%w: sender %d is not a party to commission %d", ErrValidation, senderID, commissionID)
	}
	receiver, ok := comm.Counterparty(senderID)
	if !ok {
		return nil, fmt.Errorf("%w: commission %d has no counterparty to receive the message", ErrValidation, commissionID)
	}

	m := &domain.ChatMessage{
		CommissionID:     commissionID,
		SenderID:         senderID,
		ReceiverID:       receiver,
		Type:             mt,
		Content:          content,
		Status:           domain.ReadStatusUnread,
		ReviewsMessageID: reviews,
	}
	if len(image) > 0 {
		src := imaging.Resolve(image, s.ImageRoots)
		m.Image = src.Value()
		m.ImageKind = src.Kind
	}

	if err := repo.CreateMessage(ctx, s.DB, m); err != nil {
		return nil, err
	}
	s.normalize(m)
	return m, nil
}

// List returns a commission's messages ordered by timestamp then ID, each
// passed through the normalization routine. A limit <= 0 applies
// DefaultListLimit.
func (s *ChatService) List(ctx context.Context, commissionID uint64, limit int) ([]domain.ChatMessage, error) {
	exists, err := repo.CommissionExists(ctx, s.DB, commissionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: commission %d", ErrNotFound, commissionID)
	}

	if limit <= 0 {
		limit = DefaultListLimit
	}
	msgs, err := repo.ListMessages(ctx, s.DB, commissionID, limit)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		s.normalize(&msgs[i])
	}
	return msgs, nil
}

// MarkRead flips a message to read. Missing messages yield ErrNotFound.
func (s *ChatService) MarkRead(ctx context.Context, messageID uint64) error {
	rows, err := repo.MarkMessageRead(ctx, s.DB, messageID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return nil
}

// UnreadCount counts unread messages addressed to userID, optionally scoped
// to a single commission.
func (s *ChatService) UnreadCount(ctx context.Context, userID int64, commissionID *uint64) (int64, error) {
	return repo.CountUnread(ctx, s.DB, userID, commissionID)
}

// normalize repairs a row for display. Image payloads become embeddable
// references via their stored source tag; rows inserted with an image but
// blank (or literal "null") content are coerced to type=image with the
// rendered reference as content. Running normalize on an already-normalized
// message is a no-op.
func (s *ChatService) normalize(m *domain.ChatMessage) {
	if !m.HasImage() {
		return
	}
	url, err := imaging.Embed(m.ImageKind, m.Image, s.ImageRoots)
	if err != nil {
		// Leave the row untouched rather than failing the read; the raw
		// store value is still authoritative.
		logNormalizeFailure(m.ID, err)
		return
	}
	m.ImageURL = url

	// Workflow types (stage, verdicts) keep their type; only plain rows that
	// arrived as text with an image payload are coerced.
	if isBlankContent(m.Content) && (m.Type == domain.MessageText || m.Type == domain.MessageImage) {
		m.Type = domain.MessageImage
		m.Content = url
	}
}

// isBlankContent treats empty, whitespace-only, and the literal "null"
// (a historical serialization artifact) as absent content.
func isBlankContent(c string) bool {
	t := strings.TrimSpace(c)
	return t == "" || strings.EqualFold(t, "null")
}

func logNormalizeFailure(messageID uint64, err error) {
	log.Warn().Err(err).Uint64("message_id", messageID).Msg("message image could not be embedded")
}
