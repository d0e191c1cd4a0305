// Package services – PaymentService
//
// The payment gateway is an external collaborator: it reports success
// asynchronously through a signed webhook, and this service's only jobs are
// verifying that signature, flipping the paid flag, and fanning the update
// out to connected clients. No payment state beyond the flag lives here.
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/realtime"
	"github.com/palettehub/commission-backend/internal/repo"
)

// PaymentService applies externally reported payment results.
type PaymentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives paymentUpdate broadcasts; nil means events are swallowed.
	Events realtime.Broadcaster
	// Secret is the shared HMAC key for webhook signatures.
	Secret string
}

// VerifySignature checks the webhook body against its hex-encoded
// HMAC-SHA256 signature using a constant-time compare. An empty configured
// secret rejects everything; an unsigned deployment must not accept
// payment callbacks.
func (s *PaymentService) VerifySignature(body []byte, signature string) bool {
	if s.Secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MarkPaid records the collaborator's verdict for a commission and emits
// paymentUpdate to the commission room and all connected clients.
func (s *PaymentService) MarkPaid(ctx context.Context, commissionID uint64, paid bool) error {
	rows, err := repo.SetCommissionPaid(ctx, s.DB, commissionID, paid)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: commission %d", ErrNotFound, commissionID)
	}

	payload := realtime.PaymentUpdatePayload{CommissionID: commissionID, IsPaid: paid}
	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventPaymentUpdate, payload)
	emitAll(s.Events, realtime.EventPaymentUpdate, payload)
	return nil
}
