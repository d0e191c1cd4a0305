package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/palettehub/commission-backend/internal/domain"
)

func allTables() []any {
	return []any{&domain.Commission{}, &domain.CommissionImage{}, &domain.ChatMessage{}}
}

func TestCreateMessage_DefaultsAndOrdering(t *testing.T) {
	db := newRepoDB(t, allTables()...)
	ctx := context.Background()
	c := seedCommission(t, db, 1, domain.StatusSketch)

	first := &domain.ChatMessage{
		CommissionID: c.ID, SenderID: 1, ReceiverID: 2,
		Type: domain.MessageText, Content: "hello",
	}
	if err := CreateMessage(ctx, db, first); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if first.ID == 0 || first.Status != domain.ReadStatusUnread || first.CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", first)
	}

	// Same-timestamp inserts still list in insertion order via the ID tiebreak.
	ts := first.CreatedAt
	second := &domain.ChatMessage{
		CommissionID: c.ID, SenderID: 2, ReceiverID: 1,
		Type: domain.MessageText, Content: "hi", CreatedAt: ts,
	}
	if err := CreateMessage(ctx, db, second); err != nil {
		t.Fatalf("CreateMessage second: %v", err)
	}

	got, err := ListMessages(ctx, db, c.ID, 100)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("order wrong: %+v", got)
	}
}

func TestListMessages_Limit(t *testing.T) {
	db := newRepoDB(t, allTables()...)
	ctx := context.Background()
	c := seedCommission(t, db, 1, domain.StatusSketch)

	for i := 0; i < 5; i++ {
		m := &domain.ChatMessage{
			CommissionID: c.ID, SenderID: 1, ReceiverID: 2,
			Type: domain.MessageText, Content: "m",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	got, err := ListMessages(ctx, db, c.ID, 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("limited list = (%d, %v), want 3 rows", len(got), err)
	}
}

func TestMarkMessageRead(t *testing.T) {
	db := newRepoDB(t, allTables()...)
	ctx := context.Background()
	c := seedCommission(t, db, 1, domain.StatusSketch)

	m := &domain.ChatMessage{
		CommissionID: c.ID, SenderID: 1, ReceiverID: 2,
		Type: domain.MessageText, Content: "x",
	}
	if err := CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	rows, err := MarkMessageRead(ctx, db, m.ID)
	if err != nil || rows != 1 {
		t.Fatalf("MarkMessageRead = (%d, %v)", rows, err)
	}
	got, err := GetMessage(ctx, db, m.ID)
	if err != nil || got.Status != domain.ReadStatusRead {
		t.Fatalf("status after mark = (%v, %v)", got, err)
	}

	if rows, err := MarkMessageRead(ctx, db, 999); err != nil || rows != 0 {
		t.Fatalf("mark missing = (%d, %v), want (0, nil)", rows, err)
	}
}

func TestCountUnread_GlobalAndScoped(t *testing.T) {
	db := newRepoDB(t, allTables()...)
	ctx := context.Background()
	c1 := seedCommission(t, db, 1, domain.StatusSketch)
	c2 := seedCommission(t, db, 1, domain.StatusSketch)

	add := func(commissionID uint64, receiver int64, read bool) {
		m := &domain.ChatMessage{
			CommissionID: commissionID, SenderID: 1, ReceiverID: receiver,
			Type: domain.MessageText, Content: "m",
		}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		if read {
			if _, err := MarkMessageRead(ctx, db, m.ID); err != nil {
				t.Fatalf("MarkMessageRead: %v", err)
			}
		}
	}

	add(c1.ID, 2, false)
	add(c1.ID, 2, true)
	add(c2.ID, 2, false)
	add(c1.ID, 3, false) // someone else's unread

	n, err := CountUnread(ctx, db, 2, nil)
	if err != nil || n != 2 {
		t.Fatalf("global unread = (%d, %v), want 2", n, err)
	}

	n, err = CountUnread(ctx, db, 2, &c1.ID)
	if err != nil || n != 1 {
		t.Fatalf("scoped unread = (%d, %v), want 1", n, err)
	}
}

func TestLatestStageMessage(t *testing.T) {
	db := newRepoDB(t, allTables()...)
	ctx := context.Background()
	c := seedCommission(t, db, 1, domain.StatusSketch)

	if _, err := LatestStageMessage(ctx, db, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no stages error = %v, want ErrNotFound", err)
	}

	base := time.Now().UTC()
	var last *domain.ChatMessage
	for i := 0; i < 3; i++ {
		m := &domain.ChatMessage{
			CommissionID: c.ID, SenderID: 2, ReceiverID: 1,
			Type: domain.MessageStage, Image: []byte{1}, ImageKind: domain.ImageBinary,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		last = m
	}
	// Text chatter after the stage must not win.
	chat := &domain.ChatMessage{
		CommissionID: c.ID, SenderID: 1, ReceiverID: 2,
		Type: domain.MessageText, Content: "nice",
		CreatedAt: base.Add(time.Minute),
	}
	if err := CreateMessage(ctx, db, chat); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	got, err := LatestStageMessage(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("LatestStageMessage: %v", err)
	}
	if got.ID != last.ID {
		t.Fatalf("latest = %d, want %d", got.ID, last.ID)
	}
}
