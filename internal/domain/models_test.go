package domain

import "testing"

func TestCommission_PartyOf(t *testing.T) {
	creator := int64(2)
	c := &Commission{CustomerID: 1, CreatorID: &creator}

	if !c.PartyOf(1) || !c.PartyOf(2) {
		t.Fatal("parties not recognized")
	}
	if c.PartyOf(3) {
		t.Fatal("outsider recognized as party")
	}

	unassigned := &Commission{CustomerID: 1}
	if unassigned.PartyOf(2) {
		t.Fatal("nil creator matched a party")
	}
}

func TestCommission_Counterparty(t *testing.T) {
	creator := int64(2)
	c := &Commission{CustomerID: 1, CreatorID: &creator}

	if got, ok := c.Counterparty(1); !ok || got != 2 {
		t.Fatalf("Counterparty(customer) = (%d, %v)", got, ok)
	}
	if got, ok := c.Counterparty(2); !ok || got != 1 {
		t.Fatalf("Counterparty(creator) = (%d, %v)", got, ok)
	}
	if _, ok := c.Counterparty(9); ok {
		t.Fatal("outsider got a counterparty")
	}

	// A public commission without a creator has nobody on the other side yet.
	unassigned := &Commission{CustomerID: 1}
	if _, ok := unassigned.Counterparty(1); ok {
		t.Fatal("unassigned commission returned a counterparty")
	}
}

func TestChatMessage_HasImage(t *testing.T) {
	m := &ChatMessage{}
	if m.HasImage() {
		t.Fatal("empty message reports an image")
	}
	m.Image = []byte{0x89}
	if !m.HasImage() {
		t.Fatal("image payload not detected")
	}
}
