// Package domain defines the persistence models for commissions, their
// attached images, and chat messages. These types are mapped with GORM and
// form the core data layer of the commission marketplace backend.
package domain

import (
	"time"
)

// MaxCommissionImages caps the number of reference images a commission can
// carry (slots 1..5). Slot 0 is reserved for the finished result image.
const MaxCommissionImages = 5

// ResultImageSlot is the slot number of the final deliverable image.
const ResultImageSlot = 0

// Commission represents a piece of commissioned work connecting a customer
// and (once assigned) a creator. A commission is either "public" (any
// creator may accept it) or "direct" (targeted at one named creator).
//
// Fields:
//   - ID: auto-increment primary key; message and room identifiers derive from it.
//   - CustomerID: who ordered the work; set at creation, immutable.
//   - CreatorID: who fulfils it; nil until a public commission is accepted.
//   - Type: "public" or "direct" (see CommissionType).
//   - Status: lifecycle state, canonical casing (see Status).
//   - IsPaid: flipped by the external payment collaborator, never by this API.
//   - Images: attached reference images plus the optional result image.
//   - CreatedAt / UpdatedAt: UpdatedAt moves on every status change.
//
// Invariant: CustomerID != CreatorID for every persisted row. Creation and
// acceptance both refuse self-commissioning; status changes go through the
// service-layer state machine rather than ad-hoc column writes.
type Commission struct {
	ID          uint64  `json:"id"          gorm:"primaryKey;autoIncrement"`
	Title       string  `json:"title"       gorm:"type:varchar(255);not null"`
	Description string  `json:"description" gorm:"type:text;not null"`
	Category    string  `json:"category"    gorm:"type:varchar(64)"`
	Style       string  `json:"style"       gorm:"type:varchar(64)"`
	Size        string  `json:"size"        gorm:"type:varchar(64)"`
	Format      string  `json:"format"      gorm:"type:varchar(32)"`
	Price       float64 `json:"price"`

	Type       CommissionType `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('public','direct')"`
	CustomerID int64          `json:"customer_id" gorm:"not null;index:idx_customer_commissions"`
	CreatorID  *int64         `json:"creator_id"  gorm:"index:idx_creator_commissions"`

	Status Status `json:"status"  gorm:"type:varchar(16);not null;default:'Open'"`
	IsPaid bool   `json:"is_paid" gorm:"not null;default:false"`

	// Images holds reference images (slots 1..5) and the result image
	// (slot 0), each stored with the source kind it was ingested as.
	Images []CommissionImage `json:"images,omitempty" gorm:"foreignKey:CommissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Commission.
func (Commission) TableName() string { return "commissions" }

// PartyOf reports whether userID is one of the commission's two parties.
func (c *Commission) PartyOf(userID int64) bool {
	if c.CustomerID == userID {
		return true
	}
	return c.CreatorID != nil && *c.CreatorID == userID
}

// Counterparty returns the opposite party for userID, or false when the
// opposite side is not yet assigned (public commission without a creator)
// or userID is not a party at all.
func (c *Commission) Counterparty(userID int64) (int64, bool) {
	switch {
	case c.CustomerID == userID:
		if c.CreatorID == nil {
			return 0, false
		}
		return *c.CreatorID, true
	case c.CreatorID != nil && *c.CreatorID == userID:
		return c.CustomerID, true
	default:
		return 0, false
	}
}

// CommissionImage is one stored image belonging to a commission. The payload
// keeps the representation it was ingested as (raw bytes, data URI, file
// path, or remote URL) together with its kind tag, so reads never have to
// re-guess the format.
//
// Slot semantics: 0 is the result image, 1..5 are reference images supplied
// at creation.
type CommissionImage struct {
	ID           uint64          `json:"-"    gorm:"primaryKey;autoIncrement"`
	CommissionID uint64          `json:"-"    gorm:"not null;uniqueIndex:ux_commission_slot,priority:1"`
	Slot         int             `json:"slot" gorm:"not null;uniqueIndex:ux_commission_slot,priority:2;check:slot BETWEEN 0 AND 5"`
	Kind         ImageSourceKind `json:"kind" gorm:"type:varchar(16);not null"`
	Value        []byte          `json:"-"    gorm:"type:blob"`

	// URL is the embeddable representation (data URI or pass-through URL),
	// filled by the imaging layer on read. Never persisted.
	URL string `json:"url,omitempty" gorm:"-"`

	CreatedAt time.Time `json:"-"`
}

// TableName returns the database table name for CommissionImage.
func (CommissionImage) TableName() string { return "commission_images" }

// ChatMessage is a single message within a commission's conversation.
// Messages are append-only: after creation only Status may change
// (unread → read); rows are never deleted.
//
// Ordering within a commission is by CreatedAt then ID; the auto-increment
// ID doubles as the total order for same-timestamp inserts.
//
// Review messages ("stage-approve"/"stage-reject") reference the stage
// message they verdict via ReviewsMessageID. The referenced ID is also
// mirrored into Content as a decimal string for clients that predate the
// typed field.
type ChatMessage struct {
	ID           uint64 `json:"id"            gorm:"primaryKey;autoIncrement"`
	CommissionID uint64 `json:"commission_id" gorm:"not null;index:idx_commission_msgs,priority:1"`
	SenderID     int64  `json:"sender_id"     gorm:"not null"`
	ReceiverID   int64  `json:"receiver_id"   gorm:"not null;index:idx_receiver_unread,priority:1"`

	Type    MessageType `json:"type"    gorm:"type:varchar(16);not null;check:type IN ('text','image','stage','stage-approve','stage-reject')"`
	Content string      `json:"content" gorm:"type:text"`

	// Image holds an optional binary payload with its source kind. The raw
	// bytes stay out of JSON; reads surface them via ImageURL.
	Image     []byte          `json:"-"                   gorm:"type:blob"`
	ImageKind ImageSourceKind `json:"-"                   gorm:"type:varchar(16)"`
	ImageURL  string          `json:"image_url,omitempty" gorm:"-"`

	Status ReadStatus `json:"status" gorm:"type:varchar(8);not null;default:'unread';index:idx_receiver_unread,priority:2"`

	ReviewsMessageID *uint64 `json:"reviews_message_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"timestamp" gorm:"index:idx_commission_msgs,priority:2"`

	// Commission is the parent conversation. Messages are cascade-deleted
	// if their commission is removed.
	Commission Commission `json:"-" gorm:"foreignKey:CommissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "messages" }

// HasImage reports whether the message carries an image payload.
func (m *ChatMessage) HasImage() bool { return len(m.Image) > 0 }
