// Package services – CommissionService
//
// This file implements the commission lifecycle state machine:
//
//	Open → Sketch → Edits → Completed, with Cancelled reachable from any
//	non-terminal state.
//
// The three mutation paths have different guards. Accept is the only
// concurrency-critical operation and is enforced with a single conditional
// UPDATE at the storage layer (exactly one concurrent acceptor wins).
// Review advances the status monotonically on approve and never on reject.
// SetStatus is a deliberate manual override with no transition guard.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/domain"
	"github.com/palettehub/commission-backend/internal/imaging"
	"github.com/palettehub/commission-backend/internal/realtime"
	"github.com/palettehub/commission-backend/internal/repo"
)

// DefaultMaxImageBytes caps decoded stage images at 10 MiB.
const DefaultMaxImageBytes = 10 << 20

// Review decisions accepted by Review.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// CreateCommissionInput carries the caller-supplied fields for Create.
type CreateCommissionInput struct {
	Title       string
	Description string
	Category    string
	Style       string
	Size        string
	Format      string
	Price       float64

	// CreatorID targets a specific creator for a direct commission. Zero or
	// negative means "public listing".
	CreatorID int64

	// Images are up to five raw reference image values (binary, data URI,
	// path, or URL; classified at ingestion).
	Images [][]byte
}

// ReviewResult reports the outcome of a Review call.
type ReviewResult struct {
	Decision   string              `json:"decision"`
	MessageID  uint64              `json:"message_id"`
	NextStatus domain.Status       `json:"next_status"`
	Message    *domain.ChatMessage `json:"message"`
}

// DownloadAsset is one finished-work file ready for delivery.
type DownloadAsset struct {
	Name  string
	MIME  string
	Bytes []byte
}

// CommissionService coordinates lifecycle transitions and enforces the
// role/state guards around them. Chat messages generated by the workflow
// (stage submissions, review verdicts) are appended through the ChatService.
type CommissionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives lifecycle broadcasts; nil means events are swallowed.
	Events realtime.Broadcaster
	// Chat appends stage and review messages.
	Chat *ChatService
	// ImageRoots are the directories file-path image values resolve under.
	ImageRoots []string
	// MaxImageBytes caps decoded stage images; <= 0 applies the default.
	MaxImageBytes int64
}

// NewCommissionService constructs a CommissionService with default limits.
func NewCommissionService(db *gorm.DB, events realtime.Broadcaster, chat *ChatService) *CommissionService {
	return &CommissionService{
		DB:            db,
		Events:        events,
		Chat:          chat,
		MaxImageBytes: DefaultMaxImageBytes,
	}
}

// Create persists a new commission in the Open state.
//
// A missing target creator makes the commission public; naming one makes it
// direct. Self-commissioning is rejected. Up to five reference images are
// classified once and stored with their source tags.
func (s *CommissionService) Create(ctx context.Context, customerID int64, in CreateCommissionInput) (*domain.Commission, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description required", ErrValidation)
	}
	if len(in.Images) > domain.MaxCommissionImages {
		return nil, fmt.Errorf("%w: at most %d images", ErrValidation, domain.MaxCommissionImages)
	}

	c := &domain.Commission{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Style:       in.Style,
		Size:        in.Size,
		Format:      in.Format,
		Price:       in.Price,
		CustomerID:  customerID,
		Status:      domain.StatusOpen,
		Type:        domain.CommissionPublic,
	}
	if in.CreatorID > 0 {
		if in.CreatorID == customerID {
			return nil, fmt.Errorf("%w: cannot commission yourself", ErrValidation)
		}
		creator := in.CreatorID
		c.Type = domain.CommissionDirect
		c.CreatorID = &creator
	}

	for i, raw := range in.Images {
		if len(raw) == 0 {
			continue
		}
		src := imaging.Resolve(raw, s.ImageRoots)
		c.Images = append(c.Images, domain.CommissionImage{
			Slot:  i + 1,
			Kind:  src.Kind,
			Value: src.Value(),
		})
	}

	if err := repo.CreateCommission(ctx, s.DB, c); err != nil {
		return nil, err
	}
	s.embedImages(c)
	return c, nil
}

// Accept assigns callerID as the creator of an Open commission and moves it
// to Sketch via one conditional UPDATE. Zero affected rows collapses three
// indistinguishable causes (missing row, already accepted, self-accept)
// into a single ErrConflict.
func (s *CommissionService) Accept(ctx context.Context, commissionID uint64, callerID int64) error {
	rows, err := repo.AcceptCommission(ctx, s.DB, commissionID, callerID, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: commission not found, already accepted, or self-accept", ErrConflict)
	}

	payload := realtime.StatusUpdatedPayload{CommissionID: commissionID, Status: domain.StatusSketch}
	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventStatusUpdated, payload)
	emitAll(s.Events, realtime.EventStatusUpdated, payload)
	return nil
}

// SubmitStage records a creator's work-in-progress image as a stage message
// addressed to the customer.
//
// Only the assigned creator may submit; completed commissions accept no
// further submissions. The payload must be a well-formed data URI and its
// decoded size must stay under the configured cap.
func (s *CommissionService) SubmitStage(ctx context.Context, commissionID uint64, callerID int64, imageDataURI string) (*domain.ChatMessage, error) {
	comm, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if comm.CreatorID == nil || *comm.CreatorID != callerID {
		return nil, fmt.Errorf("%w: only the assigned creator may submit stages", ErrForbidden)
	}
	if comm.Status == domain.StatusCompleted {
		return nil, fmt.Errorf("%w: commission is completed, no further submissions", ErrConflict)
	}

	raw, _, err := imaging.DecodeDataURI(strings.TrimSpace(imageDataURI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if max := s.maxImageBytes(); int64(len(raw)) > max {
		return nil, fmt.Errorf("%w: stage image exceeds %d bytes", ErrPayloadTooLarge, max)
	}

	m, err := s.Chat.append(ctx, commissionID, callerID, domain.MessageStage, "", []byte(strings.TrimSpace(imageDataURI)), nil)
	if err != nil {
		return nil, err
	}

	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventStageSubmitted,
		realtime.StageSubmittedPayload{CommissionID: commissionID, Message: m})
	return m, nil
}

// Review records the customer's verdict on a stage submission.
//
// Without an explicit target the most recent stage message is reviewed. On
// approve the status advances Sketch→Edits or Edits→Completed; any other
// current status is left unchanged (a tolerated no-op). Reject never touches
// the status. When the final approve completes the commission, the approved
// stage image becomes the result image.
func (s *CommissionService) Review(ctx context.Context, commissionID uint64, callerID int64, decision string, messageID *uint64) (*ReviewResult, error) {
	comm, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if comm.CustomerID != callerID {
		return nil, fmt.Errorf("%w: only the customer may review stages", ErrForbidden)
	}

	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: decision must be %q or %q", ErrValidation, DecisionApprove, DecisionReject)
	}

	target, err := s.resolveStage(ctx, commissionID, messageID)
	if err != nil {
		return nil, err
	}

	verdictType := domain.MessageStageReject
	if decision == DecisionApprove {
		verdictType = domain.MessageStageApprove
	}

	// The stage id rides in content as well as the typed reference field.
	verdict, err := s.Chat.append(ctx, commissionID, callerID, verdictType,
		strconv.FormatUint(target.ID, 10), nil, &target.ID)
	if err != nil {
		return nil, err
	}

	next := comm.Status
	if decision == DecisionApprove {
		if advanced, changed := comm.Status.NextOnApprove(); changed {
			if _, err := repo.UpdateCommissionStatus(ctx, s.DB, commissionID, advanced, time.Now().UTC()); err != nil {
				return nil, err
			}
			next = advanced

			if advanced == domain.StatusCompleted {
				// The approved final stage becomes the deliverable.
				if err := repo.UpsertCommissionImage(ctx, s.DB, commissionID, domain.ResultImageSlot, target.ImageKind, target.Image); err != nil {
					return nil, err
				}
			}

			payload := realtime.StatusUpdatedPayload{CommissionID: commissionID, Status: advanced}
			emitAll(s.Events, realtime.EventStatusUpdated, payload)
		}
	}

	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventStageReview,
		realtime.StageReviewPayload{
			CommissionID: commissionID,
			MessageID:    target.ID,
			Decision:     decision,
			NextStatus:   next,
		})

	return &ReviewResult{
		Decision:   decision,
		MessageID:  target.ID,
		NextStatus: next,
		Message:    verdict,
	}, nil
}

// SetStatus overwrites the lifecycle status without a transition guard.
// This is the manual override path, distinct from the guarded Accept and
// Review transitions; the input is canonicalized case-insensitively.
func (s *CommissionService) SetStatus(ctx context.Context, commissionID uint64, status string) (domain.Status, error) {
	canon, err := domain.ParseStatus(status)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rows, err := repo.UpdateCommissionStatus(ctx, s.DB, commissionID, canon, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if rows == 0 {
		return "", fmt.Errorf("%w: commission %d", ErrNotFound, commissionID)
	}

	payload := realtime.StatusUpdatedPayload{CommissionID: commissionID, Status: canon}
	emitRoom(s.Events, realtime.Room(commissionID), realtime.EventStatusUpdated, payload)
	emitAll(s.Events, realtime.EventStatusUpdated, payload)
	return canon, nil
}

// Download assembles the finished-work assets for a commission.
//
// Only the two parties may download. The customer must have paid; the
// creator may always retrieve their own work. The result image is preferred;
// without one, reference slots 2..5 serve as the fallback set. Remote-URL
// values cannot be packaged and are skipped.
func (s *CommissionService) Download(ctx context.Context, commissionID uint64, callerID int64) ([]DownloadAsset, error) {
	comm, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if !comm.PartyOf(callerID) {
		return nil, fmt.Errorf("%w: only commission parties may download", ErrForbidden)
	}
	if comm.CustomerID == callerID && !comm.IsPaid {
		return nil, fmt.Errorf("%w: commission %d is unpaid", ErrPaymentRequired, commissionID)
	}

	var assets []DownloadAsset
	appendAsset := func(img *domain.CommissionImage, name string) {
		raw, mime, err := s.assetBytes(img)
		if err != nil || len(raw) == 0 {
			return
		}
		assets = append(assets, DownloadAsset{
			Name:  fmt.Sprintf("%s.%s", name, imaging.ExtForMIME(mime)),
			MIME:  mime,
			Bytes: raw,
		})
	}

	if result := imageInSlot(comm, domain.ResultImageSlot); result != nil {
		appendAsset(result, fmt.Sprintf("commission-%d-result", commissionID))
	} else {
		for slot := 2; slot <= domain.MaxCommissionImages; slot++ {
			if img := imageInSlot(comm, slot); img != nil {
				appendAsset(img, fmt.Sprintf("commission-%d-image-%d", commissionID, slot))
			}
		}
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no finished assets for commission %d", ErrNotFound, commissionID)
	}
	return assets, nil
}

// Get returns a commission with embeddable image URLs filled in.
func (s *CommissionService) Get(ctx context.Context, commissionID uint64) (*domain.Commission, error) {
	comm, err := s.load(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	s.embedImages(comm)
	return comm, nil
}

// ListPublic returns the open marketplace listings.
func (s *CommissionService) ListPublic(ctx context.Context) ([]domain.Commission, error) {
	out, err := repo.ListPublicCommissions(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	for i := range out {
		s.embedImages(&out[i])
	}
	return out, nil
}

// ListMine returns every commission the caller participates in.
func (s *CommissionService) ListMine(ctx context.Context, userID int64) ([]domain.Commission, error) {
	out, err := repo.ListUserCommissions(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		s.embedImages(&out[i])
	}
	return out, nil
}

// load wraps repo.GetCommission, mapping the missing-row case to ErrNotFound.
func (s *CommissionService) load(ctx context.Context, id uint64) (*domain.Commission, error) {
	comm, err := repo.GetCommission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: commission %d", ErrNotFound, id)
		}
		return nil, err
	}
	return comm, nil
}

// embedImages fills the transient URL field of each attached image.
// Embedding failures leave the slot blank rather than failing the read.
func (s *CommissionService) embedImages(c *domain.Commission) {
	for i := range c.Images {
		img := &c.Images[i]
		if url, err := imaging.Embed(img.Kind, img.Value, s.ImageRoots); err == nil {
			img.URL = url
		}
	}
}

// assetBytes extracts raw downloadable bytes for a stored image.
func (s *CommissionService) assetBytes(img *domain.CommissionImage) ([]byte, string, error) {
	switch img.Kind {
	case domain.ImageBinary:
		return img.Value, imaging.MIMEForExt(imaging.SniffExt(img.Value)), nil
	case domain.ImageDataURI:
		return imaging.DecodeDataURI(string(img.Value))
	case domain.ImageFilePath:
		embedded, err := imaging.Embed(img.Kind, img.Value, s.ImageRoots)
		if err != nil {
			return nil, "", err
		}
		return imaging.DecodeDataURI(embedded)
	default:
		// Remote URLs are hints for browsers, not packageable payloads.
		return nil, "", fmt.Errorf("image kind %q cannot be packaged", img.Kind)
	}
}

// resolveStage finds the stage message a review targets: the explicit
// messageID when given (it must be a stage message of this commission), or
// the most recent stage submission otherwise.
func (s *CommissionService) resolveStage(ctx context.Context, commissionID uint64, messageID *uint64) (*domain.ChatMessage, error) {
	if messageID != nil {
		m, err := repo.GetMessage(ctx, s.DB, *messageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("%w: message %d", ErrNotFound, *messageID)
			}
			return nil, err
		}
		if m.CommissionID != commissionID || m.Type != domain.MessageStage {
			return nil, fmt.Errorf("%w: message %d is not a stage submission of commission %d", ErrValidation, *messageID, commissionID)
		}
		return m, nil
	}

	m, err := repo.LatestStageMessage(ctx, s.DB, commissionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: commission %d has no stage submissions", ErrNotFound, commissionID)
		}
		return nil, err
	}
	return m, nil
}

func (s *CommissionService) maxImageBytes() int64 {
	if s.MaxImageBytes > 0 {
		return s.MaxImageBytes
	}
	return DefaultMaxImageBytes
}

// imageInSlot returns the stored image occupying a slot, or nil.
func imageInSlot(c *domain.Commission, slot int) *domain.CommissionImage {
	for i := range c.Images {
		if c.Images[i].Slot == slot {
			return &c.Images[i]
		}
	}
	return nil
}
