// Commission HTTP handlers.
//
// This file exposes REST endpoints for commission resources:
//   - POST  /commissions              (create, idempotent via Idempotency-Key)
//   - GET   /commissions/public      (browse open public listings)
//   - GET   /commissions/mine        (list caller's commissions, ETag support)
//   - GET   /commissions/{id}        (detail with embedded images)
//   - PATCH /commissions/{id}/accept (creator claims an open commission)
//   - PATCH /commissions/{id}/status (manual status override)
//   - GET   /commissions/{id}/download (deliver finished work, payment-gated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/palettehub/commission-backend/internal/domain"
	"github.com/palettehub/commission-backend/internal/http/middleware"
	"github.com/palettehub/commission-backend/internal/repo"
	"github.com/palettehub/commission-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// CommissionService defines commission lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CommissionService interface {
	// Create persists a new commission in the Open state for customerID.
	Create(ctx context.Context, customerID int64, in services.CreateCommissionInput) (*domain.Commission, error)
	// Accept atomically claims an open commission for callerID.
	Accept(ctx context.Context, commissionID uint64, callerID int64) error
	// SubmitStage records a work-in-progress image from the creator.
	SubmitStage(ctx context.Context, commissionID uint64, callerID int64, imageDataURI string) (*domain.ChatMessage, error)
	// Review records the customer's verdict on a stage submission.
	Review(ctx context.Context, commissionID uint64, callerID int64, decision string, messageID *uint64) (*services.ReviewResult, error)
	// SetStatus force-sets the commission status (manual override).
	SetStatus(ctx context.Context, commissionID uint64, status string) (domain.Status, error)
	// Download returns the deliverable files for a paid commission.
	Download(ctx context.Context, commissionID uint64, callerID int64) ([]services.DownloadAsset, error)
	// Get loads a single commission with its images embedded.
	Get(ctx context.Context, commissionID uint64) (*domain.Commission, error)
	// ListPublic returns open public listings, newest first.
	ListPublic(ctx context.Context) ([]domain.Commission, error)
	// ListMine returns commissions where userID is customer or creator.
	ListMine(ctx context.Context, userID int64) ([]domain.Commission, error)
}

// ChatService defines chat operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// Send appends a text or image message to a commission's conversation.
	Send(ctx context.Context, commissionID uint64, senderID int64, mt domain.MessageType, content string) (*domain.ChatMessage, error)
	// List returns a commission's messages in chronological order.
	List(ctx context.Context, commissionID uint64, limit int) ([]domain.ChatMessage, error)
	// MarkRead flips a message's read status.
	MarkRead(ctx context.Context, messageID uint64) error
	// UnreadCount counts unread messages addressed to userID.
	UnreadCount(ctx context.Context, userID int64, commissionID *uint64) (int64, error)
}

// PaymentService defines payment confirmation operations consumed by the
// webhook handler.
type PaymentService interface {
	// VerifySignature checks the HMAC signature over the raw webhook body.
	VerifySignature(body []byte, signature string) bool
	// MarkPaid records the payment outcome for a commission.
	MarkPaid(ctx context.Context, commissionID uint64, paid bool) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for commissions, chat, and payments.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	comSvc  CommissionService
	chatSvc ChatService
	paySvc  PaymentService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(comSvc CommissionService, chatSvc ChatService, paySvc PaymentService) *Handlers {
	return &Handlers{comSvc: comSvc, chatSvc: chatSvc, paySvc: paySvc}
}

// requireUser returns the identity established by the middleware, answering
// 401 when it is missing.
func requireUser(c *gin.Context) (int64, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required")
	}
	return id, ok
}

// pathID parses the {id} path parameter as a positive integer.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

//
// DTOs
//

// CreateCommissionRequest is the JSON payload for creating a commission.
type CreateCommissionRequest struct {
	// Title names the commission (required).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Fantasy portrait"`
	// Description details what the customer wants (required).
	Description string `json:"description" binding:"required,min=1" example:"Half-body character portrait, painterly style"`
	Category    string `json:"category" example:"illustration"`
	Style       string `json:"style" example:"painterly"`
	Size        string `json:"size" example:"2048x2048"`
	Format      string `json:"format" example:"png"`
	Price       float64 `json:"price" example:"120"`
	// CreatorID targets a specific creator; omit for a public listing.
	CreatorID int64 `json:"creator_id,omitempty" example:"42"`
	// Images holds up to five reference images as data URIs, URLs, file
	// paths, or raw base64.
	Images []string `json:"images,omitempty"`
}

// CommissionResponse is the JSON envelope for a single commission.
type CommissionResponse struct {
	Commission *domain.Commission `json:"commission"`
}

// ListCommissionsResponse contains a list of commissions.
type ListCommissionsResponse struct {
	Commissions []domain.Commission `json:"commissions"`
}

// UpdateStatusRequest is the JSON payload for the manual status override.
type UpdateStatusRequest struct {
	// Status is the target lifecycle status, case-insensitive.
	Status string `json:"status" binding:"required" example:"Cancelled"`
}

// idempotencyTTL bounds how long a recorded create result can be replayed.
const idempotencyTTL = 24 * time.Hour

//
// Handlers
//

// CreateCommission godoc
// @ID          createCommission
// @Summary     Create a commission
// @Description Creates a commission in the Open state. Omitting creator_id makes it a
// @Description public listing; naming one makes it a direct commission.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Commissions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Customer user ID"  example(7)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateCommissionRequest  true  "Commission payload"
//
// @Success     201  {object}  handlers.CommissionResponse  "Created commission"
// @Failure     400  {object}  handlers.ErrorResponse       "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse       "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse       "Internal error"
// @Router      /commissions [post]
func (h *Handlers) CreateCommission(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req CreateCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and description are required")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, uid, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := h.comSvc.Get(ctx, rec.CommissionID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, CommissionResponse{Commission: prev})
					return
				}
			}
		}
	}

	in := services.CreateCommissionInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Style:       req.Style,
		Size:        req.Size,
		Format:      req.Format,
		Price:       req.Price,
		CreatorID:   req.CreatorID,
	}
	for _, img := range req.Images {
		in.Images = append(in.Images, []byte(img))
	}

	created, err := h.comSvc.Create(ctx, uid, in)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.serviceDB(); db != nil {
			_, _ = repo.CreateIdempotency(ctx, db, uid, idemKey, created.ID, http.StatusCreated, idempotencyTTL)
		}
	}

	ok(c, http.StatusCreated, CommissionResponse{Commission: created})
}

// ListPublicCommissions godoc
// @ID          listPublicCommissions
// @Summary     Browse open public commissions
// @Description Returns open public listings without an assigned creator, newest first.
// @Tags        Commissions
// @Produce     json
//
// @Success     200  {object}  handlers.ListCommissionsResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/public [get]
func (h *Handlers) ListPublicCommissions(c *gin.Context) {
	items, err := h.comSvc.ListPublic(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCommissionsResponse{Commissions: items})
}

// ListMyCommissions godoc
// @ID          listMyCommissions
// @Summary     List the caller's commissions
// @Description Returns commissions where the caller is customer or creator. Supports
// @Description conditional requests via ETag/If-None-Match.
// @Tags        Commissions
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(7)
//
// @Success     200  {object}  handlers.ListCommissionsResponse
// @Success     304  "Not modified"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/mine [get]
func (h *Handlers) ListMyCommissions(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, maxTS, err := repo.CommissionsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"commissions:%d:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.comSvc.ListMine(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCommissionsResponse{Commissions: items})
}

// GetCommission godoc
// @ID          getCommission
// @Summary     Get a commission
// @Description Returns one commission with its reference and result images embedded
// @Description as data URIs (remote URLs pass through untouched).
// @Tags        Commissions
// @Produce     json
//
// @Param       id  path  int  true  "Commission ID"
//
// @Success     200  {object}  handlers.CommissionResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Commission not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id} [get]
func (h *Handlers) GetCommission(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	com, err := h.comSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, CommissionResponse{Commission: com})
}

// AcceptCommission godoc
// @ID          acceptCommission
// @Summary     Accept an open commission
// @Description Atomically claims an open, unassigned commission for the caller and
// @Description moves it to Sketch. Exactly one concurrent caller wins; everyone
// @Description else receives 409.
// @Tags        Commissions
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Creator user ID"  example(42)
// @Param       id         path    int     true  "Commission ID"
//
// @Success     200  {object}  map[string]any "Accepted"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     409  {object}  handlers.ErrorResponse "Already accepted or self-accept"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/accept [patch]
func (h *Handlers) AcceptCommission(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.comSvc.Accept(c.Request.Context(), id, uid); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "status": domain.StatusSketch})
}

// UpdateCommissionStatus godoc
// @ID          updateCommissionStatus
// @Summary     Set commission status
// @Description Force-sets the lifecycle status of a commission (manual override,
// @Description no transition guard). Status is matched case-insensitively.
// @Tags        Commissions
// @Accept      json
// @Produce     json
//
// @Param       id    path  int                             true  "Commission ID"
// @Param       body  body  handlers.UpdateStatusRequest  true  "Target status"
//
// @Success     200  {object}  map[string]any "New status"
// @Failure     400  {object}  handlers.ErrorResponse "Unknown status"
// @Failure     404  {object}  handlers.ErrorResponse "Commission not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/status [patch]
func (h *Handlers) UpdateCommissionStatus(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}
	st, err := h.comSvc.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "status": st})
}

// DownloadCommission godoc
// @ID          downloadCommission
// @Summary     Download finished work
// @Description Delivers the commission's result image (or reference images when no
// @Description result exists yet). Customers must have paid; creators may always
// @Description download. A single file is served raw; multiple files are zipped.
// @Tags        Commissions
// @Produce     octet-stream
//
// @Param       X-User-ID  header  string  true  "User ID (must be a party)"  example(7)
// @Param       id         path    int     true  "Commission ID"
//
// @Success     200  {file}    file "Image or zip archive"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     402  {object}  handlers.ErrorResponse "Payment required"
// @Failure     403  {object}  handlers.ErrorResponse "Not a party"
// @Failure     404  {object}  handlers.ErrorResponse "Nothing to download"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/download [get]
func (h *Handlers) DownloadCommission(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	assets, err := h.comSvc.Download(c.Request.Context(), id, uid)
	if err != nil {
		failService(c, err, ErrCodeDownloadFailed)
		return
	}

	if len(assets) == 1 {
		a := assets[0]
		c.Header("Content-Disposition", `attachment; filename="`+a.Name+`"`)
		c.Data(http.StatusOK, a.MIME, a.Bytes)
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, a := range assets {
		w, zerr := zw.Create(a.Name)
		if zerr != nil {
			fail(c, http.StatusInternalServerError, ErrCodeDownloadFailed, zerr.Error())
			return
		}
		if _, zerr = w.Write(a.Bytes); zerr != nil {
			fail(c, http.StatusInternalServerError, ErrCodeDownloadFailed, zerr.Error())
			return
		}
	}
	if zerr := zw.Close(); zerr != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDownloadFailed, zerr.Error())
		return
	}
	name := "commission_" + strconv.FormatUint(id, 10) + ".zip"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// serviceDB exposes the concrete service's DB handle for edge concerns that
// live in the transport layer (ETag stats, idempotency records). It returns
// nil when the handler was wired with a non-GORM implementation (tests).
func (h *Handlers) serviceDB() *gorm.DB {
	if svc, okSvc := h.comSvc.(*services.CommissionService); okSvc {
		return svc.DB
	}
	return nil
}
