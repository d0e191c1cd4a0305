// Chat HTTP handlers.
//
// This file exposes REST endpoints for the per-commission conversation and
// the staged review workflow that runs through it:
//   - GET   /commissions/{id}/messages            (list, ETag support)
//   - POST  /commissions/{id}/messages            (send text or image)
//   - POST  /commissions/{id}/stage               (creator submits work-in-progress)
//   - POST  /commissions/{id}/review              (customer approves or rejects)
//   - PATCH /commissions/{id}/messages/{mid}/read (mark one message read)
//   - GET   /users/{id}/unread                    (unread badge count)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/palettehub/commission-backend/internal/domain"
	"github.com/palettehub/commission-backend/internal/repo"
	"github.com/palettehub/commission-backend/internal/services"
	"github.com/palettehub/commission-backend/internal/utils"
)

//
// DTOs
//

// PostChatMessageRequest is the JSON payload for sending a chat message.
type PostChatMessageRequest struct {
	// Type selects the message kind: "text" (default) or "image". The stage
	// and review kinds are reserved for the workflow endpoints.
	Type string `json:"type" example:"text"`
	// Content is the message text, or the image value (data URI, URL, file
	// path, or base64) when Type is "image".
	Content string `json:"content" binding:"required,min=1" example:"Could you make the background warmer?"`
}

// ChatMessageResponse is the JSON envelope for a single chat message.
type ChatMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// ListChatMessagesResponse contains a commission's messages in
// chronological order.
type ListChatMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// SubmitStageRequest is the JSON payload for a work-in-progress submission.
type SubmitStageRequest struct {
	// Image is the staged artwork encoded as a base64 data URI.
	Image string `json:"image" binding:"required,min=1" example:"data:image/png;base64,iVBORw0..."`
}

// ReviewStageRequest is the JSON payload for a stage verdict.
type ReviewStageRequest struct {
	// Decision is "approve" or "reject".
	Decision string `json:"decision" binding:"required" example:"approve"`
	// MessageID optionally targets a specific stage message; the latest
	// stage submission is reviewed when omitted.
	MessageID *uint64 `json:"message_id,omitempty" example:"118"`
}

// UnreadCountResponse reports the number of unread messages for a user.
type UnreadCountResponse struct {
	UserID int64 `json:"user_id"`
	Unread int64 `json:"unread"`
}

// clampListLimit parses the `limit` query parameter, applying the service
// default and an upper cap.
func clampListLimit(c *gin.Context) int {
	limit := utils.AtoiDefault(c.Query("limit"), services.DefaultListLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > services.DefaultListLimit {
		limit = services.DefaultListLimit
	}
	return limit
}

//
// Handlers
//

// ListChatMessages godoc
// @ID          listChatMessages
// @Summary     List a commission's messages
// @Description Returns the conversation in chronological order with image payloads
// @Description embedded as data URIs. Supports conditional requests via
// @Description ETag/If-None-Match.
// @Tags        Chat
// @Produce     json
//
// @Param       id     path   int  true   "Commission ID"
// @Param       limit  query  int  false  "Maximum messages to return"  default(1000)
//
// @Success     200  {object}  handlers.ListChatMessagesResponse
// @Success     304  "Not modified"
// @Failure     404  {object}  handlers.ErrorResponse "Commission not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/messages [get]
func (h *Handlers) ListChatMessages(c *gin.Context) {
	ctx := c.Request.Context()

	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	// ETag pre-check (best effort).
	if db := h.serviceDB(); db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, id)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%d:%d:%d"`, id, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.chatSvc.List(ctx, id, clampListLimit(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListChatMessagesResponse{Messages: items})
}

// PostChatMessage godoc
// @ID          postChatMessage
// @Summary     Send a message
// @Description Appends a text or image message to the commission's conversation.
// @Description The sender must be a party; the receiver is inferred as the
// @Description counterparty. Connected room members are notified in real time.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Sender user ID"  example(7)
// @Param       id         path    int     true  "Commission ID"
// @Param       body       body    handlers.PostChatMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.ChatMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/messages [post]
func (h *Handlers) PostChatMessage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req PostChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content is required")
		return
	}

	mt := domain.MessageText
	if t := strings.TrimSpace(req.Type); t != "" {
		var err error
		if mt, err = domain.ParseMessageType(t); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
	}

	m, err := h.chatSvc.Send(c.Request.Context(), id, uid, mt, req.Content)
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}
	ok(c, http.StatusCreated, ChatMessageResponse{Message: m})
}

// SubmitStage godoc
// @ID          submitStage
// @Summary     Submit a work-in-progress stage
// @Description Records a staged image from the assigned creator as a stage message
// @Description in the conversation and notifies the room. Rejected once the
// @Description commission is Completed.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Creator user ID"  example(42)
// @Param       id         path    int     true  "Commission ID"
// @Param       body       body    handlers.SubmitStageRequest  true  "Stage image payload"
//
// @Success     201  {object}  handlers.ChatMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse "Malformed image"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse "Caller is not the creator"
// @Failure     409  {object}  handlers.ErrorResponse "Commission already completed"
// @Failure     413  {object}  handlers.ErrorResponse "Image too large"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/stage [post]
func (h *Handlers) SubmitStage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req SubmitStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image is required")
		return
	}

	m, err := h.comSvc.SubmitStage(c.Request.Context(), id, uid, req.Image)
	if err != nil {
		failService(c, err, ErrCodeStageFailed)
		return
	}
	ok(c, http.StatusCreated, ChatMessageResponse{Message: m})
}

// ReviewStage godoc
// @ID          reviewStage
// @Summary     Review a stage submission
// @Description Records the customer's verdict on a stage submission. Approval
// @Description advances Sketch to Edits and Edits to Completed; rejection leaves
// @Description the status untouched. The verdict is stored as a review message
// @Description linked to the reviewed stage.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer user ID"  example(7)
// @Param       id         path    int     true  "Commission ID"
// @Param       body       body    handlers.ReviewStageRequest  true  "Verdict payload"
//
// @Success     200  {object}  services.ReviewResult
// @Failure     400  {object}  handlers.ErrorResponse "Unknown decision"
// @Failure     401  {object}  handlers.ErrorResponse "Missing identity"
// @Failure     403  {object}  handlers.ErrorResponse "Caller is not the customer"
// @Failure     404  {object}  handlers.ErrorResponse "No stage submission to review"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/review [post]
func (h *Handlers) ReviewStage(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req ReviewStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "decision is required")
		return
	}

	res, err := h.comSvc.Review(c.Request.Context(), id, uid, req.Decision, req.MessageID)
	if err != nil {
		failService(c, err, ErrCodeReviewFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// MarkMessageRead godoc
// @ID          markMessageRead
// @Summary     Mark a message as read
// @Description Flips one message's read status. Safe to repeat.
// @Tags        Chat
// @Produce     json
//
// @Param       id   path  int  true  "Commission ID"
// @Param       mid  path  int  true  "Message ID"
//
// @Success     204  "Marked read"
// @Failure     404  {object}  handlers.ErrorResponse "Message not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /commissions/{id}/messages/{mid}/read [patch]
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	if _, okID := pathID(c, "id"); !okID {
		return
	}
	mid, okMid := pathID(c, "mid")
	if !okMid {
		return
	}
	if err := h.chatSvc.MarkRead(c.Request.Context(), mid); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Count unread messages
// @Description Returns the number of unread messages addressed to a user, optionally
// @Description scoped to one commission via the commission_id query parameter.
// @Tags        Chat
// @Produce     json
//
// @Param       id             path   int  true   "User ID"
// @Param       commission_id  query  int  false  "Scope to one commission"
//
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/unread [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}

	var scope *uint64
	if raw := strings.TrimSpace(c.Query("commission_id")); raw != "" {
		cid, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil || cid == 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "commission_id must be a positive integer")
			return
		}
		scope = &cid
	}

	n, err := h.chatSvc.UnreadCount(c.Request.Context(), userID, scope)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{UserID: userID, Unread: n})
}
