package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/palettehub/commission-backend/internal/domain"
	"github.com/palettehub/commission-backend/internal/http/middleware"
	"github.com/palettehub/commission-backend/internal/repo"
	"github.com/palettehub/commission-backend/internal/services"
)

// ---------- test DB + stack ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Commission{}, &domain.CommissionImage{}, &domain.ChatMessage{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newStack wires real services over an in-memory DB, mirroring router.go.
func newStack(t *testing.T) (*gorm.DB, *Handlers) {
	t.Helper()
	db := newHandlerDB(t)
	chatSvc := services.NewChatService(db, nil)
	comSvc := services.NewCommissionService(db, nil, chatSvc)
	paySvc := &services.PaymentService{DB: db, Secret: "test-secret"}
	return db, New(comSvc, chatSvc, paySvc)
}

// apiRouter registers the same route shapes as the production router, minus
// the outer middleware stack (the pieces under test are added per call).
func apiRouter(h *Handlers, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	r.Use(extra...)

	r.POST("/commissions", h.CreateCommission)
	r.GET("/commissions/public", h.ListPublicCommissions)
	r.GET("/commissions/mine", h.ListMyCommissions)
	r.GET("/commissions/:id", h.GetCommission)
	r.PATCH("/commissions/:id/accept", h.AcceptCommission)
	r.PATCH("/commissions/:id/status", h.UpdateCommissionStatus)
	r.GET("/commissions/:id/download", h.DownloadCommission)
	r.GET("/commissions/:id/messages", h.ListChatMessages)
	r.POST("/commissions/:id/messages", h.PostChatMessage)
	r.POST("/commissions/:id/stage", h.SubmitStage)
	r.POST("/commissions/:id/review", h.ReviewStage)
	r.PATCH("/commissions/:id/messages/:mid/read", h.MarkMessageRead)
	r.GET("/users/:id/unread", h.UnreadCount)
	r.POST("/payments/webhook", h.PaymentWebhook)
	return r
}

func doJSON(r *gin.Engine, method, path, userID, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedHandlerCommission(t *testing.T, db *gorm.DB, customerID, creatorID int64, status domain.Status) *domain.Commission {
	t.Helper()
	c := &domain.Commission{
		Title: "Portrait", Description: "d",
		CustomerID: customerID,
		Status:     status, Type: domain.CommissionPublic,
	}
	if creatorID > 0 {
		c.CreatorID = &creatorID
		c.Type = domain.CommissionDirect
	}
	if err := repo.CreateCommission(context.Background(), db, c); err != nil {
		t.Fatalf("seed commission: %v", err)
	}
	return c
}

// tinyPNGURI is a minimal well-formed data URI payload for stage uploads.
const tinyPNGURI = "data:image/png;base64,iVBORw0KGgoAAQ=="

// ---------- flexible stub for error paths ----------

type stubComSvc struct {
	create func(context.Context, int64, services.CreateCommissionInput) (*domain.Commission, error)
	get    func(context.Context, uint64) (*domain.Commission, error)
	list   func(context.Context) ([]domain.Commission, error)
}

func (s stubComSvc) Create(ctx context.Context, uid int64, in services.CreateCommissionInput) (*domain.Commission, error) {
	if s.create != nil {
		return s.create(ctx, uid, in)
	}
	return &domain.Commission{ID: 1, Title: in.Title, CustomerID: uid}, nil
}
func (s stubComSvc) Accept(context.Context, uint64, int64) error { return nil }
func (s stubComSvc) SubmitStage(context.Context, uint64, int64, string) (*domain.ChatMessage, error) {
	return nil, nil
}
func (s stubComSvc) Review(context.Context, uint64, int64, string, *uint64) (*services.ReviewResult, error) {
	return nil, nil
}
func (s stubComSvc) SetStatus(context.Context, uint64, string) (domain.Status, error) {
	return domain.StatusOpen, nil
}
func (s stubComSvc) Download(context.Context, uint64, int64) ([]services.DownloadAsset, error) {
	return nil, nil
}
func (s stubComSvc) Get(ctx context.Context, id uint64) (*domain.Commission, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &domain.Commission{ID: id}, nil
}
func (s stubComSvc) ListPublic(ctx context.Context) ([]domain.Commission, error) {
	if s.list != nil {
		return s.list(ctx)
	}
	return nil, nil
}
func (s stubComSvc) ListMine(context.Context, int64) ([]domain.Commission, error) { return nil, nil }

type stubChatSvc struct{}

func (stubChatSvc) Send(context.Context, uint64, int64, domain.MessageType, string) (*domain.ChatMessage, error) {
	return &domain.ChatMessage{ID: 1}, nil
}
func (stubChatSvc) List(context.Context, uint64, int) ([]domain.ChatMessage, error) {
	return nil, nil
}
func (stubChatSvc) MarkRead(context.Context, uint64) error { return nil }
func (stubChatSvc) UnreadCount(context.Context, int64, *uint64) (int64, error) {
	return 0, nil
}

type stubPaySvc struct{}

func (stubPaySvc) VerifySignature([]byte, string) bool          { return true }
func (stubPaySvc) MarkPaid(context.Context, uint64, bool) error { return nil }

// ---------- stub-backed error paths ----------

func TestHandlers_InternalErrors(t *testing.T) {
	boom := fmt.Errorf("storage offline")
	h := New(stubComSvc{
		create: func(context.Context, int64, services.CreateCommissionInput) (*domain.Commission, error) {
			return nil, boom
		},
		get: func(context.Context, uint64) (*domain.Commission, error) { return nil, boom },
		list: func(context.Context) ([]domain.Commission, error) { return nil, boom },
	}, stubChatSvc{}, stubPaySvc{})
	r := apiRouter(h)

	if w := doJSON(r, http.MethodPost, "/commissions", "7", `{"title":"t","description":"d"}`, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("create -> %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/commissions/public", "", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("public -> %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/commissions/1", "", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("get -> %d", w.Code)
	}
}

// ---------- helpers-only tests ----------

func Test_requireUser_and_pathID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// requireUser sees only the identity the middleware established.
	r := gin.New()
	r.Use(middleware.Identity())
	r.GET("/whoami", func(c *gin.Context) {
		if id, okU := requireUser(c); okU {
			c.JSON(http.StatusOK, gin.H{"id": id})
		}
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "42")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"id":42`)) {
		t.Fatalf("identity = %d %s", w.Code, w.Body.String())
	}

	// Missing, garbage, and non-positive headers all answer 401.
	for _, bad := range []string{"", "abc", "0", "-3"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if bad != "" {
			req.Header.Set("X-User-ID", bad)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q -> %d", bad, w.Code)
		}
	}

	// pathID rejects non-numeric and zero
	for _, bad := range []string{"x", "0", "-1"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Params = gin.Params{{Key: "id", Value: bad}}
		if _, okID := pathID(c, "id"); okID {
			t.Fatalf("pathID(%q) accepted", bad)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("pathID(%q) -> %d", bad, w.Code)
		}
	}
}

// ---------- CreateCommission ----------

func TestCreateCommission(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)

	// Missing identity -> 401
	if w := doJSON(r, http.MethodPost, "/commissions", "", `{"title":"t","description":"d"}`, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no identity -> %d", w.Code)
	}

	// Bad JSON -> 400
	if w := doJSON(r, http.MethodPost, "/commissions", "7", `{bad`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	// Missing required fields -> 400
	if w := doJSON(r, http.MethodPost, "/commissions", "7", `{"title":"t"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing description -> %d", w.Code)
	}

	// Self-commission -> 400 via service validation
	if w := doJSON(r, http.MethodPost, "/commissions", "7", `{"title":"t","description":"d","creator_id":7}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("self commission -> %d", w.Code)
	}

	// Success -> 201, trimmed title, open public listing
	w := doJSON(r, http.MethodPost, "/commissions", "7", `{"title":"  Banner  ","description":"d","images":["https://cdn.example.com/a.png"]}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}
	var out CommissionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Commission.Title != "Banner" || out.Commission.Status != domain.StatusOpen {
		t.Fatalf("unexpected commission: %+v", out.Commission)
	}
	if len(out.Commission.Images) != 1 || out.Commission.Images[0].Kind != domain.ImageRemoteURL {
		t.Fatalf("image classification: %+v", out.Commission.Images)
	}

	// Row actually persisted
	var n int64
	db.Model(&domain.Commission{}).Count(&n)
	if n != 1 {
		t.Fatalf("persisted commissions = %d", n)
	}
}

func TestCreateCommission_IdempotencyReplay(t *testing.T) {
	db, h := newStack(t)

	// Mount the validator the way the production router does.
	r := apiRouter(h, middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		Lookup: func(ctx context.Context, userID int64, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, key, now)
			if err != nil {
				return false, nil
			}
			return rec != nil, nil
		},
	}))

	key := uuid.NewString()
	body := `{"title":"t","description":"d"}`
	hdr := map[string]string{middleware.HeaderIdempotencyKey: key}

	w := doJSON(r, http.MethodPost, "/commissions", "7", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create -> %d body=%s", w.Code, w.Body.String())
	}
	var first CommissionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("json: %v", err)
	}

	// Same key replays the recorded result instead of creating again.
	w = doJSON(r, http.MethodPost, "/commissions", "7", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("replay -> %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay marker header missing")
	}
	var second CommissionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("json: %v", err)
	}
	if second.Commission.ID != first.Commission.ID {
		t.Fatalf("replay returned a different commission: %d vs %d", second.Commission.ID, first.Commission.ID)
	}

	var n int64
	db.Model(&domain.Commission{}).Count(&n)
	if n != 1 {
		t.Fatalf("replay created a second row: count=%d", n)
	}

	// A malformed key never reaches the handler.
	w = doJSON(r, http.MethodPost, "/commissions", "7", body, map[string]string{middleware.HeaderIdempotencyKey: "not-a-uuid"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad key -> %d", w.Code)
	}
}

// ---------- Listings + Get ----------

func TestListCommissions(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)

	open := seedHandlerCommission(t, db, 1, 0, domain.StatusOpen)
	seedHandlerCommission(t, db, 1, 2, domain.StatusSketch)

	w := doJSON(r, http.MethodGet, "/commissions/public", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("public -> %d", w.Code)
	}
	var list ListCommissionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Commissions) != 1 || list.Commissions[0].ID != open.ID {
		t.Fatalf("public listing: %+v", list.Commissions)
	}

	// mine requires identity
	if w = doJSON(r, http.MethodGet, "/commissions/mine", "", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("mine without identity -> %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/commissions/mine", "2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mine -> %d", w.Code)
	}
}

func TestListMyCommissions_ETag(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)
	seedHandlerCommission(t, db, 1, 0, domain.StatusOpen)

	w := doJSON(r, http.MethodGet, "/commissions/mine", "1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mine -> %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on listing")
	}

	w = doJSON(r, http.MethodGet, "/commissions/mine", "1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional mine -> %d", w.Code)
	}

	// New data moves the tag.
	seedHandlerCommission(t, db, 1, 0, domain.StatusOpen)
	w = doJSON(r, http.MethodGet, "/commissions/mine", "1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stale conditional mine -> %d", w.Code)
	}
	if w.Header().Get("ETag") == etag {
		t.Fatal("ETag did not change with new data")
	}
}

func TestGetCommission(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)
	c := seedHandlerCommission(t, db, 1, 0, domain.StatusOpen)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/commissions/%d", c.ID), "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d", w.Code)
	}

	if w = doJSON(r, http.MethodGet, "/commissions/999", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w.Code)
	}
	if w = doJSON(r, http.MethodGet, "/commissions/abc", "", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id -> %d", w.Code)
	}
}

// ---------- Accept + status ----------

func TestAcceptCommission(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)
	c := seedHandlerCommission(t, db, 1, 0, domain.StatusOpen)
	path := fmt.Sprintf("/commissions/%d/accept", c.ID)

	if w := doJSON(r, http.MethodPatch, path, "", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no identity -> %d", w.Code)
	}

	w := doJSON(r, http.MethodPatch, path, "2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept -> %d body=%s", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out["status"] != string(domain.StatusSketch) {
		t.Fatalf("accept status = %v", out["status"])
	}

	// Losing racer gets a conflict.
	if w = doJSON(r, http.MethodPatch, path, "3", "", nil); w.Code != http.StatusConflict {
		t.Fatalf("second accept -> %d", w.Code)
	}
}

func TestUpdateCommissionStatus(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)
	c := seedHandlerCommission(t, db, 1, 2, domain.StatusSketch)
	path := fmt.Sprintf("/commissions/%d/status", c.ID)

	w := doJSON(r, http.MethodPatch, path, "", `{"status":"Cancelled"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status -> %d body=%s", w.Code, w.Body.String())
	}
	got, err := repo.GetCommission(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("persisted status = %s", got.Status)
	}

	if w = doJSON(r, http.MethodPatch, path, "", `{"status":"finished"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status -> %d", w.Code)
	}
	if w = doJSON(r, http.MethodPatch, path, "", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body -> %d", w.Code)
	}
	if w = doJSON(r, http.MethodPatch, "/commissions/999/status", "", `{"status":"open"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w.Code)
	}
}

// ---------- Download ----------

func TestDownloadCommission(t *testing.T) {
	db, h := newStack(t)
	r := apiRouter(h)
	ctx := context.Background()

	c := seedHandlerCommission(t, db, 1, 2, domain.StatusCompleted)
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 1}
	if err := repo.UpsertCommissionImage(ctx, db, c.ID, domain.ResultImageSlot, domain.ImageBinary, png); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	path := fmt.Sprintf("/commissions/%d/download", c.ID)

	// Outsider -> 403, unpaid customer -> 402
	if w := doJSON(r, http.MethodGet, path, "9", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider -> %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, path, "1", "", nil); w.Code != http.StatusPaymentRequired {
		t.Fatalf("unpaid customer -> %d", w.Code)
	}

	// Creator: single file served raw with a filename.
	w := doJSON(r, http.MethodGet, path, "2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("creator download -> %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("no Content-Disposition")
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Fatal("raw bytes differ")
	}

	// Paid customer with multiple fallback images gets a zip.
	multi := seedHandlerCommission(t, db, 1, 2, domain.StatusEdits)
	if _, err := repo.SetCommissionPaid(ctx, db, multi.ID, true); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := repo.UpsertCommissionImage(ctx, db, multi.ID, 2, domain.ImageBinary, png); err != nil {
		t.Fatalf("seed slot 2: %v", err)
	}
	if err := repo.UpsertCommissionImage(ctx, db, multi.ID, 3, domain.ImageBinary, png); err != nil {
		t.Fatalf("seed slot 3: %v", err)
	}
	w = doJSON(r, http.MethodGet, fmt.Sprintf("/commissions/%d/download", multi.ID), "1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("multi download -> %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("multi content type = %q", ct)
	}

	// Nothing downloadable -> 404
	empty := seedHandlerCommission(t, db, 1, 2, domain.StatusSketch)
	if w = doJSON(r, http.MethodGet, fmt.Sprintf("/commissions/%d/download", empty.ID), "2", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("empty download -> %d", w.Code)
	}
}
