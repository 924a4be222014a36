package ginserver_test

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staysane/internal/app/bootstrap"
	"staysane/internal/app/clock"
	"staysane/internal/app/dto"
	"staysane/internal/app/policies"
	"staysane/internal/infra/config"
	ginserver "staysane/internal/infra/http/gin"
	"staysane/internal/infra/obs"
	"staysane/internal/infra/storage/memory"
)

var now = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type memoryProofs struct {
	objects map[string][]byte
}

func (m *memoryProofs) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	return "memory://" + key, nil
}

type harness struct {
	router http.Handler
	store  *memory.Store
	proofs *memoryProofs
}

func newHarness(t *testing.T, serverKey string, limiter *ginserver.RateLimiter) *harness {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SeedDemo(context.Background(), "IDR", now))
	proofs := &memoryProofs{objects: map[string][]byte{}}

	buses := bootstrap.Build(bootstrap.Deps{
		UoW:         store,
		Outbox:      store,
		Idempotency: memory.NewIdempotencyStore(),
		Proofs:      proofs,
		Clock:       clock.NewFixed(now),
	})
	handlers := ginserver.Handlers{
		Booking:       ginserver.BookingHandler{Commands: buses.Commands, Queries: buses.Queries},
		TenantBooking: ginserver.TenantBookingHandler{Commands: buses.Commands, Queries: buses.Queries},
		Availability:  ginserver.AvailabilityHandler{Commands: buses.Commands, Queries: buses.Queries},
		Pricing:       ginserver.PricingHandler{Commands: buses.Commands, Queries: buses.Queries},
		Webhook:       ginserver.PaymentWebhookHandler{Commands: buses.Commands, ServerKey: serverKey},
		CreateLimiter: limiter,
	}
	router := ginserver.NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, handlers)
	return &harness{router: router, store: store, proofs: proofs}
}

type call struct {
	method  string
	path    string
	body    any
	userID  string
	role    string
	headers map[string]string
}

func (h *harness) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(ginserver.UserIDHeader, c.userID)
		req.Header.Set(ginserver.UserRoleHeader, c.role)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type createResponse struct {
	Booking dto.Booking `json:"booking"`
	Warning *struct {
		Code string `json:"code"`
	} `json:"warning"`
}

type errorBody struct {
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func bookingBody(total string) map[string]any {
	return map[string]any{
		"property_id": memory.DemoPropertyID,
		"room_id":     memory.DemoRoomID,
		"check_in":    "2025-06-01",
		"check_out":   "2025-06-04",
		"guests":      2,
		"total":       total,
	}
}

func (h *harness) createBooking(t *testing.T, body map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: body, userID: memory.DemoGuestID, role: "GUEST", headers: headers})
}

func TestQuoteThenBookThenConflict(t *testing.T) {
	h := newHarness(t, "", nil)

	rec := h.do(t, call{method: http.MethodGet, path: "/api/v1/rooms/room-1/quote?check_in=2025-06-01&check_out=2025-06-04"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[dto.Quote](t, rec)
	assert.Equal(t, int64(3_000_000), quote.Total.Amount)
	assert.Len(t, quote.Nights, 3)

	rec = h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	assert.Equal(t, "WAITING_PAYMENT", created.Booking.Status)
	assert.Equal(t, "MANUAL_TRANSFER", created.Booking.Payment.Method)
	assert.Nil(t, created.Warning)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/v1/rooms/room-1/availability?check_in=2025-06-03&check_out=2025-06-05"})
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[dto.Availability](t, rec)
	assert.False(t, avail.Available)
	require.Len(t, avail.Conflicts, 1)
	assert.Equal(t, created.Booking.OrderCode, avail.Conflicts[0].OrderCode)

	rec = h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "room_unavailable", body.Code)
	assert.Contains(t, string(body.Details), created.Booking.OrderCode)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/v1/me/bookings", userID: memory.DemoGuestID, role: "GUEST"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.BookingCollection](t, rec).Items, 1)
}

func TestCreateBookingRejections(t *testing.T) {
	h := newHarness(t, "", nil)

	rec := h.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody("3000000")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody("3000000"), userID: memory.DemoTenantID, role: "TENANT"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.createBooking(t, bookingBody("2500000"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "price_mismatch", decode[errorBody](t, rec).Code)

	tooMany := bookingBody("3000000")
	tooMany["guests"] = 5
	rec = h.createBooking(t, tooMany, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "guest_limit_exceeded", decode[errorBody](t, rec).Code)

	past := bookingBody("3000000")
	past["check_in"] = "2025-04-20"
	rec = h.createBooking(t, past, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decode[errorBody](t, rec).Code)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/v1/rooms/room-1/availability?check_in=tomorrow&check_out=2025-06-05"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decode[errorBody](t, rec).Code)
}

func TestIdempotencyKeyReplaysCreatedBooking(t *testing.T) {
	h := newHarness(t, "", nil)
	headers := map[string]string{ginserver.IdempotencyHeader: "req-1"}

	first := h.createBooking(t, bookingBody("3000000"), headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := h.createBooking(t, bookingBody("3000000"), headers)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	assert.Equal(t, decode[createResponse](t, first).Booking.ID, decode[createResponse](t, second).Booking.ID)
}

func TestGatewayOutageFallsBackToManualTransfer(t *testing.T) {
	h := newHarness(t, "", nil)
	body := bookingBody("3000000")
	body["payment_method"] = "payment_gateway"

	rec := h.createBooking(t, body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	require.NotNil(t, created.Warning)
	assert.Equal(t, "payment_gateway_unavailable", created.Warning.Code)
	assert.Equal(t, "MANUAL_TRANSFER", created.Booking.Payment.Method)
	assert.Equal(t, "WAITING_PAYMENT", created.Booking.Status)
}

func TestManualPaymentProofFlow(t *testing.T) {
	h := newHarness(t, "", nil)
	rec := h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[createResponse](t, rec).Booking.ID

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "receipt.png")
	require.NoError(t, err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+id+"/payment-proof", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ginserver.UserIDHeader, memory.DemoGuestID)
	req.Header.Set(ginserver.UserRoleHeader, "GUEST")
	upload := httptest.NewRecorder()
	h.router.ServeHTTP(upload, req)
	require.Equal(t, http.StatusOK, upload.Code, upload.Body.String())
	assert.Equal(t, "WAITING_CONFIRMATION", decode[dto.StatusChange](t, upload).Status)
	assert.Len(t, h.proofs.objects, 1)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/tenant/bookings/" + id + "/review", body: map[string]any{"approve": true},
		userID: memory.DemoOtherTenant, role: "TENANT"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/tenant/bookings/" + id + "/review", body: map[string]any{"approve": true},
		userID: memory.DemoTenantID, role: "TENANT"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PROCESSING", decode[dto.StatusChange](t, rec).Status)

	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/bookings/" + id + "/cancel", userID: memory.DemoGuestID, role: "GUEST"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "guest_cancel_not_allowed", decode[errorBody](t, rec).Code)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/v1/tenant/bookings?status=processing", userID: memory.DemoTenantID, role: "TENANT"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.BookingCollection](t, rec).Items, 1)
}

func TestTenantCalendarAndAdjustments(t *testing.T) {
	h := newHarness(t, "", nil)
	tenant := func(c call) call {
		c.userID, c.role = memory.DemoTenantID, "TENANT"
		return c
	}

	rec := h.do(t, tenant(call{method: http.MethodPut, path: "/api/v1/tenant/rooms/room-1/calendar",
		body: map[string]any{"dates": []string{"2025-06-02"}}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "room_unavailable", body.Code)
	assert.Contains(t, string(body.Details), "2025-06-02")

	rec = h.do(t, tenant(call{method: http.MethodPost, path: "/api/v1/tenant/rooms/room-2/adjustments", body: map[string]any{
		"title": "long weekend", "start": "2025-06-01", "end": "2025-06-30", "kind": "PERCENTAGE", "value": "10", "apply_all_dates": true,
	}}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decode[dto.Adjustment](t, rec)

	rec = h.do(t, call{method: http.MethodGet, path: "/api/v1/rooms/room-2/quote?check_in=2025-06-01&check_out=2025-06-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2_200_000), decode[dto.Quote](t, rec).Total.Amount)

	rec = h.do(t, call{method: http.MethodDelete, path: "/api/v1/tenant/adjustments/" + adj.ID, userID: memory.DemoOtherTenant, role: "TENANT"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, tenant(call{method: http.MethodDelete, path: "/api/v1/tenant/adjustments/" + adj.ID}))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentWebhookSignature(t *testing.T) {
	h := newHarness(t, "server-key", nil)
	body := bookingBody("3000000")
	body["payment_method"] = "PAYMENT_GATEWAY"
	rec := h.createBooking(t, body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	orderCode := decode[createResponse](t, rec).Booking.OrderCode

	notification := map[string]any{
		"order_id":           orderCode,
		"status_code":        "200",
		"gross_amount":       "3000000.00",
		"transaction_id":     "tx-1",
		"transaction_status": "settlement",
		"signature_key":      "forged",
	}
	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments/notifications", body: notification})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sum := sha512.Sum512([]byte(orderCode + "200" + "3000000.00" + "server-key"))
	notification["signature_key"] = hex.EncodeToString(sum[:])
	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/payments/notifications", body: notification})
	// The gateway fallback turned the booking into a manual transfer.
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "wrong_payment_method", decode[errorBody](t, rec).Code)
}

func TestCreateLimiterThrottlesPerUser(t *testing.T) {
	h := newHarness(t, "", ginserver.NewRateLimiter(0.001, 1))

	rec := h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = h.createBooking(t, bookingBody("3000000"), nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = h.do(t, call{method: http.MethodPost, path: "/api/v1/bookings", body: bookingBody("3000000"), userID: memory.DemoOtherGuestID, role: "GUEST"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignatureHelpers(t *testing.T) {
	sum := sha512.Sum512([]byte("INV-1" + "200" + "10.00" + "k"))
	assert.True(t, ginserver.ValidGatewaySignature("INV-1", "200", "10.00", "k", hex.EncodeToString(sum[:])))
	assert.False(t, ginserver.ValidGatewaySignature("INV-1", "201", "10.00", "k", hex.EncodeToString(sum[:])))
}

var _ policies.ProofStorage = (*memoryProofs)(nil)
