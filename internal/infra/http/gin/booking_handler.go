package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
	"staysane/internal/app/policies"
	"staysane/internal/app/queries"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/user"
)

const IdempotencyHeader = "Idempotency-Key"

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	PropertyID    string          `json:"property_id" binding:"required"`
	RoomID        string          `json:"room_id" binding:"required"`
	CheckIn       civil.Date      `json:"check_in"`
	CheckOut      civil.Date      `json:"check_out"`
	Guests        int             `json:"guests"`
	Quantity      int             `json:"quantity" binding:"gte=0,lte=20"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
}

type createBookingResponse struct {
	Booking *dto.Booking   `json:"booking"`
	Warning *errorResponse `json:"warning,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Create(c *gin.Context) {
	guest, ok := requireRole(c, user.RoleGuest)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.CreateBookingCommand{
		GuestID:       string(guest.UserID),
		PropertyID:    req.PropertyID,
		RoomID:        req.RoomID,
		CheckIn:       req.CheckIn,
		CheckOut:      req.CheckOut,
		Guests:        req.Guests,
		Quantity:      req.Quantity,
		Total:         req.Total,
		PaymentMethod: strings.ToUpper(strings.TrimSpace(req.PaymentMethod)),
		RequestKey:    strings.TrimSpace(c.GetHeader(IdempotencyHeader)),
	}
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		// The booking exists; only the gateway hand-off failed.
		var gatewayErr *domainbooking.GatewayUnavailableError
		if errors.As(err, &gatewayErr) && result != nil {
			c.JSON(http.StatusCreated, createBookingResponse{Booking: result, Warning: &errorResponse{
				Code:  "payment_gateway_unavailable",
				Error: "the payment gateway is unavailable; the booking was switched to manual transfer",
			}})
			return
		}
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, createBookingResponse{Booking: result})
}

func (h BookingHandler) Get(c *gin.Context) {
	if _, ok := requireRole(c, ""); !ok {
		return
	}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries,
		bookingapp.GetBookingQuery{BookingID: c.Param("id")})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) ListMine(c *gin.Context) {
	guest, ok := requireRole(c, user.RoleGuest)
	if !ok {
		return
	}
	result, err := queries.Ask[bookingapp.ListGuestBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries,
		bookingapp.ListGuestBookingsQuery{GuestID: string(guest.UserID)})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	if _, ok := requireRole(c, ""); !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, dto.StatusChange](c.Request.Context(), h.Commands,
		bookingapp.CancelBookingCommand{BookingID: c.Param("id"), Reason: req.Reason})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadProof accepts a multipart form with the receipt in the "file" field.
func (h BookingHandler) UploadProof(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleGuest); !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bookingapp.MaxProofSize+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, h.Logger, bookingapp.ErrProofTooLarge)
			return
		}
		badRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := file.Read(sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, 0); err != nil {
			writeError(c, h.Logger, err)
			return
		}
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}

	result, err := commands.Dispatch[bookingapp.UploadPaymentProofCommand, dto.StatusChange](c.Request.Context(), h.Commands,
		bookingapp.UploadPaymentProofCommand{
			BookingID:   c.Param("id"),
			FileName:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Body:        file,
		})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) History(c *gin.Context) {
	if _, ok := requireRole(c, ""); !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		limit = v
	}
	result, err := queries.Ask[bookingapp.GetBookingHistoryQuery, []policies.HistoryEntry](c.Request.Context(), h.Queries,
		bookingapp.GetBookingHistoryQuery{BookingID: c.Param("id"), Limit: limit})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	if result == nil {
		result = []policies.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

var _ BookingHTTP = BookingHandler{}
