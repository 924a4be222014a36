package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
	"staysane/internal/app/queries"
	"staysane/internal/domain/user"
)

// TenantBookingHandler serves the tenant's view of bookings on their properties.
type TenantBookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type reviewProofRequest struct {
	Approve bool   `json:"approve"`
	Cancel  bool   `json:"cancel"`
	Reason  string `json:"reason"`
}

type transitionRequest struct {
	Status        string `json:"status" binding:"required"`
	Reason        string `json:"reason"`
	TransactionID string `json:"transaction_id"`
}

func (h TenantBookingHandler) List(c *gin.Context) {
	tenant, ok := requireRole(c, user.RoleTenant)
	if !ok {
		return
	}
	var statuses []string
	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, strings.ToUpper(s))
			}
		}
	}
	result, err := queries.Ask[bookingapp.ListTenantBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries,
		bookingapp.ListTenantBookingsQuery{TenantID: string(tenant.UserID), Statuses: statuses})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TenantBookingHandler) Review(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	var req reviewProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookingapp.ReviewPaymentProofCommand, dto.StatusChange](c.Request.Context(), h.Commands,
		bookingapp.ReviewPaymentProofCommand{
			BookingID: c.Param("id"),
			Approve:   req.Approve,
			Cancel:    req.Cancel,
			Reason:    req.Reason,
		})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TenantBookingHandler) Transition(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[bookingapp.TransitionStatusCommand, dto.StatusChange](c.Request.Context(), h.Commands,
		bookingapp.TransitionStatusCommand{
			BookingID:     c.Param("id"),
			Target:        strings.ToUpper(strings.TrimSpace(req.Status)),
			Reason:        req.Reason,
			TransactionID: req.TransactionID,
		})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ TenantBookingHTTP = TenantBookingHandler{}
