package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"staysane/internal/app/authz"
	"staysane/internal/app/dto"
	bookingapp "staysane/internal/app/handlers/booking"
	"staysane/internal/app/middleware"
	"staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/money"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type errorKind struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorKinds = []errorKind{
	{availability.ErrInvalidDateRange, http.StatusBadRequest, "invalid_date_range"},
	{daterange.ErrInvalidRange, http.StatusBadRequest, "invalid_date_range"},
	{daterange.ErrInvalidDate, http.StatusBadRequest, "invalid_date_range"},
	{domainbooking.ErrGuestLimitExceeded, http.StatusUnprocessableEntity, "guest_limit_exceeded"},
	{errs.ErrConcurrentConflict, http.StatusConflict, "concurrent_conflict"},
	{errs.ErrNotFound, http.StatusNotFound, "not_found"},

	{authz.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{authz.ErrForbidden, http.StatusForbidden, "forbidden"},
	{bookingapp.ErrNotParticipant, http.StatusForbidden, "forbidden"},
	{bookingapp.ErrGuestCancelNotAllowed, http.StatusForbidden, "guest_cancel_not_allowed"},
	{property.ErrPropertyNotOwned, http.StatusForbidden, "forbidden"},
	{pricing.ErrAdjustmentNotOwned, http.StatusForbidden, "forbidden"},

	{domainbooking.ErrPaymentWindowClosed, http.StatusConflict, "payment_window_closed"},
	{domainbooking.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{domainbooking.ErrWrongPaymentMethod, http.StatusConflict, "wrong_payment_method"},
	{domainbooking.ErrStayNotFinished, http.StatusConflict, "stay_not_finished"},

	{bookingapp.ErrProofTooLarge, http.StatusRequestEntityTooLarge, "proof_too_large"},
	{bookingapp.ErrProofType, http.StatusUnsupportedMediaType, "proof_type"},
	{bookingapp.ErrProofStorageMissing, http.StatusServiceUnavailable, "proof_storage_unavailable"},
	{bookingapp.ErrHistoryUnavailable, http.StatusServiceUnavailable, "history_unavailable"},

	{middleware.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domainbooking.ErrProofRequired, http.StatusBadRequest, "invalid_input"},
	{domainbooking.ErrInvalidGuests, http.StatusBadRequest, "invalid_input"},
	{domainbooking.ErrInvalidQuantity, http.StatusBadRequest, "invalid_input"},
	{domainbooking.ErrInvalidStatus, http.StatusBadRequest, "invalid_input"},
	{bookingapp.ErrBookingIDRequired, http.StatusBadRequest, "invalid_input"},
	{bookingapp.ErrUnknownGatewayEvent, http.StatusBadRequest, "invalid_input"},
	{availability.ErrNoDates, http.StatusBadRequest, "invalid_input"},
	{availability.ErrTooManyDates, http.StatusBadRequest, "invalid_input"},
	{availability.ErrDateInPast, http.StatusBadRequest, "invalid_input"},
	{availability.ErrWindowTooLarge, http.StatusBadRequest, "invalid_input"},
	{pricing.ErrInvalidKind, http.StatusBadRequest, "invalid_input"},
	{pricing.ErrInvalidWindow, http.StatusBadRequest, "invalid_input"},
	{pricing.ErrDateOutsideWindow, http.StatusBadRequest, "invalid_input"},
	{pricing.ErrDatesRequired, http.StatusBadRequest, "invalid_input"},
	{money.ErrInvalidCurrency, http.StatusBadRequest, "invalid_input"},
	{money.ErrOverflow, http.StatusBadRequest, "invalid_input"},
	{pricing.ErrQuantity, http.StatusBadRequest, "invalid_input"},
}

type unavailableDetails struct {
	Blackouts []string          `json:"blackouts"`
	Conflicts []dto.ConflictDTO `json:"conflicts"`
}

type mismatchDetails struct {
	Expected dto.MoneyDTO `json:"expected"`
	Provided string       `json:"provided"`
}

// describeError maps err to an HTTP status and response body.
func describeError(err error) (int, errorResponse) {
	var unavailable *availability.UnavailableError
	if errors.As(err, &unavailable) {
		details := unavailableDetails{Blackouts: make([]string, 0, len(unavailable.Blackouts)), Conflicts: dto.MapConflicts(unavailable.Conflicts)}
		for _, d := range unavailable.Blackouts {
			details.Blackouts = append(details.Blackouts, d.String())
		}
		return http.StatusConflict, errorResponse{Code: "room_unavailable", Error: err.Error(), Details: details}
	}
	var mismatch *pricing.MismatchError
	if errors.As(err, &mismatch) {
		return http.StatusConflict, errorResponse{
			Code:    "price_mismatch",
			Error:   "the total no longer matches the current price; refresh the quote and retry",
			Details: mismatchDetails{Expected: dto.MapMoney(mismatch.Expected), Provided: mismatch.Provided.String()},
		}
	}
	var invalid *middleware.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, errorResponse{Code: "invalid_input", Error: err.Error(), Details: invalid.Fields}
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind.target) {
			body := errorResponse{Code: kind.code, Error: err.Error()}
			if kind.code == "concurrent_conflict" {
				body.Error = "another request changed this resource at the same time; retry"
			}
			return kind.status, body
		}
	}
	return http.StatusInternalServerError, errorResponse{Code: "internal", Error: "internal error"}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, body := describeError(err)
	if logger != nil {
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request failed",
			"status", status, "code", body.Code, "error", err, "path", c.FullPath(), "request_id", c.GetString("request_id"))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "invalid_input", Error: err.Error()})
}
