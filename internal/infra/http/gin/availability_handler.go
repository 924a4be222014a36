package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"
	gin "github.com/gin-gonic/gin"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	availabilityapp "staysane/internal/app/handlers/availability"
	"staysane/internal/app/queries"
	domainavailability "staysane/internal/domain/availability"
	"staysane/internal/domain/user"
)

type AvailabilityHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type toggleDatesRequest struct {
	Dates     []civil.Date `json:"dates"`
	Available bool         `json:"available"`
}

// Check is public; anonymous callers can look up availability.
func (h AvailabilityHandler) Check(c *gin.Context) {
	checkIn, checkOut, ok := h.dateParams(c, "check_in", "check_out")
	if !ok {
		return
	}
	result, err := queries.Ask[availabilityapp.CheckAvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries,
		availabilityapp.CheckAvailabilityQuery{RoomID: c.Param("id"), CheckIn: checkIn, CheckOut: checkOut})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Calendar(c *gin.Context) {
	from, to, ok := h.dateParams(c, "from", "to")
	if !ok {
		return
	}
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries,
		availabilityapp.GetCalendarQuery{RoomID: c.Param("id"), From: from, To: to})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Toggle(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	var req toggleDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[availabilityapp.ToggleDatesCommand, dto.ToggleResult](c.Request.Context(), h.Commands,
		availabilityapp.ToggleDatesCommand{RoomID: c.Param("id"), Dates: req.Dates, Available: req.Available})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) dateParams(c *gin.Context, startKey, endKey string) (civil.Date, civil.Date, bool) {
	start, err := parseDateParam(c, startKey)
	if err != nil {
		writeError(c, h.Logger, err)
		return civil.Date{}, civil.Date{}, false
	}
	end, err := parseDateParam(c, endKey)
	if err != nil {
		writeError(c, h.Logger, err)
		return civil.Date{}, civil.Date{}, false
	}
	return start, end, true
}

// parseDateParam reads a YYYY-MM-DD query parameter.
func parseDateParam(c *gin.Context, key string) (civil.Date, error) {
	raw := c.Query(key)
	if raw == "" {
		return civil.Date{}, fmt.Errorf("%w: %s is required", domainavailability.ErrInvalidDateRange, key)
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: %s: %v", domainavailability.ErrInvalidDateRange, key, err)
	}
	return d, nil
}

var _ AvailabilityHTTP = AvailabilityHandler{}
