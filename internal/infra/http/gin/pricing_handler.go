package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	gin "github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	pricingapp "staysane/internal/app/handlers/pricing"
	"staysane/internal/app/queries"
	"staysane/internal/domain/user"
)

type PricingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type adjustmentRequest struct {
	Title         string          `json:"title"`
	Start         civil.Date      `json:"start"`
	End           civil.Date      `json:"end"`
	Kind          string          `json:"kind" binding:"required"`
	Value         decimal.Decimal `json:"value"`
	ApplyAllDates bool            `json:"apply_all_dates"`
	Dates         []civil.Date    `json:"dates"`
	Priority      int             `json:"priority"`
}

func (r adjustmentRequest) input() pricingapp.AdjustmentInput {
	return pricingapp.AdjustmentInput{
		Title:         r.Title,
		Start:         r.Start,
		End:           r.End,
		Kind:          r.Kind,
		Value:         r.Value,
		ApplyAllDates: r.ApplyAllDates,
		Dates:         r.Dates,
		Priority:      r.Priority,
	}
}

func (h PricingHandler) Quote(c *gin.Context) {
	checkIn, err := parseDateParam(c, "check_in")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	checkOut, err := parseDateParam(c, "check_out")
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	quantity := 0
	if raw := c.Query("quantity"); raw != "" {
		if quantity, err = strconv.Atoi(raw); err != nil {
			badRequest(c, err)
			return
		}
	}
	result, err := queries.Ask[pricingapp.QuotePriceQuery, dto.Quote](c.Request.Context(), h.Queries,
		pricingapp.QuotePriceQuery{RoomID: c.Param("id"), CheckIn: checkIn, CheckOut: checkOut, Quantity: quantity})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PricingHandler) ListAdjustments(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	result, err := queries.Ask[pricingapp.ListAdjustmentsQuery, dto.AdjustmentCollection](c.Request.Context(), h.Queries,
		pricingapp.ListAdjustmentsQuery{RoomID: c.Param("id")})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PricingHandler) CreateAdjustment(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[pricingapp.CreateAdjustmentCommand, dto.Adjustment](c.Request.Context(), h.Commands,
		pricingapp.CreateAdjustmentCommand{RoomID: c.Param("id"), AdjustmentInput: req.input()})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h PricingHandler) UpdateAdjustment(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := commands.Dispatch[pricingapp.UpdateAdjustmentCommand, dto.Adjustment](c.Request.Context(), h.Commands,
		pricingapp.UpdateAdjustmentCommand{AdjustmentID: c.Param("adjustmentID"), AdjustmentInput: req.input()})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h PricingHandler) DeleteAdjustment(c *gin.Context) {
	if _, ok := requireRole(c, user.RoleTenant); !ok {
		return
	}
	result, err := commands.Dispatch[pricingapp.DeleteAdjustmentCommand, dto.Adjustment](c.Request.Context(), h.Commands,
		pricingapp.DeleteAdjustmentCommand{AdjustmentID: c.Param("adjustmentID")})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PricingHTTP = PricingHandler{}
