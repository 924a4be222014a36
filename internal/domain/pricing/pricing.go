package pricing

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
)

// MinNightlyPrice is the lowest price a night can resolve to.
const MinNightlyPrice int64 = 1

// MaxQuantity is the most rooms of one type a single stay may reserve.
const MaxQuantity = 20

var (
	ErrPriceMismatch = errors.New("pricing: client total does not match computed total")
	ErrCurrencyUnset = errors.New("pricing: currency must be defined")
	ErrBasePrice     = errors.New("pricing: base price must be positive")
	ErrQuantity      = fmt.Errorf("pricing: quantity must be at most %d", MaxQuantity)
)

// DefaultTolerance is the accepted absolute difference between a client-side
// total and the server-computed one.
var DefaultTolerance = decimal.RequireFromString("0.01")

// Night is the resolved price of a single night of a stay.
type Night struct {
	Date         civil.Date   `json:"date"`
	Price        money.Money  `json:"price"`
	AdjustmentID AdjustmentID `json:"adjustment_id,omitempty"`
}

// Breakdown is the priced stay: per-night prices for one unit, the per-unit
// subtotal and the total for the requested quantity.
type Breakdown struct {
	Nights         []Night
	PerUnit        money.Money
	Quantity       int
	Total          money.Money
	AverageNightly money.Money
}

func (b Breakdown) Copy() Breakdown {
	clone := b
	clone.Nights = append([]Night(nil), b.Nights...)
	return clone
}

// ResolveNightlyPrice returns the price of one night. Adjustments are consulted
// in the order given and the first matching one wins.
func ResolveNightlyPrice(base money.Money, date civil.Date, adjustments []*Adjustment) money.Money {
	return resolveNight(base, date, adjustments).Price
}

func resolveNight(base money.Money, date civil.Date, adjustments []*Adjustment) Night {
	for _, adj := range adjustments {
		if adj == nil || !adj.Matches(date) {
			continue
		}
		return Night{Date: date, Price: adj.Apply(base), AdjustmentID: adj.ID}
	}
	return Night{Date: date, Price: base}
}

// ComputeTotal prices every night of the stay. Adjustments are sorted by
// precedence on a copy, so callers may pass them in any order.
func ComputeTotal(base money.Money, stay daterange.DateRange, adjustments []*Adjustment, quantity int) (Breakdown, error) {
	if base.Currency == "" {
		return Breakdown{}, ErrCurrencyUnset
	}
	if !base.IsPositive() {
		return Breakdown{}, ErrBasePrice
	}
	if err := stay.Validate(); err != nil {
		return Breakdown{}, err
	}
	if quantity < 1 {
		quantity = 1
	}
	if quantity > MaxQuantity {
		return Breakdown{}, ErrQuantity
	}
	ordered := append([]*Adjustment(nil), adjustments...)
	SortByPrecedence(ordered)

	dates := stay.Dates()
	nights := make([]Night, 0, len(dates))
	perUnit := money.Money{Currency: base.Currency}
	for _, d := range dates {
		night := resolveNight(base, d, ordered)
		nights = append(nights, night)
		sum, err := perUnit.Add(night.Price)
		if err != nil {
			return Breakdown{}, err
		}
		perUnit = sum
	}
	total, err := perUnit.Multiply(int64(quantity))
	if err != nil {
		return Breakdown{}, err
	}
	avg := perUnit.Decimal().Div(decimal.NewFromInt(int64(len(dates))))
	return Breakdown{
		Nights:         nights,
		PerUnit:        perUnit,
		Quantity:       quantity,
		Total:          total,
		AverageNightly: money.FromDecimal(avg, base.Currency),
	}, nil
}

// VerifyTotal reports whether the client total is within tolerance of the computed one.
func VerifyTotal(client decimal.Decimal, computed money.Money, tolerance decimal.Decimal) bool {
	return client.Sub(computed.Decimal()).Abs().LessThanOrEqual(tolerance)
}

// CheckTotal is VerifyTotal returning a *MismatchError on failure.
func CheckTotal(client decimal.Decimal, computed money.Money, tolerance decimal.Decimal) error {
	if VerifyTotal(client, computed, tolerance) {
		return nil
	}
	return &MismatchError{Expected: computed, Provided: client}
}

// MismatchError carries both totals so callers can show the correct price.
type MismatchError struct {
	Expected money.Money
	Provided decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("pricing: total mismatch: expected %d %s, provided %s", e.Expected.Amount, e.Expected.Currency, e.Provided.String())
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrPriceMismatch
}
