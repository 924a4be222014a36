package pricing

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2025, Month: m, Day: d}
}

func idr(amount int64) money.Money {
	return money.Must(amount, "IDR")
}

func stay(t *testing.T, in, out civil.Date) daterange.DateRange {
	t.Helper()
	dr, err := daterange.New(in, out)
	require.NoError(t, err)
	return dr
}

func mustAdjustment(t *testing.T, p AdjustmentParams) *Adjustment {
	t.Helper()
	if p.RoomID == "" {
		p.RoomID = "room-1"
	}
	if p.Now.IsZero() {
		p.Now = t0
	}
	a, err := NewAdjustment(p)
	require.NoError(t, err)
	return a
}

func TestComputeTotalWithoutAdjustments(t *testing.T) {
	b, err := ComputeTotal(idr(1_000_000), stay(t, day(6, 1), day(6, 4)), nil, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(3_000_000), b.Total.Amount)
	assert.Equal(t, int64(1_000_000), b.AverageNightly.Amount)
	require.Len(t, b.Nights, 3)
	for _, n := range b.Nights {
		assert.Equal(t, idr(1_000_000), n.Price)
		assert.Empty(t, n.AdjustmentID)
	}
}

func TestComputeTotalWithPercentageAdjustment(t *testing.T) {
	adj := mustAdjustment(t, AdjustmentParams{
		ID: "adj-1", Start: day(6, 1), End: day(6, 30),
		Kind: KindPercentage, Value: decimal.NewFromInt(10), ApplyAllDates: true,
	})

	b, err := ComputeTotal(idr(1_000_000), stay(t, day(6, 1), day(6, 4)), []*Adjustment{adj}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3_300_000), b.Total.Amount)
	assert.Equal(t, AdjustmentID("adj-1"), b.Nights[0].AdjustmentID)
}

func TestQuantityMultipliesPerUnitSubtotal(t *testing.T) {
	b, err := ComputeTotal(idr(250_000), stay(t, day(3, 1), day(3, 3)), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), b.PerUnit.Amount)
	assert.Equal(t, int64(1_500_000), b.Total.Amount)

	b, err = ComputeTotal(idr(250_000), stay(t, day(3, 1), day(3, 3)), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Quantity)
}

func TestComputeTotalRejectsOutOfRangeTotals(t *testing.T) {
	_, err := ComputeTotal(idr(1_000_000), stay(t, day(6, 1), day(6, 2)), nil, MaxQuantity+1)
	assert.ErrorIs(t, err, ErrQuantity)

	_, err = ComputeTotal(idr(1<<62), stay(t, day(6, 1), day(6, 3)), nil, 1)
	assert.ErrorIs(t, err, money.ErrOverflow)

	_, err = ComputeTotal(idr(1<<60), stay(t, day(6, 1), day(6, 2)), nil, MaxQuantity)
	assert.ErrorIs(t, err, money.ErrOverflow)
}

func TestFirstMatchingAdjustmentWins(t *testing.T) {
	weekend := mustAdjustment(t, AdjustmentParams{
		ID: "weekend", Start: day(6, 1), End: day(6, 30), Kind: KindNominal,
		Value: decimal.NewFromInt(200_000), Dates: []civil.Date{day(6, 7)}, Priority: 1,
	})
	season := mustAdjustment(t, AdjustmentParams{
		ID: "season", Start: day(6, 1), End: day(6, 30), Kind: KindPercentage,
		Value: decimal.NewFromInt(50), ApplyAllDates: true, Priority: 2,
	})

	// resolver honours the order it is handed
	assert.Equal(t, idr(1_200_000), ResolveNightlyPrice(idr(1_000_000), day(6, 7), []*Adjustment{weekend, season}))
	assert.Equal(t, idr(1_500_000), ResolveNightlyPrice(idr(1_000_000), day(6, 7), []*Adjustment{season, weekend}))

	// aggregator sorts by priority regardless of input order
	b, err := ComputeTotal(idr(1_000_000), stay(t, day(6, 6), day(6, 8)), []*Adjustment{season, weekend}, 1)
	require.NoError(t, err)
	assert.Equal(t, idr(1_500_000), b.Nights[0].Price)
	assert.Equal(t, idr(1_200_000), b.Nights[1].Price)
}

func TestPrecedenceTiebreaksOnCreationTime(t *testing.T) {
	older := mustAdjustment(t, AdjustmentParams{ID: "b", Start: day(1, 1), End: day(1, 31), Kind: KindNominal, Value: decimal.NewFromInt(1), ApplyAllDates: true, Now: t0})
	newer := mustAdjustment(t, AdjustmentParams{ID: "a", Start: day(1, 1), End: day(1, 31), Kind: KindNominal, Value: decimal.NewFromInt(2), ApplyAllDates: true, Now: t0.Add(time.Hour)})

	list := []*Adjustment{newer, older}
	SortByPrecedence(list)
	assert.Equal(t, []*Adjustment{older, newer}, list)
}

func TestAdjustmentOutsideWindowOrDateSetIsSkipped(t *testing.T) {
	adj := mustAdjustment(t, AdjustmentParams{
		ID: "only-10th", Start: day(7, 1), End: day(7, 31), Kind: KindNominal,
		Value: decimal.NewFromInt(-100_000), Dates: []civil.Date{day(7, 10)},
	})
	assert.Equal(t, idr(900_000), ResolveNightlyPrice(idr(1_000_000), day(7, 10), []*Adjustment{adj}))
	assert.Equal(t, idr(1_000_000), ResolveNightlyPrice(idr(1_000_000), day(7, 11), []*Adjustment{adj}))
	assert.Equal(t, idr(1_000_000), ResolveNightlyPrice(idr(1_000_000), day(8, 10), []*Adjustment{adj}))
}

func TestAdjustedPriceNeverDropsBelowOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		kind := KindNominal
		if rng.Intn(2) == 0 {
			kind = KindPercentage
		}
		value := decimal.NewFromInt(int64(rng.Intn(4_000_000) - 3_000_000))
		if kind == KindPercentage {
			value = decimal.NewFromInt(int64(rng.Intn(400) - 300))
		}
		adj := &Adjustment{ID: "x", Start: day(1, 1), End: day(12, 31), Kind: kind, Value: value, ApplyAllDates: true}
		base := idr(int64(1 + rng.Intn(2_000_000)))
		price := ResolveNightlyPrice(base, day(5, 5), []*Adjustment{adj})
		require.GreaterOrEqual(t, price.Amount, MinNightlyPrice, "kind=%s value=%s base=%d", kind, value, base.Amount)
	}
}

func TestRoundingIsHalfUp(t *testing.T) {
	adj := &Adjustment{ID: "r", Start: day(1, 1), End: day(1, 31), Kind: KindPercentage, Value: decimal.NewFromInt(50), ApplyAllDates: true}
	// 101 * 1.5 = 151.5
	assert.Equal(t, int64(152), ResolveNightlyPrice(idr(101), day(1, 2), []*Adjustment{adj}).Amount)

	nominal := &Adjustment{ID: "n", Start: day(1, 1), End: day(1, 31), Kind: KindNominal, Value: decimal.RequireFromString("0.5"), ApplyAllDates: true}
	assert.Equal(t, int64(101), ResolveNightlyPrice(idr(100), day(1, 2), []*Adjustment{nominal}).Amount)
}

func TestComputedTotalAlwaysVerifies(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		in := day(1, 1).AddDays(rng.Intn(300))
		dr := stay(t, in, in.AddDays(1+rng.Intn(20)))
		adj := &Adjustment{ID: "p", Start: day(3, 1), End: day(6, 30), Kind: KindPercentage, Value: decimal.NewFromInt(int64(rng.Intn(60) - 30)), ApplyAllDates: true}
		b, err := ComputeTotal(idr(int64(50_000+rng.Intn(900_000))), dr, []*Adjustment{adj}, 1+rng.Intn(3))
		require.NoError(t, err)
		require.True(t, VerifyTotal(b.Total.Decimal(), b.Total, DefaultTolerance))
	}
}

func TestCheckTotalReportsMismatch(t *testing.T) {
	err := CheckTotal(decimal.NewFromInt(2_900_000), idr(3_000_000), DefaultTolerance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceMismatch)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(3_000_000), mismatch.Expected.Amount)
	assert.True(t, mismatch.Provided.Equal(decimal.NewFromInt(2_900_000)))

	assert.NoError(t, CheckTotal(decimal.RequireFromString("3000000.01"), idr(3_000_000), DefaultTolerance))
	assert.Error(t, CheckTotal(decimal.RequireFromString("3000000.02"), idr(3_000_000), DefaultTolerance))
}

func TestNewAdjustmentValidation(t *testing.T) {
	_, err := NewAdjustment(AdjustmentParams{RoomID: "r", Start: day(2, 10), End: day(2, 1), Kind: KindNominal, ApplyAllDates: true})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = NewAdjustment(AdjustmentParams{RoomID: "r", Start: day(2, 1), End: day(2, 10), Kind: "FLAT", ApplyAllDates: true})
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = NewAdjustment(AdjustmentParams{RoomID: "r", Start: day(2, 1), End: day(2, 10), Kind: KindNominal})
	assert.ErrorIs(t, err, ErrDatesRequired)

	_, err = NewAdjustment(AdjustmentParams{RoomID: "r", Start: day(2, 1), End: day(2, 10), Kind: KindNominal, Dates: []civil.Date{day(2, 11)}})
	assert.ErrorIs(t, err, ErrDateOutsideWindow)
}
