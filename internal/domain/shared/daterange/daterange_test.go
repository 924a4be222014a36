package daterange

import (
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestNewRejectsEmptyAndInvertedRanges(t *testing.T) {
	_, err := New(date(2025, 6, 5), date(2025, 6, 5))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(date(2025, 6, 5), date(2025, 6, 1))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(civil.Date{}, date(2025, 6, 1))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNightsAndDates(t *testing.T) {
	dr, err := New(date(2025, 2, 27), date(2025, 3, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, dr.Nights())
	assert.Equal(t, []civil.Date{date(2025, 2, 27), date(2025, 2, 28), date(2025, 3, 1)}, dr.Dates())
	assert.True(t, dr.ContainsDate(date(2025, 3, 1)))
	assert.False(t, dr.ContainsDate(date(2025, 3, 2)))
}

func TestBackToBackStaysDoNotOverlap(t *testing.T) {
	first, err := New(date(2025, 6, 1), date(2025, 6, 5))
	require.NoError(t, err)
	second, err := New(date(2025, 6, 5), date(2025, 6, 7))
	require.NoError(t, err)

	assert.False(t, first.Overlaps(second))
	assert.True(t, first.Adjacent(second))

	merged, ok := first.Merge(second)
	require.True(t, ok)
	assert.Equal(t, DateRange{CheckIn: date(2025, 6, 1), CheckOut: date(2025, 6, 7)}, merged)
}

func TestOverlapIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := date(2025, 1, 1)
	randomRange := func() DateRange {
		start := base.AddDays(rng.Intn(60))
		return DateRange{CheckIn: start, CheckOut: start.AddDays(1 + rng.Intn(10))}
	}
	for i := 0; i < 2000; i++ {
		a, b := randomRange(), randomRange()
		require.Equal(t, a.Overlaps(b), b.Overlaps(a), "a=%s b=%s", a, b)

		shared := false
		for _, d := range a.Dates() {
			if b.ContainsDate(d) {
				shared = true
				break
			}
		}
		require.Equal(t, shared, a.Overlaps(b), "a=%s b=%s", a, b)
	}
}

func TestParseKeepsCalendarDate(t *testing.T) {
	dr, err := Parse("2025-07-09", "2025-07-11T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, date(2025, 7, 9), dr.CheckIn)
	assert.Equal(t, date(2025, 7, 11), dr.CheckOut)

	_, err = ParseDate("09/07/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateOfUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	instant := time.Date(2025, 6, 30, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, date(2025, 6, 30), DateOf(instant, time.UTC))
	assert.Equal(t, date(2025, 7, 1), DateOf(instant, jakarta))
}

func TestCoalesce(t *testing.T) {
	ranges := Coalesce([]civil.Date{date(2025, 7, 12), date(2025, 7, 10), date(2025, 7, 11), date(2025, 7, 20)})
	assert.Equal(t, []DateRange{
		{CheckIn: date(2025, 7, 10), CheckOut: date(2025, 7, 13)},
		{CheckIn: date(2025, 7, 20), CheckOut: date(2025, 7, 21)},
	}, ranges)
	assert.Nil(t, Coalesce(nil))
}
